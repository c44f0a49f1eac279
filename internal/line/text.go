package line

import "unicode/utf8"

// MaxTextRunes is LINE's per-message text limit.
const MaxTextRunes = 5000

// TruncationMarker is appended to text cut at MaxTextRunes.
const TruncationMarker = "\n…（內容過長，已截斷）"

// TruncateText returns text unchanged when it fits in one LINE message.
// Longer text is cut on a rune boundary and TruncationMarker is appended so
// the result, marker included, stays within MaxTextRunes.
func TruncateText(text string) string {
	if utf8.RuneCountInString(text) <= MaxTextRunes {
		return text
	}
	keep := MaxTextRunes - utf8.RuneCountInString(TruncationMarker)
	n := 0
	for i := range text {
		if n == keep {
			return text[:i] + TruncationMarker
		}
		n++
	}
	return text
}
