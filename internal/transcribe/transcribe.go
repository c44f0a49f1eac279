// Package transcribe converts video payloads into text transcripts.
//
// Two backends exist: OpenAI's transcription endpoint and Gemini's
// multimodal GenerateContent. The backend is picked by configuration.
package transcribe

import (
	"context"
	"strings"

	"github.com/fpang/line-video-coach/internal/media"
)

// DefaultLanguage is the ISO-639-1 hint sent with every request unless
// configured otherwise.
const DefaultLanguage = "zh"

// Transcript is the recognized speech of a video.
type Transcript struct {
	Text string
}

// Empty reports whether no usable speech was recognized.
func (t Transcript) Empty() bool {
	return strings.TrimSpace(t.Text) == ""
}

// Transcriber turns a media payload into a transcript. An empty transcript
// is a valid result, not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, m media.Media, language string) (Transcript, error)
	// Name identifies the backend and model for logs and metrics.
	Name() string
}
