// Package media acquires raw video bytes for transcription. Two strategies
// exist: ContentFetcher downloads media uploaded to LINE by content id, and
// DirectURLFetcher downloads a user-supplied link that points straight at a
// video file.
//
// Both materialize the full payload in memory.
package media

import (
	"errors"
	"io"
	"mime"
	"strings"
)

// ErrUnavailable is returned by DirectURLFetcher when the link cannot be
// used as a video source. It is a soft outcome, not a pipeline failure.
var ErrUnavailable = errors.New("media unavailable from direct URL")

// ErrTooLarge is returned when a payload exceeds the configured limit.
var ErrTooLarge = errors.New("media exceeds size limit")

// Media is a downloaded payload and its declared content type.
type Media struct {
	Data        []byte
	ContentType string
	// Source names where the bytes came from ("line-video" or "video-from-url")
	// and doubles as the upload filename stem for transcription backends.
	Source string
}

// Size returns the payload length in bytes.
func (m Media) Size() int {
	return len(m.Data)
}

// Filename returns an upload filename with an extension that matches the
// content type. Transcription APIs sniff the container from the extension.
func (m Media) Filename() string {
	stem := m.Source
	if stem == "" {
		stem = "video"
	}
	return stem + extensionFor(m.ContentType)
}

// IsVideoContentType reports whether a Content-Type header declares a video
// media type.
func IsVideoContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "video/")
}

func extensionFor(contentType string) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch strings.ToLower(mediaType) {
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	case "video/mpeg":
		return ".mpeg"
	default:
		return ".mp4"
	}
}

// ReadAllLimited reads r to EOF. With a positive limit it returns
// ErrTooLarge once more than limit bytes arrive.
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}
