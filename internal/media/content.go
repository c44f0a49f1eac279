package media

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ContentSource downloads platform-hosted message content.
// *line.Client satisfies it.
type ContentSource interface {
	Content(ctx context.Context, messageID string, limit int64) ([]byte, string, error)
}

// ContentFetcher fetches uploaded videos by content identifier. Any failure,
// including a non-2xx status, is a hard error carrying the status and body.
type ContentFetcher struct {
	source   ContentSource
	maxBytes int64
}

// NewContentFetcher creates a ContentFetcher. maxBytes <= 0 disables the limit.
func NewContentFetcher(source ContentSource, maxBytes int64) *ContentFetcher {
	return &ContentFetcher{source: source, maxBytes: maxBytes}
}

// Fetch downloads the content of messageID.
func (f *ContentFetcher) Fetch(ctx context.Context, messageID string) (Media, error) {
	start := time.Now()
	data, contentType, err := f.source.Content(ctx, messageID, f.maxBytes)
	if err != nil {
		return Media{}, fmt.Errorf("fetch content %s: %w", messageID, err)
	}
	if contentType == "" {
		contentType = "video/mp4"
	}

	log.Debug().
		Str("messageId", messageID).
		Int("sizeBytes", len(data)).
		Str("contentType", contentType).
		Dur("duration", time.Since(start)).
		Msg("Downloaded LINE message content")

	return Media{Data: data, ContentType: contentType, Source: "line-video"}, nil
}
