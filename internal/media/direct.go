package media

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultDownloadTimeout = 2 * time.Minute
	defaultUserAgent       = "Mozilla/5.0 (compatible; line-video-coach/1.0)"
)

// DirectURLFetcher downloads a user-supplied URL that must resolve directly
// to a video file. Most share links from video sites are HTML pages; those
// are reported as ErrUnavailable and never scraped.
type DirectURLFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewDirectURLFetcher creates a fetcher with the given overall download
// timeout. timeout <= 0 uses the default; maxBytes <= 0 disables the limit.
func NewDirectURLFetcher(timeout time.Duration, maxBytes int64) *DirectURLFetcher {
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	return &DirectURLFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
		maxBytes:  maxBytes,
	}
}

// Fetch downloads url. Every failure mode wraps ErrUnavailable: transport
// errors, non-2xx statuses, a non-video content type, and oversize bodies.
func (f *DirectURLFetcher) Fetch(ctx context.Context, url string) (Media, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Media{}, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "video/mp4,video/*;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Direct video download failed")
		return Media{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("Direct video download returned non-success status")
		return Media{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !IsVideoContentType(contentType) {
		log.Warn().Str("contentType", contentType).Str("url", url).Msg("URL is not a video content type")
		return Media{}, fmt.Errorf("%w: content type %q", ErrUnavailable, contentType)
	}

	data, err := ReadAllLimited(resp.Body, f.maxBytes)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Direct video body read failed")
		return Media{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	log.Debug().
		Str("url", url).
		Int("sizeBytes", len(data)).
		Str("contentType", contentType).
		Dur("duration", time.Since(start)).
		Msg("Downloaded video from direct URL")

	return Media{Data: data, ContentType: contentType, Source: "video-from-url"}, nil
}
