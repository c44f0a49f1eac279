package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/line-video-coach/internal/assets"
)

// ErrEmptyTranscript is returned when Review is called without content.
// The pipeline handles empty transcripts before this point.
var ErrEmptyTranscript = errors.New("transcript is empty")

const defaultReviewTimeout = 60 * time.Second

// Reviewer turns a transcript into the three-section marketing review:
// content positioning, strengths and fixes, and a rewritten story script.
type Reviewer struct {
	completer   Completer
	temperature float32
	timeout     time.Duration
}

// NewReviewer creates a Reviewer. timeout bounds each completion call;
// timeout <= 0 uses 60s.
func NewReviewer(completer Completer, temperature float32, timeout time.Duration) *Reviewer {
	if timeout <= 0 {
		timeout = defaultReviewTimeout
	}
	return &Reviewer{completer: completer, temperature: temperature, timeout: timeout}
}

// Review returns the model's review verbatim (trimmed). An empty completion
// yields FallbackReview. Completion failures are returned as errors.
func (r *Reviewer) Review(ctx context.Context, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", ErrEmptyTranscript
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	text, err := r.completer.Complete(ctx, CompletionRequest{
		System:      assets.ReviewSystemPrompt,
		Prompt:      assets.RenderReviewPrompt(transcript),
		Temperature: r.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate review with %s: %w", r.completer.Name(), err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn().Str("backend", r.completer.Name()).Msg("Review completion was empty, using fallback")
		return FallbackReview, nil
	}

	log.Info().
		Str("backend", r.completer.Name()).
		Int("transcriptLength", len(transcript)).
		Int("reviewLength", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Review generated")
	return text, nil
}

// Name returns the completion backend name.
func (r *Reviewer) Name() string {
	return r.completer.Name()
}
