// Package dispatch routes webhook events to their handling pipeline.
//
// Every event is acknowledged with a single reply, then the slow tail
// (fetch, transcribe, analyze) runs and its outcome is pushed to the user.
// Events are handled concurrently; a failure or panic in one event never
// affects the others.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/line-video-coach/internal/line"
	"github.com/fpang/line-video-coach/internal/media"
	"github.com/fpang/line-video-coach/internal/metrics"
	"github.com/fpang/line-video-coach/internal/transcribe"
)

var urlPattern = regexp.MustCompile(`(?i)https?://\S+`)

// Messenger delivers text to LINE users. *line.Client satisfies it.
type Messenger interface {
	Reply(ctx context.Context, replyToken, text string) error
	Push(ctx context.Context, userID, text string) error
}

// Fetcher downloads a video by a key: a content id or a URL.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (media.Media, error)
}

// Reviewer turns a transcript into the marketing review. *chat.Reviewer
// satisfies it.
type Reviewer interface {
	Review(ctx context.Context, transcript string) (string, error)
}

// Deps are the process-wide collaborators of a Router.
type Deps struct {
	Messenger   Messenger
	Content     Fetcher
	Direct      Fetcher
	Transcriber transcribe.Transcriber
	Reviewer    Reviewer

	// Language is the transcription language hint. Empty uses "zh".
	Language string
	// Detach lets the slow tail outlive Dispatch. Only safe where the
	// process keeps running after the HTTP response.
	Detach bool
}

// Router dispatches webhook events.
type Router struct {
	messenger   Messenger
	content     Fetcher
	direct      Fetcher
	transcriber transcribe.Transcriber
	reviewer    Reviewer
	language    string
	detach      bool

	tail sync.WaitGroup
}

// NewRouter creates a Router.
func NewRouter(d Deps) *Router {
	lang := d.Language
	if lang == "" {
		lang = transcribe.DefaultLanguage
	}
	return &Router{
		messenger:   d.Messenger,
		content:     d.Content,
		direct:      d.Direct,
		transcriber: d.Transcriber,
		reviewer:    d.Reviewer,
		language:    lang,
		detach:      d.Detach,
	}
}

// pipeline describes one media source and its user-facing texts.
type pipeline struct {
	name     string
	fetcher  Fetcher
	key      string
	noSpeech string
	failed   string
}

// Dispatch handles events concurrently and returns when every event has
// been acknowledged. In await mode it also waits for every pipeline tail.
func (r *Router) Dispatch(ctx context.Context, events []line.Event) {
	var wg sync.WaitGroup
	for i := range events {
		wg.Add(1)
		go func(ev line.Event) {
			defer wg.Done()
			r.handle(ctx, ev)
		}(events[i])
	}
	wg.Wait()
}

// Wait blocks until detached pipeline tails finish or ctx is done.
func (r *Router) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.tail.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) handle(ctx context.Context, ev line.Event) {
	eventID := uuid.NewString()
	logger := log.With().
		Str("eventId", eventID).
		Str("eventType", ev.Type).
		Str("webhookEventId", ev.WebhookEventID).
		Logger()
	defer recoverEvent(logger)

	ctx = logger.WithContext(ctx)
	ctx = metrics.WithProperty(ctx, "eventId", eventID)

	if ev.Kind() != line.EventKindMessage {
		r.reply(ctx, ev, MsgGreeting)
		return
	}

	msg := ev.Message
	switch msg.Type {
	case line.MessageTypeVideo:
		r.reply(ctx, ev, MsgVideoAck)
		r.runTail(ctx, ev, pipeline{
			name:     "video",
			fetcher:  r.content,
			key:      msg.ID,
			noSpeech: MsgVideoNoSpeech,
			failed:   MsgVideoFailed,
		})

	case line.MessageTypeText:
		url, ok := FirstURL(msg.Text)
		if !ok {
			r.reply(ctx, ev, MsgUsage)
			return
		}
		r.reply(ctx, ev, MsgURLAck)
		r.runTail(ctx, ev, pipeline{
			name:     "url",
			fetcher:  r.direct,
			key:      url,
			noSpeech: MsgURLNoSpeech,
			failed:   MsgURLFailed,
		})

	default:
		r.reply(ctx, ev, MsgUnsupported)
	}
}

// FirstURL returns the first http(s) URL in text.
func FirstURL(text string) (string, bool) {
	url := urlPattern.FindString(strings.TrimSpace(text))
	return url, url != ""
}

// runTail runs p inline (await) or on a tracked goroutine (detach). Either
// way the tail ignores cancellation of the webhook request: it runs until it
// pushes an outcome.
func (r *Router) runTail(ctx context.Context, ev line.Event, p pipeline) {
	bg := context.WithoutCancel(ctx)
	if !r.detach {
		r.run(bg, ev, p)
		return
	}

	r.tail.Add(1)
	go func() {
		defer r.tail.Done()
		defer recoverEvent(*zerolog.Ctx(bg))
		r.run(bg, ev, p)
	}()
}

// run fetches, transcribes, analyzes, and pushes exactly one outcome.
func (r *Router) run(ctx context.Context, ev line.Event, p pipeline) {
	logger := zerolog.Ctx(ctx).With().Str("pipeline", p.name).Logger()
	ctx = metrics.WithProperty(logger.WithContext(ctx), "pipeline", p.name)
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("Recovered from panic in pipeline")
			r.push(ctx, ev, p.failed)
		}
	}()

	m, err := r.fetch(ctx, p)
	if errors.Is(err, media.ErrUnavailable) {
		logger.Warn().Err(err).Str("url", p.key).Msg("URL did not resolve to a video")
		r.push(ctx, ev, MsgURLUnavailable)
		return
	}
	if err != nil {
		r.fail(ctx, ev, p, err)
		return
	}

	transcript, err := r.transcribe(ctx, m)
	if err != nil {
		r.fail(ctx, ev, p, err)
		return
	}
	if transcript.Empty() {
		logger.Info().Int("sizeBytes", m.Size()).Msg("Transcript is empty")
		r.push(ctx, ev, p.noSpeech)
		return
	}

	review, err := r.review(ctx, transcript.Text)
	if err != nil {
		r.fail(ctx, ev, p, err)
		return
	}

	if !r.push(ctx, ev, review) {
		logger.Warn().
			Bool("delivered", false).
			Int("reviewLength", len(review)).
			Dur("duration", time.Since(start)).
			Msg("Pipeline finished but the review was not delivered")
		return
	}
	logger.Info().
		Bool("delivered", true).
		Int("sizeBytes", m.Size()).
		Int("transcriptLength", len(transcript.Text)).
		Int("reviewLength", len(review)).
		Dur("duration", time.Since(start)).
		Msg("Pipeline complete")
}

func (r *Router) fetch(ctx context.Context, p pipeline) (media.Media, error) {
	start := time.Now()
	m, err := p.fetcher.Fetch(ctx, p.key)
	switch {
	case errors.Is(err, media.ErrUnavailable):
		metrics.ObserveStage(ctx, metrics.StageFetch, metrics.ResultSoft, start)
	case err != nil:
		metrics.ObserveStage(ctx, metrics.StageFetch, metrics.ResultError, start)
		return media.Media{}, fmt.Errorf("fetch %s: %w", p.name, err)
	default:
		metrics.ObserveStage(ctx, metrics.StageFetch, metrics.ResultOK, start)
		metrics.ObserveMediaSize(ctx, p.name, m.Size())
	}
	return m, err
}

func (r *Router) transcribe(ctx context.Context, m media.Media) (transcribe.Transcript, error) {
	start := time.Now()
	t, err := r.transcriber.Transcribe(ctx, m, r.language)
	switch {
	case err != nil:
		metrics.ObserveStage(ctx, metrics.StageTranscribe, metrics.ResultError, start)
		return t, fmt.Errorf("transcribe with %s: %w", r.transcriber.Name(), err)
	case t.Empty():
		metrics.ObserveStage(ctx, metrics.StageTranscribe, metrics.ResultEmpty, start)
	default:
		metrics.ObserveStage(ctx, metrics.StageTranscribe, metrics.ResultOK, start)
	}
	return t, nil
}

func (r *Router) review(ctx context.Context, transcript string) (string, error) {
	start := time.Now()
	text, err := r.reviewer.Review(ctx, transcript)
	if err != nil {
		metrics.ObserveStage(ctx, metrics.StageAnalyze, metrics.ResultError, start)
		return "", err
	}
	metrics.ObserveStage(ctx, metrics.StageAnalyze, metrics.ResultOK, start)
	return text, nil
}

func (r *Router) fail(ctx context.Context, ev line.Event, p pipeline, err error) {
	zerolog.Ctx(ctx).Error().Err(err).Msg("Pipeline failed")
	r.push(ctx, ev, p.failed)
}

// reply attempts the event's single reply. Failures are logged only.
func (r *Router) reply(ctx context.Context, ev line.Event, text string) {
	logger := zerolog.Ctx(ctx)
	if !ev.HasReplyToken() {
		logger.Debug().Msg("Event has no usable reply token, skipping reply")
		return
	}

	start := time.Now()
	if err := r.messenger.Reply(ctx, ev.ReplyToken, text); err != nil {
		metrics.ObserveStage(ctx, metrics.StageReply, metrics.ResultError, start)
		logger.Error().Err(err).Msg("Reply failed")
		return
	}
	metrics.ObserveStage(ctx, metrics.StageReply, metrics.ResultOK, start)
}

// push delivers text to the event's user and reports whether LINE accepted
// it. Without a user id the text is dropped.
func (r *Router) push(ctx context.Context, ev line.Event, text string) bool {
	logger := zerolog.Ctx(ctx)
	userID := ev.UserID()
	if userID == "" {
		logger.Debug().Int("textLength", len(text)).Msg("No user id on event, dropping push")
		return false
	}

	start := time.Now()
	if err := r.messenger.Push(ctx, userID, text); err != nil {
		metrics.ObserveStage(ctx, metrics.StagePush, metrics.ResultError, start)
		logger.Error().Err(err).Msg("Push failed")
		return false
	}
	metrics.ObserveStage(ctx, metrics.StagePush, metrics.ResultOK, start)
	return true
}

// recoverEvent contains a panic to the event that raised it.
func recoverEvent(logger zerolog.Logger) {
	if rec := recover(); rec != nil {
		logger.Error().Interface("panic", rec).Msg("Recovered from panic while handling event")
	}
}
