package dispatch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/line-video-coach/internal/config"
	"github.com/fpang/line-video-coach/internal/line"
	"github.com/fpang/line-video-coach/internal/media"
	"github.com/fpang/line-video-coach/internal/transcribe"
)

// --- Fakes ---

type sent struct {
	to   string
	text string
}

type fakeMessenger struct {
	mu       sync.Mutex
	replies  []sent
	pushes   []sent
	replyErr error
	pushErr  error
}

func (f *fakeMessenger) Reply(_ context.Context, token, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sent{to: token, text: text})
	return f.replyErr
}

func (f *fakeMessenger) Push(_ context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, sent{to: userID, text: text})
	return f.pushErr
}

func (f *fakeMessenger) pushesTo(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.pushes {
		if p.to == userID {
			out = append(out, p.text)
		}
	}
	return out
}

type fakeFetcher struct {
	mu    sync.Mutex
	keys  []string
	fetch func(ctx context.Context, key string) (media.Media, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, key string) (media.Media, error) {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	if f.fetch != nil {
		return f.fetch(ctx, key)
	}
	return media.Media{Data: []byte("video:" + key), ContentType: "video/mp4"}, nil
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

type fakeTranscriber struct {
	mu         sync.Mutex
	calls      int
	languages  []string
	transcribe func(m media.Media) (transcribe.Transcript, error)
}

func (f *fakeTranscriber) Transcribe(_ context.Context, m media.Media, language string) (transcribe.Transcript, error) {
	f.mu.Lock()
	f.calls++
	f.languages = append(f.languages, language)
	f.mu.Unlock()
	if f.transcribe != nil {
		return f.transcribe(m)
	}
	return transcribe.Transcript{Text: "transcript of " + string(m.Data)}, nil
}

func (f *fakeTranscriber) Name() string { return "fake/transcribe" }

type fakeReviewer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeReviewer) Review(_ context.Context, transcript string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "review: " + transcript, nil
}

type fixture struct {
	messenger   *fakeMessenger
	content     *fakeFetcher
	direct      *fakeFetcher
	transcriber *fakeTranscriber
	reviewer    *fakeReviewer
}

func newFixture() *fixture {
	return &fixture{
		messenger:   &fakeMessenger{},
		content:     &fakeFetcher{},
		direct:      &fakeFetcher{},
		transcriber: &fakeTranscriber{},
		reviewer:    &fakeReviewer{},
	}
}

func (f *fixture) router(detach bool) *Router {
	return NewRouter(Deps{
		Messenger:   f.messenger,
		Content:     f.content,
		Direct:      f.direct,
		Transcriber: f.transcriber,
		Reviewer:    f.reviewer,
		Detach:      detach,
	})
}

func messageEvent(token, userID string, msg line.Message) line.Event {
	return line.Event{
		Type:       line.EventTypeMessage,
		ReplyToken: token,
		Source:     line.Source{Type: "user", UserID: userID},
		Message:    &msg,
	}
}

func videoEvent(token, userID, id string) line.Event {
	return messageEvent(token, userID, line.Message{ID: id, Type: line.MessageTypeVideo})
}

func textEvent(token, userID, text string) line.Event {
	return messageEvent(token, userID, line.Message{ID: "t1", Type: line.MessageTypeText, Text: text})
}

// --- Routing ---

func TestDispatch_NonMessageEventGetsGreeting(t *testing.T) {
	f := newFixture()
	ev := line.Event{Type: "follow", ReplyToken: "r1", Source: line.Source{UserID: "U1"}}

	f.router(false).Dispatch(context.Background(), []line.Event{ev})

	if len(f.messenger.replies) != 1 || f.messenger.replies[0].text != MsgGreeting {
		t.Fatalf("expected greeting reply, got %+v", f.messenger.replies)
	}
	if f.messenger.replies[0].to != "r1" {
		t.Errorf("expected reply token r1, got %q", f.messenger.replies[0].to)
	}
	if len(f.messenger.pushes) != 0 {
		t.Errorf("expected no pushes, got %+v", f.messenger.pushes)
	}
}

func TestDispatch_UnsupportedMessageType(t *testing.T) {
	f := newFixture()
	ev := messageEvent("r1", "U1", line.Message{ID: "s1", Type: "sticker"})

	f.router(false).Dispatch(context.Background(), []line.Event{ev})

	if len(f.messenger.replies) != 1 || f.messenger.replies[0].text != MsgUnsupported {
		t.Fatalf("expected unsupported reply, got %+v", f.messenger.replies)
	}
	if len(f.content.calls())+len(f.direct.calls()) != 0 {
		t.Error("expected no fetch for unsupported message")
	}
}

func TestDispatch_TextWithoutURL(t *testing.T) {
	f := newFixture()

	f.router(false).Dispatch(context.Background(), []line.Event{textEvent("r1", "U1", "  你好  ")})

	if len(f.messenger.replies) != 1 || f.messenger.replies[0].text != MsgUsage {
		t.Fatalf("expected usage reply, got %+v", f.messenger.replies)
	}
	if len(f.direct.calls()) != 0 {
		t.Error("expected no download without a URL")
	}
	if len(f.messenger.pushes) != 0 {
		t.Errorf("expected no pushes, got %+v", f.messenger.pushes)
	}
}

func TestDispatch_VideoPipeline(t *testing.T) {
	f := newFixture()

	f.router(false).Dispatch(context.Background(), []line.Event{videoEvent("r1", "U1", "m42")})

	if len(f.messenger.replies) != 1 || f.messenger.replies[0].text != MsgVideoAck {
		t.Fatalf("expected video ack, got %+v", f.messenger.replies)
	}
	if got := f.content.calls(); len(got) != 1 || got[0] != "m42" {
		t.Errorf("expected content fetch for m42, got %v", got)
	}
	if len(f.direct.calls()) != 0 {
		t.Error("video must not use the direct fetcher")
	}
	pushes := f.messenger.pushesTo("U1")
	if len(pushes) != 1 || pushes[0] != "review: transcript of video:m42" {
		t.Errorf("expected review push, got %v", pushes)
	}
	if f.transcriber.languages[0] != "zh" {
		t.Errorf("expected default language zh, got %q", f.transcriber.languages[0])
	}
}

func TestDispatch_URLPipeline(t *testing.T) {
	f := newFixture()
	text := "  看看這支 HTTPS://cdn.example.com/clip.mp4 還有 http://other.example.com/b.mp4 "

	f.router(false).Dispatch(context.Background(), []line.Event{textEvent("r1", "U1", text)})

	if len(f.messenger.replies) != 1 || f.messenger.replies[0].text != MsgURLAck {
		t.Fatalf("expected URL ack, got %+v", f.messenger.replies)
	}
	if got := f.direct.calls(); len(got) != 1 || got[0] != "HTTPS://cdn.example.com/clip.mp4" {
		t.Errorf("expected first URL to be fetched, got %v", got)
	}
	pushes := f.messenger.pushesTo("U1")
	if len(pushes) != 1 || pushes[0] != "review: transcript of video:HTTPS://cdn.example.com/clip.mp4" {
		t.Errorf("expected review push, got %v", pushes)
	}
}

// --- Outcomes ---

func TestDispatch_URLUnavailable(t *testing.T) {
	f := newFixture()
	f.direct.fetch = func(context.Context, string) (media.Media, error) {
		return media.Media{}, media.ErrUnavailable
	}

	f.router(false).Dispatch(context.Background(), []line.Event{textEvent("r1", "U1", "https://www.youtube.com/watch?v=x")})

	pushes := f.messenger.pushesTo("U1")
	if len(pushes) != 1 || pushes[0] != MsgURLUnavailable {
		t.Errorf("expected unavailable guidance, got %v", pushes)
	}
	if f.transcriber.calls != 0 {
		t.Error("transcriber must not run when download is unavailable")
	}
}

func TestDispatch_ContentFetchFailure(t *testing.T) {
	f := newFixture()
	f.content.fetch = func(context.Context, string) (media.Media, error) {
		return media.Media{}, &line.APIError{Op: "content", StatusCode: 404, Body: "not found"}
	}

	f.router(false).Dispatch(context.Background(), []line.Event{videoEvent("r1", "U1", "m1")})

	pushes := f.messenger.pushesTo("U1")
	if len(pushes) != 1 || pushes[0] != MsgVideoFailed {
		t.Errorf("expected video failure apology, got %v", pushes)
	}
}

func TestDispatch_EmptyTranscript(t *testing.T) {
	tests := []struct {
		name string
		ev   line.Event
		want string
	}{
		{"video", videoEvent("r1", "U1", "m1"), MsgVideoNoSpeech},
		{"url", textEvent("r1", "U1", "https://cdn.example.com/a.mp4"), MsgURLNoSpeech},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.transcriber.transcribe = func(media.Media) (transcribe.Transcript, error) {
				return transcribe.Transcript{Text: "  \n "}, nil
			}

			f.router(false).Dispatch(context.Background(), []line.Event{tt.ev})

			pushes := f.messenger.pushesTo("U1")
			if len(pushes) != 1 || pushes[0] != tt.want {
				t.Errorf("expected no-speech guidance, got %v", pushes)
			}
			if f.reviewer.calls != 0 {
				t.Error("reviewer must not run on an empty transcript")
			}
		})
	}
}

func TestDispatch_TranscribeFailure(t *testing.T) {
	f := newFixture()
	f.transcriber.transcribe = func(media.Media) (transcribe.Transcript, error) {
		return transcribe.Transcript{}, errors.New("413 file too large")
	}

	f.router(false).Dispatch(context.Background(), []line.Event{textEvent("r1", "U1", "http://x.example.com/a.mp4")})

	pushes := f.messenger.pushesTo("U1")
	if len(pushes) != 1 || pushes[0] != MsgURLFailed {
		t.Errorf("expected URL failure apology, got %v", pushes)
	}
}

func TestDispatch_ReviewFailure(t *testing.T) {
	f := newFixture()
	f.reviewer.err = errors.New("timeout")

	f.router(false).Dispatch(context.Background(), []line.Event{videoEvent("r1", "U1", "m1")})

	pushes := f.messenger.pushesTo("U1")
	if len(pushes) != 1 || pushes[0] != MsgVideoFailed {
		t.Errorf("expected video failure apology, got %v", pushes)
	}
}

// --- Delivery rules ---

func TestDispatch_NoUserIDDropsPush(t *testing.T) {
	f := newFixture()
	ev := videoEvent("r1", "", "m1")
	ev.Source = line.Source{Type: "group", GroupID: "G1"}

	f.router(false).Dispatch(context.Background(), []line.Event{ev})

	if len(f.messenger.replies) != 1 {
		t.Errorf("expected ack reply, got %+v", f.messenger.replies)
	}
	if len(f.messenger.pushes) != 0 {
		t.Errorf("expected no pushes without a user id, got %+v", f.messenger.pushes)
	}
}

func TestDispatch_NoReplyTokenSkipsReply(t *testing.T) {
	for _, token := range []string{"", "00000000000000000000000000000000", "ffffffffffffffffffffffffffffffff"} {
		f := newFixture()

		f.router(false).Dispatch(context.Background(), []line.Event{videoEvent(token, "U1", "m1")})

		if len(f.messenger.replies) != 0 {
			t.Errorf("token %q: expected no reply, got %+v", token, f.messenger.replies)
		}
		if len(f.messenger.pushesTo("U1")) != 1 {
			t.Errorf("token %q: expected pipeline to still push", token)
		}
	}
}

func TestDispatch_ReplyFailureDoesNotStopPipeline(t *testing.T) {
	f := newFixture()
	f.messenger.replyErr = errors.New("invalid reply token")

	f.router(false).Dispatch(context.Background(), []line.Event{videoEvent("r1", "U1", "m1")})

	if len(f.messenger.pushesTo("U1")) != 1 {
		t.Error("expected push after a failed reply")
	}
}

func TestDispatch_ExactlyOneReplyPerEvent(t *testing.T) {
	f := newFixture()
	events := []line.Event{
		videoEvent("r1", "U1", "m1"),
		textEvent("r2", "U2", "https://cdn.example.com/a.mp4"),
		textEvent("r3", "U3", "hello"),
		{Type: "follow", ReplyToken: "r4"},
	}

	f.router(false).Dispatch(context.Background(), events)

	counts := map[string]int{}
	for _, r := range f.messenger.replies {
		counts[r.to]++
	}
	for _, token := range []string{"r1", "r2", "r3", "r4"} {
		if counts[token] != 1 {
			t.Errorf("expected exactly one reply for %s, got %d", token, counts[token])
		}
	}
}

// --- Containment ---

func TestDispatch_PanicIsContainedToEvent(t *testing.T) {
	f := newFixture()
	f.content.fetch = func(_ context.Context, key string) (media.Media, error) {
		if key == "boom" {
			panic("decoder exploded")
		}
		return media.Media{Data: []byte("video:" + key)}, nil
	}

	f.router(false).Dispatch(context.Background(), []line.Event{
		videoEvent("r1", "U1", "boom"),
		videoEvent("r2", "U2", "ok"),
	})

	if got := f.messenger.pushesTo("U1"); len(got) != 1 || got[0] != MsgVideoFailed {
		t.Errorf("expected apology for the panicking event, got %v", got)
	}
	if got := f.messenger.pushesTo("U2"); len(got) != 1 || got[0] != "review: transcript of video:ok" {
		t.Errorf("expected review for the healthy event, got %v", got)
	}
}

func TestDispatch_ConfiguredLanguage(t *testing.T) {
	f := newFixture()
	r := NewRouter(Deps{
		Messenger: f.messenger, Content: f.content, Direct: f.direct,
		Transcriber: f.transcriber, Reviewer: f.reviewer, Language: "en",
	})

	r.Dispatch(context.Background(), []line.Event{videoEvent("r1", "U1", "m1")})

	if f.transcriber.languages[0] != "en" {
		t.Errorf("expected language en, got %q", f.transcriber.languages[0])
	}
}

// --- Delivery modes ---

func TestDispatch_DetachReturnsAfterAck(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	ctxErr := make(chan error, 1)
	f.content.fetch = func(ctx context.Context, key string) (media.Media, error) {
		<-release
		ctxErr <- ctx.Err()
		return media.Media{Data: []byte("video:" + key)}, nil
	}
	r := f.router(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Dispatch(ctx, []line.Event{videoEvent("r1", "U1", "m1")})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return while the tail was blocked")
	}
	if len(f.messenger.replies) != 1 {
		t.Fatalf("expected ack before return, got %+v", f.messenger.replies)
	}

	// Simulates the response being written.
	cancel()
	close(release)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := r.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := <-ctxErr; err != nil {
		t.Errorf("expected tail context to survive request cancellation, got %v", err)
	}
	if got := f.messenger.pushesTo("U1"); len(got) != 1 {
		t.Errorf("expected detached push, got %v", got)
	}
}

func TestDispatch_AwaitTailSurvivesRequestCancellation(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	lineClient := line.NewClientFromConfig(config.LINEConfig{
		ChannelAccessToken: "test-token",
		APIBaseURL:         server.URL,
		DataBaseURL:        server.URL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture()
	f.content.fetch = func(_ context.Context, key string) (media.Media, error) {
		// The webhook caller disconnects while the tail is running.
		cancel()
		return media.Media{Data: []byte("video:" + key), ContentType: "video/mp4"}, nil
	}
	r := NewRouter(Deps{
		Messenger:   lineClient,
		Content:     f.content,
		Direct:      f.direct,
		Transcriber: f.transcriber,
		Reviewer:    f.reviewer,
	})

	r.Dispatch(ctx, []line.Event{videoEvent("r1", "U1", "m1")})

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 2 || paths[0] != "/v2/bot/message/reply" || paths[1] != "/v2/bot/message/push" {
		t.Errorf("expected reply then push, got %v", paths)
	}
}

func TestDispatch_PushFailureIsNotReportedComplete(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = orig }()

	f := newFixture()
	f.messenger.pushErr = errors.New("push rejected")
	f.router(false).Dispatch(context.Background(), []line.Event{videoEvent("r1", "U1", "m1")})

	out := buf.String()
	if strings.Contains(out, `"message":"Pipeline complete"`) {
		t.Errorf("expected no completion log after a failed push, got %s", out)
	}
	if !strings.Contains(out, `"delivered":false`) {
		t.Errorf("expected delivered=false in log, got %s", out)
	}
	if !strings.Contains(out, `"message":"Push failed"`) {
		t.Errorf("expected push failure to be logged, got %s", out)
	}
}

func TestDispatch_PushSuccessIsReportedComplete(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = orig }()

	f := newFixture()
	f.router(false).Dispatch(context.Background(), []line.Event{videoEvent("r1", "U1", "m1")})

	out := buf.String()
	if !strings.Contains(out, `"message":"Pipeline complete"`) || !strings.Contains(out, `"delivered":true`) {
		t.Errorf("expected delivered completion log, got %s", out)
	}
	if !strings.Contains(out, `"pipeline":"video"`) {
		t.Errorf("expected pipeline field, got %s", out)
	}
}

func TestWait_ContextDone(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	defer close(release)
	f.content.fetch = func(context.Context, string) (media.Media, error) {
		<-release
		return media.Media{}, errors.New("released")
	}
	r := f.router(true)
	r.Dispatch(context.Background(), []line.Event{videoEvent("r1", "U1", "m1")})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestFirstURL(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"no link here", "", false},
		{"https://a.example.com/v.mp4", "https://a.example.com/v.mp4", true},
		{"看 http://a.example.com/v.mp4 這個", "http://a.example.com/v.mp4", true},
		{"HtTpS://A.example.com/x", "HtTpS://A.example.com/x", true},
		{"ftp://a.example.com/v.mp4", "", false},
	}
	for _, tt := range tests {
		got, ok := FirstURL(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FirstURL(%q): expected (%q, %v), got (%q, %v)", tt.text, tt.want, tt.ok, got, ok)
		}
	}
}
