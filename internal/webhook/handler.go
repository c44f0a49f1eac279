// Package webhook provides the HTTP handler for LINE Messaging API webhook
// deliveries.
//
// LINE sends a JSON payload signed with X-Line-Signature: the base64
// HMAC-SHA256 of the raw body keyed by the channel secret. The handler
// verifies the signature over the exact bytes received, parses the events,
// and hands them to a Dispatcher.
//
// Reference: https://developers.line.biz/en/reference/messaging-api/#signature-validation
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/line-video-coach/internal/line"
	"github.com/fpang/line-video-coach/internal/metrics"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20 // 1 MB

// SignatureHeader carries the base64 HMAC-SHA256 of the body.
const SignatureHeader = "X-Line-Signature"

// Dispatcher handles a verified batch of events. *dispatch.Router
// satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []line.Event)
}

// Handler handles LINE webhook deliveries.
type Handler struct {
	channelSecret string
	dispatcher    Dispatcher
}

// NewHandler creates a webhook handler.
//
// channelSecret is the Channel secret from the LINE Developers Console,
// used to validate X-Line-Signature.
func NewHandler(channelSecret string, dispatcher Dispatcher) *Handler {
	return &Handler{
		channelSecret: channelSecret,
		dispatcher:    dispatcher,
	}
}

// ServeHTTP accepts POST only.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.handleEvents(w, r)
}

// handleEvents verifies, parses, and dispatches one webhook delivery.
//
// A request without a valid signature is rejected with 403 and no event is
// processed. Once dispatch returns the handler always answers 200, since
// per-event failures are reported to users, not to LINE.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Webhook: recovered from panic")
			writeJSON(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		}
	}()

	if h.channelSecret == "" {
		log.Error().Msg("Webhook: LINE_CHANNEL_SECRET is not configured")
		writeJSON(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error().Err(err).Msg("Webhook: failed to read body")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		log.Warn().Msg("Webhook: missing X-Line-Signature header")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	if !VerifySignature(h.channelSecret, body, signature) {
		log.Warn().Int("bodySize", len(body)).Msg("Webhook: invalid signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	payload, err := line.ParsePayload(body)
	if err != nil {
		log.Warn().Err(err).Msg("Webhook: malformed payload")
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	log.Info().
		Str("destination", payload.Destination).
		Int("events", len(payload.Events)).
		Int("bodySize", len(body)).
		Msg("Webhook events received")

	h.dispatcher.Dispatch(r.Context(), payload.Events)

	metrics.New(metrics.Namespace).
		Since("WebhookLatencyMs", start).
		Metric("WebhookEvents", float64(len(payload.Events)), metrics.UnitCount).
		Flush()

	writeJSON(w, http.StatusOK, `{"status":"ok"}`)
}

// VerifySignature reports whether signature is the base64 HMAC-SHA256 of
// body keyed by secret.
//
// Uses hmac.Equal for constant-time comparison to prevent timing attacks.
func VerifySignature(secret string, body []byte, signature string) bool {
	received, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(received, mac.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
