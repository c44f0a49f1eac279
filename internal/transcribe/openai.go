package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/fpang/line-video-coach/internal/chat"
	"github.com/fpang/line-video-coach/internal/config"
	"github.com/fpang/line-video-coach/internal/media"
)

// OpenAITranscriber uses the audio transcription endpoint. The endpoint
// accepts video containers and extracts the audio track itself.
type OpenAITranscriber struct {
	client *openai.Client
	apiKey string
	model  string
}

// NewOpenAITranscriber creates a transcriber for cfg.TranscribeModel.
func NewOpenAITranscriber(cfg config.OpenAIConfig) *OpenAITranscriber {
	model := cfg.TranscribeModel
	if model == "" {
		model = chat.ModelOpenAITranscribe
	}
	return &OpenAITranscriber{
		client: chat.NewOpenAIClient(cfg),
		apiKey: cfg.APIKey,
		model:  model,
	}
}

// Name returns "openai/<model>".
func (t *OpenAITranscriber) Name() string {
	return "openai/" + t.model
}

// Transcribe uploads m as a multipart file and returns the recognized text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, m media.Media, language string) (Transcript, error) {
	if _, err := config.Require("OPENAI_API_KEY", t.apiKey); err != nil {
		return Transcript{}, err
	}
	if language == "" {
		language = DefaultLanguage
	}

	start := time.Now()
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: m.Filename(),
		Reader:   bytes.NewReader(m.Data),
		Language: language,
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("openai transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	log.Info().
		Str("model", t.model).
		Int("sizeBytes", m.Size()).
		Int("transcriptLength", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Transcription complete")
	return Transcript{Text: text}, nil
}
