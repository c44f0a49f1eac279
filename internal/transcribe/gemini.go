package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/line-video-coach/internal/assets"
	"github.com/fpang/line-video-coach/internal/chat"
	"github.com/fpang/line-video-coach/internal/media"
)

// GeminiTranscriber asks a multimodal Gemini model for a verbatim
// transcript of the video's speech.
type GeminiTranscriber struct {
	client *chat.LazyGeminiClient
	model  string
}

// NewGeminiTranscriber creates a transcriber using model.
func NewGeminiTranscriber(client *chat.LazyGeminiClient, model string) *GeminiTranscriber {
	if model == "" {
		model = chat.ModelGemini3FlashPreview
	}
	return &GeminiTranscriber{client: client, model: model}
}

// Name returns "gemini/<model>".
func (t *GeminiTranscriber) Name() string {
	return "gemini/" + t.model
}

// Transcribe sends m inline or through the Files API and returns the text.
// Uploaded files are deleted before returning.
func (t *GeminiTranscriber) Transcribe(ctx context.Context, m media.Media, language string) (Transcript, error) {
	if language == "" {
		language = DefaultLanguage
	}

	client, err := t.client.Get(ctx)
	if err != nil {
		return Transcript{}, err
	}

	start := time.Now()
	part, cleanup, err := chat.MediaPart(ctx, client, m.Data, m.ContentType)
	if err != nil {
		return Transcript{}, fmt.Errorf("prepare media for gemini: %w", err)
	}
	defer cleanup()

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			part,
			{Text: assets.TranscribePrompt + "\n語言代碼：" + language},
		},
	}}
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)}

	resp, err := client.Models.GenerateContent(ctx, t.model, contents, cfg)
	if err != nil {
		return Transcript{}, fmt.Errorf("gemini transcription: %w", err)
	}

	var text string
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	log.Info().
		Str("model", t.model).
		Int("sizeBytes", m.Size()).
		Int("transcriptLength", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Transcription complete")
	return Transcript{Text: text}, nil
}
