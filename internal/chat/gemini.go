package chat

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/line-video-coach/internal/config"
)

// maxInlineBytes is the largest payload sent inline. Larger media goes
// through the Files API.
var maxInlineBytes = 20 << 20

// Files API polling bounds.
var (
	filePollInterval = 2 * time.Second
	filePollTimeout  = 3 * time.Minute
)

// NewGeminiClient creates a Gemini API client. baseURL overrides the API
// endpoint and is empty in production.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	key, err := config.Require("GEMINI_API_KEY", apiKey)
	if err != nil {
		return nil, err
	}
	cc := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return client, nil
}

// LazyGeminiClient creates the Gemini client on first use, so a missing
// GEMINI_API_KEY is reported by the first request instead of at startup.
type LazyGeminiClient struct {
	apiKey  string
	baseURL string

	once   sync.Once
	client *genai.Client
	err    error
}

// NewLazyGeminiClient records the key and endpoint without validating them.
func NewLazyGeminiClient(apiKey, baseURL string) *LazyGeminiClient {
	return &LazyGeminiClient{apiKey: apiKey, baseURL: baseURL}
}

// Get returns the client, creating it on the first call.
func (l *LazyGeminiClient) Get(ctx context.Context) (*genai.Client, error) {
	l.once.Do(func() {
		l.client, l.err = NewGeminiClient(context.WithoutCancel(ctx), l.apiKey, l.baseURL)
	})
	return l.client, l.err
}

// MediaPart returns a content part for data. Small payloads are inlined;
// larger ones are uploaded to the Files API and the returned cleanup func
// deletes the upload. cleanup is never nil.
func MediaPart(ctx context.Context, client *genai.Client, data []byte, mimeType string) (*genai.Part, func(), error) {
	if len(data) <= maxInlineBytes {
		return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}, func() {}, nil
	}

	file, err := uploadMedia(ctx, client, data, mimeType)
	if err != nil {
		return nil, func() {}, err
	}
	cleanup := func() {
		// The request context may already be done; deletion is best effort.
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if _, err := client.Files.Delete(delCtx, file.Name, nil); err != nil {
			log.Warn().Err(err).Str("name", file.Name).Msg("Failed to delete Gemini file")
		}
	}
	return &genai.Part{FileData: &genai.FileData{MIMEType: mimeType, FileURI: file.URI}}, cleanup, nil
}

// uploadMedia uploads data to the Gemini Files API and waits until it is
// ACTIVE.
func uploadMedia(ctx context.Context, client *genai.Client, data []byte, mimeType string) (*genai.File, error) {
	uploadStart := time.Now()
	file, err := client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{
		MIMEType: mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	log.Debug().
		Str("name", file.Name).
		Int("sizeBytes", len(data)).
		Dur("uploadDuration", time.Since(uploadStart)).
		Msg("Media uploaded to Gemini, waiting for processing...")

	deadline := time.Now().Add(filePollTimeout)
	for file.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for Gemini file processing after %v", filePollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(filePollInterval):
		}
		file, err = client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("get file state: %w", err)
		}
	}

	if file.State == genai.FileStateFailed {
		return nil, fmt.Errorf("gemini file processing failed: %s", file.Name)
	}

	log.Info().
		Str("name", file.Name).
		Str("state", string(file.State)).
		Dur("totalDuration", time.Since(uploadStart)).
		Msg("Gemini Files API upload complete")
	return file, nil
}

// GeminiCompleter implements Completer with Models.GenerateContent.
type GeminiCompleter struct {
	client *LazyGeminiClient
	model  string
}

// NewGeminiCompleter creates a completer for model.
func NewGeminiCompleter(client *LazyGeminiClient, model string) *GeminiCompleter {
	if model == "" {
		model = ModelGemini3FlashPreview
	}
	return &GeminiCompleter{client: client, model: model}
}

// Name returns "gemini/<model>".
func (c *GeminiCompleter) Name() string {
	return "gemini/" + c.model
}

// Complete generates text with the system persona as SystemInstruction.
func (c *GeminiCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	client, err := c.client.Get(ctx)
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		},
		Temperature: genai.Ptr(req.Temperature),
	}

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if resp == nil {
		return "", nil
	}

	text := resp.Text()
	log.Debug().
		Str("model", c.model).
		Int("responseLength", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Gemini completion received")
	return text, nil
}
