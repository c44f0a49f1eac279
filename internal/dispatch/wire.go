package dispatch

import (
	"github.com/fpang/line-video-coach/internal/chat"
	"github.com/fpang/line-video-coach/internal/config"
	"github.com/fpang/line-video-coach/internal/line"
	"github.com/fpang/line-video-coach/internal/media"
	"github.com/fpang/line-video-coach/internal/transcribe"
)

// Build assembles a Router and its clients from cfg. API keys are checked
// by the first request that needs them, not here.
func Build(cfg *config.Config) *Router {
	lineClient := line.NewClientFromConfig(cfg.LINE)
	gemini := chat.NewLazyGeminiClient(cfg.Gemini.APIKey, "")

	var transcriber transcribe.Transcriber
	switch cfg.Pipeline.TranscribeBackend {
	case config.BackendGemini:
		transcriber = transcribe.NewGeminiTranscriber(gemini, cfg.Gemini.Model)
	default:
		transcriber = transcribe.NewOpenAITranscriber(cfg.OpenAI)
	}

	var completer chat.Completer
	switch cfg.Pipeline.AnalysisBackend {
	case config.BackendGemini:
		completer = chat.NewGeminiCompleter(gemini, cfg.Gemini.Model)
	default:
		completer = chat.NewOpenAICompleter(cfg.OpenAI)
	}

	return NewRouter(Deps{
		Messenger:   lineClient,
		Content:     media.NewContentFetcher(lineClient, cfg.Pipeline.MediaMaxBytes),
		Direct:      media.NewDirectURLFetcher(cfg.Pipeline.DownloadTimeout, cfg.Pipeline.MediaMaxBytes),
		Transcriber: transcriber,
		Reviewer:    chat.NewReviewer(completer, cfg.Pipeline.Temperature, cfg.Pipeline.AnalysisTimeout),
		Language:    cfg.Pipeline.Language,
		Detach:      cfg.Detach(),
	})
}

// Backends returns the backend name of each AI stage, for startup logging.
func (r *Router) Backends() map[string]string {
	out := map[string]string{"transcribe": r.transcriber.Name()}
	if n, ok := r.reviewer.(interface{ Name() string }); ok {
		out["analyze"] = n.Name()
	}
	return out
}
