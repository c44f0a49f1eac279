package chat

// ModelGemini3FlashPreview is the default Gemini model for both stages.
// GEMINI_MODEL overrides it.
const ModelGemini3FlashPreview = "gemini-3-flash-preview"

// OpenAI model IDs used by default.
const (
	ModelOpenAIChat       = "gpt-5.1-mini"
	ModelOpenAITranscribe = "gpt-4o-transcribe"
)

// DefaultTemperature is the sampling temperature for the review.
const DefaultTemperature float32 = 0.7

// FallbackReview is delivered when the model returns an empty completion.
const FallbackReview = "已完成分析，但沒有產出內容，請稍後再試一次。"
