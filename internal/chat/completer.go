package chat

import "context"

// CompletionRequest is a single-turn chat completion: a system persona and
// one user prompt.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float32
}

// Completer produces text for a CompletionRequest. Implementations return
// the raw model text, which may be empty.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name identifies the backend and model for logs and metrics.
	Name() string
}
