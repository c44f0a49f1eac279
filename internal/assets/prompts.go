// Package assets provides embedded prompt templates.
//
// Prompt templates are stored as text files under prompts/ and embedded at
// compile time so a deployment is a single binary.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// --- Static prompts ---

// ReviewSystemPrompt is the system persona for the marketing review.
//
//go:embed prompts/review-system.txt
var ReviewSystemPrompt string

// TranscribePrompt instructs a multimodal model to return a bare transcript.
//
//go:embed prompts/transcribe.txt
var TranscribePrompt string

// --- Dynamic prompt templates ---

//go:embed prompts/review-user.txt
var reviewUserTemplate string

// template.Must panics on malformed templates, catching errors at program
// startup rather than at call time.
var reviewPromptTmpl = template.Must(template.New("review").Parse(reviewUserTemplate))

// ReviewData holds the dynamic data injected into the review prompt.
type ReviewData struct {
	Transcript string
}

// RenderReviewPrompt renders the three-section review prompt around transcript.
func RenderReviewPrompt(transcript string) string {
	var buf bytes.Buffer
	// The template only interpolates a string field, so Execute cannot fail
	// on valid data.
	_ = reviewPromptTmpl.Execute(&buf, ReviewData{Transcript: transcript})
	return buf.String()
}
