package port

import "context"

// Completion is the text response of the extraction service plus usage metadata.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Completer abstracts the external text-understanding service: one request text in, one response text out.
type Completer interface {
	Complete(ctx context.Context, requestText string) (*Completion, error)
}
