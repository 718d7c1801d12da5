package port

import (
	"context"

	"leasesum/internal/domain"
)

// DocumentSource supplies the lease documents of a run.
type DocumentSource interface {
	Documents(ctx context.Context) ([]domain.Document, error)
}

// PromptSource supplies the prompt templates of a run, in configured order.
type PromptSource interface {
	Prompts(ctx context.Context) ([]domain.PromptSpec, error)
}
