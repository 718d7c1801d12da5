package port

import (
	"context"

	"leasesum/internal/domain"
)

// FieldExtractor runs one prompt against one document. Failures are reported
// in the result status, never as a returned error.
type FieldExtractor interface {
	Extract(ctx context.Context, doc domain.Document, prompt domain.PromptSpec) domain.ExtractionResult
}
