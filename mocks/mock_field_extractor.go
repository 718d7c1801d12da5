package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"leasesum/internal/domain"
)

// MockFieldExtractor is a mock implementation of port.FieldExtractor.
type MockFieldExtractor struct {
	mock.Mock
}

func (m *MockFieldExtractor) Extract(ctx context.Context, doc domain.Document, prompt domain.PromptSpec) domain.ExtractionResult {
	args := m.Called(ctx, doc, prompt)
	return args.Get(0).(domain.ExtractionResult)
}
