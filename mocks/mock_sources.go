package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"leasesum/internal/domain"
)

// MockDocumentSource is a mock implementation of port.DocumentSource.
type MockDocumentSource struct {
	mock.Mock
}

func (m *MockDocumentSource) Documents(ctx context.Context) ([]domain.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

// MockPromptSource is a mock implementation of port.PromptSource.
type MockPromptSource struct {
	mock.Mock
}

func (m *MockPromptSource) Prompts(ctx context.Context) ([]domain.PromptSpec, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PromptSpec), args.Error(1)
}
