package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"leasesum/internal/port"
)

// MockCompleter is a mock implementation of port.Completer.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, requestText string) (*port.Completion, error) {
	args := m.Called(ctx, requestText)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.Completion), args.Error(1)
}
