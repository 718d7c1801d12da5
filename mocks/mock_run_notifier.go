package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"leasesum/internal/port"
)

// MockRunNotifier is a mock implementation of port.RunNotifier.
type MockRunNotifier struct {
	mock.Mock
}

func (m *MockRunNotifier) NotifyRunCompleted(ctx context.Context, n port.RunNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
