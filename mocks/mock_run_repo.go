package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"leasesum/internal/port"
)

// MockRunRepository is a mock implementation of port.RunRepository.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) SaveRun(ctx context.Context, run *port.RunSnapshot) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}
