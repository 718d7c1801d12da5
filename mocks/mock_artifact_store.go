package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"leasesum/internal/port"
)

// MockArtifactStore is a mock implementation of port.ArtifactStore.
type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockArtifactStore) Upload(ctx context.Context, input port.UploadInput) (*port.UploadOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.UploadOutput), args.Error(1)
}
