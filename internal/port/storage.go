package port

import (
	"context"
	"io"
)

// UploadInput encapsulates the parameters needed to store one artifact.
type UploadInput struct {
	Key         string
	Body        io.Reader
	ContentType string
	Size        int64
}

// UploadOutput contains the result of a successful upload.
type UploadOutput struct {
	Location string
	ETag     string
}

// ArtifactStore persists rendered report artifacts.
type ArtifactStore interface {
	Name() string
	Upload(ctx context.Context, input UploadInput) (*UploadOutput, error)
}
