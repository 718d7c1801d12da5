package noop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"leasesum/internal/domain"
	"leasesum/internal/port"
)

func TestNoopSender_LogsRun(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewNoopSender(zap.New(core))

	err := s.NotifyRunCompleted(context.Background(), port.RunNotification{
		Stats:     domain.RunStats{TotalDocuments: 3, Errors: 1},
		Locations: []string{"output/a.json"},
	})

	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "[NOOP EMAIL] run completed", entry.Message)
	assert.Equal(t, int64(3), entry.ContextMap()["documents"])
}
