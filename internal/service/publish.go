package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"leasesum/internal/port"
)

// PublishedArtifact records where one rendered file was stored.
type PublishedArtifact struct {
	Store    string
	Key      string
	Location string
}

// Publish renders the run artifacts and hands them to every configured sink.
// Store and repository failures are returned joined; a notification failure is
// only logged.
func (s *pipelineService) Publish(ctx context.Context, result *RunResult) ([]PublishedArtifact, error) {
	if result == nil || result.Artifacts == nil {
		return nil, errors.New("publish: run has no assembled artifacts")
	}

	files, err := RenderArtifacts(result.Artifacts, s.cfg.Formats, result.Stats.StartedAt)
	if err != nil {
		return nil, err
	}

	prefix := RunKeyPrefix(result.Stats)
	var (
		published []PublishedArtifact
		errs      []error
	)
	for _, store := range s.sinks.Stores {
		for _, f := range files {
			key := path.Join(prefix, f.Name)
			out, err := store.Upload(ctx, port.UploadInput{
				Key:         key,
				Body:        bytes.NewReader(f.Body),
				ContentType: f.ContentType,
				Size:        int64(len(f.Body)),
			})
			if err != nil {
				s.logger.Error("pipelineService.Publish: upload failed",
					zap.String("store", store.Name()),
					zap.String("key", key),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("uploading %s to %s: %w", key, store.Name(), err))
				continue
			}
			published = append(published, PublishedArtifact{Store: store.Name(), Key: key, Location: out.Location})
		}
	}

	if s.sinks.Runs != nil {
		snapshot := &port.RunSnapshot{
			Stats:     result.Stats,
			Records:   result.Records,
			Aggregate: result.Aggregate,
		}
		if err := s.sinks.Runs.SaveRun(ctx, snapshot); err != nil {
			s.logger.Error("pipelineService.Publish: saving run history failed",
				zap.String("run_id", result.Stats.RunID.String()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("saving run: %w", err))
		}
	}

	if s.sinks.Notifier != nil {
		locations := make([]string, 0, len(published))
		for _, p := range published {
			locations = append(locations, p.Location)
		}
		if err := s.sinks.Notifier.NotifyRunCompleted(ctx, port.RunNotification{Stats: result.Stats, Locations: locations}); err != nil {
			s.logger.Warn("pipelineService.Publish: notification failed", zap.Error(err))
		}
	}

	s.logger.Info("pipelineService.Publish: done",
		zap.String("prefix", prefix),
		zap.Int("artifacts", len(published)),
		zap.Int("errors", len(errs)),
	)
	return published, errors.Join(errs...)
}
