package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	olderThan time.Duration
	deleted   int64
	err       error
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return f.deleted, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIdempotencyCleanupUsesConfiguredRetention(t *testing.T) {
	store := &fakeCleaner{deleted: 4}
	job := NewIdempotencyCleanupJob(store, quietLogger(), nil, 72*time.Hour)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 72*time.Hour, store.olderThan)
}

func TestIdempotencyCleanupPayloadOverridesRetention(t *testing.T) {
	store := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(store, quietLogger(), nil, 72*time.Hour)
	task, err := NewIdempotencyCleanupTask(time.Hour)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, store.olderThan)
}

func TestIdempotencyCleanupPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	job := NewIdempotencyCleanupJob(&fakeCleaner{err: boom}, quietLogger(), nil, time.Hour)
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)), boom)
}

func TestIdempotencyCleanupRequiresRetention(t *testing.T) {
	job := NewIdempotencyCleanupJob(&fakeCleaner{}, quietLogger(), nil, 0)
	err := job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
