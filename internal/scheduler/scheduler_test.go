package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context) Outcome {
	r.calls.Add(1)
	return Outcome{}
}

func TestNewScheduler_InvalidSendTime(t *testing.T) {
	_, err := NewScheduler(context.Background(), &countingRunner{}, "25:61", time.UTC, testLogger())
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewScheduler(context.Background(), runner, "09:30", time.UTC, testLogger())
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero(), "no next run before start")

	s.Start()
	next := s.Next()
	require.False(t, next.IsZero())
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.Equal(t, time.UTC, next.Location())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, int32(0), runner.calls.Load())
}

func TestScheduler_TriggerRunsJob(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewScheduler(context.Background(), runner, "09:30", time.UTC, testLogger())
	require.NoError(t, err)

	s.trigger()
	assert.Equal(t, int32(1), runner.calls.Load())

	require.NoError(t, s.Stop(context.Background()))
	s.trigger()
	assert.Equal(t, int32(1), runner.calls.Load(), "no runs after stop")
}
