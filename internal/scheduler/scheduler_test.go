package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
	seen  chan struct{}
}

func (r *recordingRunner) Continue(ctx context.Context, userID, taskID string) error {
	r.mu.Lock()
	r.calls = append(r.calls, userID+"/"+taskID)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func TestSchedulerResumesQueuedContinuations(t *testing.T) {
	runner := &recordingRunner{seen: make(chan struct{}, 4)}
	s := New(4)
	s.Start(runner)
	defer s.Stop()

	s.ScheduleContinuation("u1", "t1")
	s.ScheduleContinuation("u1", "t2")

	for range 2 {
		select {
		case <-runner.seen:
		case <-time.After(2 * time.Second):
			t.Fatal("continuation was not delivered")
		}
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"u1/t1", "u1/t2"}, runner.calls)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := New(1)
	s.Start(&recordingRunner{seen: make(chan struct{}, 1)})
	s.Stop()
	s.Stop()
}
