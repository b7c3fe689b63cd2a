// Package scheduler re-invokes paused or yielded runs. Continuations are
// messages on a buffered channel drained by a worker goroutine; delivery is
// at-least-once and the resume entrypoint is idempotent.
package scheduler

import (
	"context"
	"sync"
	"time"

	"aide/internal/logging"
)

// Runner resumes one run. *agent.Engine satisfies it.
type Runner interface {
	Continue(ctx context.Context, userID, taskID string) error
}

type continuation struct {
	userID string
	taskID string
}

// Scheduler queues continuations and drains them on a worker goroutine.
type Scheduler struct {
	queue   chan continuation
	logger  logging.Logger
	timeout time.Duration

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// New builds a scheduler with the given queue capacity.
func New(queueSize int) *Scheduler {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Scheduler{
		queue:   make(chan continuation, queueSize),
		logger:  logging.NewComponentLogger("Scheduler"),
		timeout: 5 * time.Minute,
	}
}

// Start launches the worker loop resuming runs through runner.
func (s *Scheduler) Start(runner Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(runner)
}

// Stop drains nothing further and waits for the in-flight continuation.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()
	<-done
}

// ScheduleContinuation enqueues one resume. Never blocks the caller: when
// the buffer is full the send completes from a goroutine.
func (s *Scheduler) ScheduleContinuation(userID, taskID string) {
	c := continuation{userID: userID, taskID: taskID}
	select {
	case s.queue <- c:
	default:
		go func() { s.queue <- c }()
	}
}

func (s *Scheduler) loop(runner Runner) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case c := <-s.queue:
			s.resume(runner, c)
		}
	}
}

func (s *Scheduler) resume(runner Runner, c continuation) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := runner.Continue(ctx, c.userID, c.taskID); err != nil {
		s.logger.Error("continuing task %s: %v", c.taskID, err)
	}
}
