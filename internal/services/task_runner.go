package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

// TaskRunner executes background work detached from the request that
// submitted it. Every task owns its error boundary: a failure or panic is
// logged and recorded by the task itself, never surfaced to the submitting
// request handler.
type TaskRunner interface {
	Submit(name string, fn func(ctx context.Context) error)
	Shutdown(ctx context.Context)
}

type taskRunner struct {
	log     *logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewTaskRunner builds a runner whose tasks each get an independent context
// bounded by timeout. Zero timeout means no per-task deadline.
func NewTaskRunner(log *logger.Logger, timeout time.Duration) TaskRunner {
	return &taskRunner{
		log:     log.With("service", "TaskRunner"),
		timeout: timeout,
	}
}

func (r *taskRunner) Submit(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn("task rejected, runner shut down", "task", name)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		// The task is detached from the request context on purpose: the
		// caller has already been answered.
		ctx := context.Background()
		var cancel context.CancelFunc
		if r.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("background task panicked",
					"task", name,
					"panic", fmt.Sprintf("%v", rec),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}
		}()

		if err := fn(ctx); err != nil {
			r.log.Error("background task failed",
				"task", name,
				"error", err,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return
		}
		r.log.Info("background task finished",
			"task", name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()
}

// Shutdown stops accepting tasks and waits for in-flight ones until ctx
// expires.
func (r *taskRunner) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn("shutdown timed out waiting for background tasks")
	}
}
