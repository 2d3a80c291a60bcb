package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// TaskRunner runs background work detached from the request that started it,
// with a hard cap on concurrent tasks. When the cap is reached, new work is
// rejected instead of queued so a burst of submissions cannot pile up
// goroutines.
type TaskRunner struct {
	slots  chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewTaskRunner creates a runner allowing up to maxTasks concurrent tasks.
func NewTaskRunner(maxTasks int, logger *zap.Logger) *TaskRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxTasks < 1 {
		maxTasks = 1
	}
	return &TaskRunner{
		slots:  make(chan struct{}, maxTasks),
		logger: logger.Named("task_runner"),
	}
}

// Go starts fn on its own goroutine with a fresh context, so the task
// outlives the request that spawned it. Returns false if the runner is at
// capacity and the task was not started.
func (r *TaskRunner) Go(name string, fn func(ctx context.Context)) bool {
	select {
	case r.slots <- struct{}{}:
	default:
		r.logger.Warn("task runner at capacity, rejecting task", zap.String("task", name))
		return false
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.slots }()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("task panicked",
					zap.String("task", name),
					zap.Any("panic", rec))
			}
		}()
		fn(context.Background())
	}()
	return true
}

// Wait blocks until every running task finishes.
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}
