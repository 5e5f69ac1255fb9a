package wave

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vallen-systems/go-waveline/logger"
)

// TaskFunc represents one iteration of a task run by the TaskManager.
// It should return true to keep the task running, or false to stop it.
type TaskFunc func() bool

// TaskCleanupFunc is called when a task managed by the TaskManager exits or
// is canceled, on every exit path.
type TaskCleanupFunc func()

// TaskManager manages the lifecycle of the acquisition goroutines of a device
// connection: the record polling loop and the per-channel stream readers.
//
// It provides a structured way to start, stop, and wait for goroutines. The
// lifecycle is bound to a context: when the context is canceled (or Stop is
// called), all running tasks are signaled to stop, and Wait blocks until they
// have terminated. Task functions run with panic protection so that a
// malformed device response cannot take down the caller.
type TaskManager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protects ctx and cancel
}

// NewTaskManager creates a new TaskManager with the given parent context and
// logger.
func NewTaskManager(ctx context.Context, l logger.Logger) *TaskManager {
	if l == nil {
		l = logger.GetLogger()
	}
	mgr := &TaskManager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// getContext safely returns the current context.
func (mgr *TaskManager) getContext() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Context returns the context that signals task cancellation.
func (mgr *TaskManager) Context() context.Context {
	return mgr.getContext()
}

// Start starts a new goroutine with the given name that invokes taskFunc in a
// loop until it returns false or the manager is stopped.
func (mgr *TaskManager) Start(name string, taskFunc TaskFunc) error {
	return mgr.StartWithCleanup(name, taskFunc, nil)
}

// StartWithCleanup starts a new goroutine like Start and additionally runs
// cleanupFunc when the task terminates, regardless of how it exits.
func (mgr *TaskManager) StartWithCleanup(name string, taskFunc TaskFunc, cleanupFunc TaskCleanupFunc) error {
	ctx := mgr.getContext()
	select {
	case <-ctx.Done():
		return fmt.Errorf("task manager already stopped, cannot start %s", name)
	default:
	}

	mgr.logger.Debug("start task", "name", name)
	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug(fmt.Sprintf("%s task terminated", name), "task_count", mgr.TaskCount())
		}()
		if cleanupFunc != nil {
			defer cleanupFunc()
		}

		mgr.runTaskLoop(name, taskFunc)
	}()

	return nil
}

// Stop signals all running tasks to terminate.
func (mgr *TaskManager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.cancel != nil {
		mgr.cancel()
	}
}

// Wait waits for all tasks to terminate, then rearms the manager so that new
// tasks can be started.
func (mgr *TaskManager) Wait() {
	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of currently running tasks.
func (mgr *TaskManager) TaskCount() int {
	return int(mgr.count.Load())
}

// runTaskLoop runs a task function in a loop with context cancellation and
// panic protection.
func (mgr *TaskManager) runTaskLoop(name string, taskFunc TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	for {
		ctx := mgr.getContext()
		select {
		case <-ctx.Done():
			return
		default:
			if !taskFunc() {
				return
			}
		}
	}
}
