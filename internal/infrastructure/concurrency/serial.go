// Package concurrency runs room handlers one at a time per room.
//
// Every job submitted under the same key runs to completion before the next
// one starts, in submission order. Jobs under different keys run in
// parallel. A key's goroutine exits as soon as its queue drains, so idle
// rooms hold no resources.
package concurrency

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("executor closed")

// Executor schedules jobs on per-key lanes.
type Executor interface {
	Submit(key string, job func()) error
}

type lane struct {
	queue []func()
}

// SerialExecutor is the production Executor.
type SerialExecutor struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewSerialExecutor creates an executor with no lanes.
func NewSerialExecutor(logger *zap.Logger) *SerialExecutor {
	return &SerialExecutor{
		lanes:  make(map[string]*lane),
		logger: logger,
	}
}

// Submit queues job on key's lane, starting the lane if it is idle.
func (e *SerialExecutor) Submit(key string, job func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if l, ok := e.lanes[key]; ok {
		l.queue = append(l.queue, job)
		return nil
	}

	l := &lane{queue: []func(){job}}
	e.lanes[key] = l
	e.wg.Add(1)
	go e.drain(key, l)
	return nil
}

func (e *SerialExecutor) drain(key string, l *lane) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		if len(l.queue) == 0 {
			delete(e.lanes, key)
			e.mu.Unlock()
			return
		}
		job := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		e.mu.Unlock()

		e.run(key, job)
	}
}

func (e *SerialExecutor) run(key string, job func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Room job panicked",
				zap.String("lane", key),
				zap.Any("panic", r),
			)
		}
	}()
	job()
}

// Lanes returns the number of active lanes.
func (e *SerialExecutor) Lanes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.lanes)
}

// Close stops accepting jobs and waits for queued ones to finish or for ctx
// to expire.
func (e *SerialExecutor) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inline runs every job synchronously on the caller's goroutine.
type Inline struct{}

// Submit runs job immediately.
func (Inline) Submit(_ string, job func()) error {
	job()
	return nil
}
