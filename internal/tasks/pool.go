// Package tasks runs best-effort background work after content is persisted.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind names a background task.
type Kind string

const (
	KindLearningStyleRefresh Kind = "learning_style_refresh"
	KindEvaluationRecompute  Kind = "evaluation_recompute"
)

// Task is one unit of background work for a persisted content item.
type Task struct {
	Kind      Kind
	TopicID   string
	ContentID string
	attempt   int
}

// HandlerFunc processes a task. Errors are logged and retried up to the pool's attempt limit.
type HandlerFunc func(ctx context.Context, t Task) error

const (
	defaultWorkers     = 2
	defaultQueueSize   = 256
	defaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

// Pool consumes tasks from a bounded queue with a fixed number of workers.
// Enqueue never blocks; a full queue drops the task and logs it.
type Pool struct {
	queue       chan Task
	workers     int
	maxAttempts int
	retryDelay  time.Duration

	mu       sync.RWMutex
	handlers map[Kind]HandlerFunc
	closed   bool

	wg sync.WaitGroup
}

// NewPool creates a pool. Call Start to begin processing.
func NewPool(cfg PoolConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return &Pool{
		queue:       make(chan Task, size),
		workers:     workers,
		maxAttempts: attempts,
		retryDelay:  delay,
		handlers:    make(map[Kind]HandlerFunc),
	}
}

// Register sets the handler for a task kind.
func (p *Pool) Register(kind Kind, h HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

// Start launches the workers. They exit when ctx is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	slog.Info("starting background task pool", "workers", p.workers, "queue_size", cap(p.queue))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i+1)
	}
}

// Enqueue schedules t and reports whether it was accepted.
func (p *Pool) Enqueue(t Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- t:
		return true
	default:
		slog.Warn("background task dropped, queue full",
			"task", t.Kind,
			"content_id", t.ContentID,
		)
		return false
	}
}

// Stop closes the queue and waits for workers to drain it.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			slog.Info("task worker stopped", "worker_id", workerID)
			return
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, t)
		}
	}
}

func (p *Pool) process(ctx context.Context, t Task) {
	p.mu.RLock()
	h, ok := p.handlers[t.Kind]
	p.mu.RUnlock()
	if !ok {
		slog.Warn("no handler registered for task", "task", t.Kind, "content_id", t.ContentID)
		return
	}

	for t.attempt = 1; t.attempt <= p.maxAttempts; t.attempt++ {
		err := safeCall(ctx, h, t)
		if err == nil {
			return
		}
		slog.Error("background task failed",
			"task", t.Kind,
			"content_id", t.ContentID,
			"attempt", t.attempt,
			"error", err,
		)
		if t.attempt == p.maxAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryDelay):
		}
	}
}

func safeCall(ctx context.Context, h HandlerFunc, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, t)
}

// Attempt returns the 1-based attempt number while a handler runs.
func (t Task) Attempt() int {
	return t.attempt
}
