package queue

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/de-tools/market-atlas/pkg/models/domain"
)

// MemoryQueue is an in-process queue drained by a fixed pool of workers.
// Handlers may publish follow-up tasks without blocking.
type MemoryQueue struct {
	workers     int
	maxAttempts int

	mu      sync.Mutex
	pending []domain.Task
	closed  bool

	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewMemoryQueue uses GOMAXPROCS workers when workers is not positive.
func NewMemoryQueue(workers, maxAttempts int) *MemoryQueue {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers <= 0 {
			workers = 1
		}
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &MemoryQueue{
		workers:     workers,
		maxAttempts: maxAttempts,
		signal:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

func (q *MemoryQueue) Publish(_ context.Context, task domain.Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, task)
	q.mu.Unlock()

	q.notify()
	return nil
}

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	var wg sync.WaitGroup
	wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go func() {
			defer wg.Done()
			q.worker(ctx, handler)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (q *MemoryQueue) Close() error {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
	return nil
}

func (q *MemoryQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) next(ctx context.Context) (domain.Task, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			task := q.pending[0]
			q.pending = q.pending[1:]
			more := len(q.pending) > 0
			q.mu.Unlock()
			if more {
				q.notify()
			}
			return task, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return domain.Task{}, false
		case <-q.done:
			return domain.Task{}, false
		}
	}
}

func (q *MemoryQueue) worker(ctx context.Context, handler Handler) {
	for {
		task, ok := q.next(ctx)
		if !ok {
			return
		}

		err := invoke(ctx, handler, task)
		if err == nil {
			continue
		}

		logger := zerolog.Ctx(ctx).With().
			Str("task", task.ID).
			Str("kind", string(task.Kind)).
			Int("attempt", task.Attempt).
			Logger()

		if !retryable(task, q.maxAttempts) {
			logger.Error().Err(err).Msg("task failed, giving up")
			continue
		}

		logger.Warn().Err(err).Msg("task failed, redelivering")
		task.Attempt++
		if err := q.Publish(ctx, task); err != nil {
			logger.Error().Err(err).Msg("failed to redeliver task")
		}
	}
}
