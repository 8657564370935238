package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/de-tools/market-atlas/pkg/models/domain"
)

var ErrClosed = errors.New("queue closed")

// Handler processes one task. A returned error asks for redelivery.
type Handler func(ctx context.Context, task domain.Task) error

// Queue delivers workflow tasks at least once.
type Queue interface {
	Publish(ctx context.Context, task domain.Task) error
	// Consume runs handler for delivered tasks until ctx is done or the queue is closed.
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// invoke runs the handler and converts a panic into an error.
func invoke(ctx context.Context, handler Handler, task domain.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	return handler(ctx, task)
}

// retryable reports whether a failed delivery should be attempted again.
func retryable(task domain.Task, maxAttempts int) bool {
	return task.Attempt+1 < maxAttempts
}
