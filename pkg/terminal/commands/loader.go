package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/runtime/app"
)

// AppLoader returns the wired services, building them on first use.
type AppLoader func(ctx context.Context) (*app.App, error)

const pollInterval = 250 * time.Millisecond

// runUntilTerminal consumes tasks in-process until the report is READY or ERROR.
// Tasks were published by this process, so nothing is resumed.
func runUntilTerminal(ctx context.Context, a *app.App, reportID string, timeout time.Duration) (domain.ReportStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	runErr := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		runErr <- a.Queue.Consume(ctx, a.Engine.Handle)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := a.Engine.Status(ctx, reportID)
		if err != nil {
			return "", err
		}
		if status.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, fmt.Errorf("report %s still %s: %w", reportID, status, ctx.Err())
		case err := <-runErr:
			if err != nil {
				return status, fmt.Errorf("workflow stopped: %w", err)
			}
			runErr = nil
		case <-ticker.C:
		}
	}
}
