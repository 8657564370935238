package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/de-tools/market-atlas/pkg/models/domain"
)

// ErrNotConfigured is returned by a factory when the provider's secrets are absent.
var ErrNotConfigured = errors.New("provider not configured")

// Request carries everything an adapter may read. Adapters never look elsewhere.
type Request struct {
	SubjectName string
	Credentials domain.Credentials
	// Bearer is the user-granted token for private providers; empty for public ones.
	Bearer string
	Now    time.Time
}

// Adapter fetches one provider's slice of metrics and normalises units.
// Fetch has no side effects beyond the outbound call and never retries.
type Adapter interface {
	Name() domain.Provider
	Phase() domain.Phase
	Requires() []domain.Field
	Fetch(ctx context.Context, req Request) (domain.Readings, error)
}

// AdapterError is the only error an adapter returns.
type AdapterError struct {
	Provider domain.Provider
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

func failure(p domain.Provider, err error) error {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return err
	}
	return &AdapterError{Provider: p, Err: err}
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) RateLimited() bool {
	return e.Code == 429
}

type baseAdapter struct {
	name     domain.Provider
	phase    domain.Phase
	requires []domain.Field
}

func (b baseAdapter) Name() domain.Provider { return b.name }

func (b baseAdapter) Phase() domain.Phase { return b.phase }

func (b baseAdapter) Requires() []domain.Field {
	out := make([]domain.Field, len(b.requires))
	copy(out, b.requires)
	return out
}

// value builds a reading sharing one raw payload across the metrics of a response.
func value(v *float64, raw []byte) domain.Reading {
	return domain.Reading{Value: v, Raw: raw}
}

func rawOf(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
