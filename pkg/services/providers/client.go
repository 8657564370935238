package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/de-tools/market-atlas/pkg/models/domain"
)

const maxErrorBody = 512

type ClientOptions struct {
	Timeout          time.Duration
	RatePerSecond    float64
	Burst            int
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HTTPClient       *http.Client
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:          15 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
	}
}

// Client is the per-provider HTTP transport. Calls wait on a rate limiter and run
// behind a circuit breaker that opens after consecutive transport or 5xx failures.
type Client struct {
	provider domain.Provider
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(provider domain.Provider, opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        string(provider),
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500 && !se.RateLimited()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Client{
		provider: provider,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  breaker,
	}
}

func (c *Client) State() string {
	return c.breaker.State().String()
}

func (c *Client) Do(ctx context.Context, method, rawURL string, header http.Header, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	return c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encode request: %w", err)
			}
			reader = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, redact(rawURL), err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= http.StatusBadRequest {
			text := strings.TrimSpace(string(payload))
			if len(text) > maxErrorBody {
				text = text[:maxErrorBody]
			}
			return nil, &StatusError{Code: resp.StatusCode, Body: text}
		}
		return payload, nil
	})
}

func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) ([]byte, error) {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	payload, err := c.Do(ctx, http.MethodGet, rawURL, header, nil)
	if err != nil {
		return nil, err
	}
	return payload, decode(payload, out)
}

func (c *Client) PostJSON(ctx context.Context, rawURL string, header http.Header, body, out any) ([]byte, error) {
	payload, err := c.Do(ctx, http.MethodPost, rawURL, header, body)
	if err != nil {
		return nil, err
	}
	return payload, decode(payload, out)
}

func decode(payload []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	return nil
}

// redact drops the query string, which may carry access keys.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
