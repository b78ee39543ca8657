// Package edgar talks to the external filing registry: a rate-limited HTTP
// fetcher plus a walker over the registry's JSON filing and index feeds.
package edgar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// FetchError describes a failed registry request. Transient errors (network,
// 5xx, explicit rate-limit) were retried up to the configured ceiling before
// surfacing; non-transient errors fail immediately.
type FetchError struct {
	URL        string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a FetchError marked transient.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}

// RequestRecorder observes outbound request telemetry.
type RequestRecorder interface {
	RecordRequest(status int, latency time.Duration)
}

// FetcherConfig bounds outbound traffic to the registry.
type FetcherConfig struct {
	MinInterval time.Duration
	UserAgent   string
	MaxRetries  int
	BackoffBase time.Duration
	Timeout     time.Duration
}

// Fetcher wraps outbound registry calls with a process-wide request-rate
// floor, the mandatory identification header, and bounded retry/backoff.
// The limiter is shared state: concurrent callers all observe the same floor.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	cfg      FetcherConfig
	recorder RequestRecorder
}

// NewFetcher wires an HTTP client; a nil client gets a default with the
// configured timeout.
func NewFetcher(cfg FetcherConfig, client *http.Client, recorder RequestRecorder) *Fetcher {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 100 * time.Millisecond
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		cfg:      cfg,
		recorder: recorder,
	}
}

// Fetch retrieves url, honoring the rate floor and retrying transient
// failures with exponential backoff up to the configured ceiling.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	attempt := func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		req.Header.Set("Accept", "application/json, */*")

		start := time.Now()
		resp, err := f.client.Do(req)
		if err != nil {
			f.record(0, time.Since(start))
			return &FetchError{URL: url, Transient: true, Err: err}
		}
		defer resp.Body.Close()
		f.record(resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return &FetchError{URL: url, Transient: true, Err: err}
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &FetchError{URL: url, StatusCode: resp.StatusCode, Transient: true}
		default:
			return backoff.Permanent(&FetchError{URL: url, StatusCode: resp.StatusCode, Transient: false})
		}
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = f.cfg.BackoffBase
	expo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(f.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) record(status int, latency time.Duration) {
	if f.recorder != nil {
		f.recorder.RecordRequest(status, latency)
	}
}
