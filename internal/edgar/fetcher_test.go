package edgar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestFetcher(t *testing.T, cfg FetcherConfig) *Fetcher {
	t.Helper()
	if cfg.UserAgent == "" {
		cfg.UserAgent = "prospector-test admin@example.com"
	}
	return NewFetcher(cfg, nil, nil)
}

func TestFetch_SetsIdentificationHeader(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, FetcherConfig{MinInterval: time.Millisecond, UserAgent: "acme research ops@acme.test"})
	body, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}
	if gotUA != "acme research ops@acme.test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestFetch_EnforcesMinimumSpacing(t *testing.T) {
	var mu sync.Mutex
	var arrivals []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	const interval = 40 * time.Millisecond
	f := newTestFetcher(t, FetcherConfig{MinInterval: interval})

	// Concurrent callers share the limiter; spacing must hold across all.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
				t.Errorf("Fetch() error = %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(arrivals) != 4 {
		t.Fatalf("got %d requests, want 4", len(arrivals))
	}
	for i := 1; i < len(arrivals); i++ {
		gap := arrivals[i].Sub(arrivals[i-1])
		// Allow a small scheduling tolerance below the configured floor.
		if gap < interval-10*time.Millisecond {
			t.Errorf("gap %d = %v, want >= %v", i, gap, interval)
		}
	}
}

func TestFetch_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, FetcherConfig{
		MinInterval: time.Millisecond,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
	})
	body, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(body) != "recovered" {
		t.Errorf("body = %q", body)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

func TestFetch_TooManyRequestsIsTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, FetcherConfig{
		MinInterval: time.Millisecond,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	})
	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch() after 429 error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestFetch_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, FetcherConfig{
		MinInterval: time.Millisecond,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
	})
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if IsTransient(err) {
		t.Error("404 should not be transient")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server saw %d calls, want 1 (no retry on 4xx)", got)
	}
}

func TestFetch_ExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newTestFetcher(t, FetcherConfig{
		MinInterval: time.Millisecond,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	})
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !IsTransient(err) {
		t.Errorf("exhausted 503 should surface as transient, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server saw %d calls, want 3 (initial + 2 retries)", got)
	}
}

func TestFetch_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(t, FetcherConfig{
		MinInterval: time.Millisecond,
		MaxRetries:  10,
		BackoffBase: time.Hour, // retry wait should be interrupted by cancel
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, srv.URL)
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch did not respect cancellation, took %v", elapsed)
	}
}
