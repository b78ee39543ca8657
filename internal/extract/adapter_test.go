package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"prospector/internal/domain"
	"prospector/internal/ports"
)

func TestExtract_MapsResponseFields(t *testing.T) {
	var gotAuth string
	var gotReq extractRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"extractable":   true,
			"commodity":     "Cu",
			"stage":         "Pre-Feasibility",
			"project_names": []string{"Red Canyon"},
			"npv_usd":       1.2e9,
			"irr_pct":       22.5,
			"confidence":    0.87,
		})
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "sk-test", Model: "extract-v1"})
	fields, err := c.Extract(context.Background(), "technical report body", ports.ExtractionHints{
		FormType: "10-K",
		FileName: "ex96-1.htm",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "extract-v1" || gotReq.FormType != "10-K" || gotReq.FileName != "ex96-1.htm" {
		t.Errorf("request hints = %+v", gotReq)
	}
	if fields.Commodity != domain.CommodityCopper {
		t.Errorf("commodity = %q", fields.Commodity)
	}
	if fields.Stage != domain.StagePrefeasibility {
		t.Errorf("stage = %q", fields.Stage)
	}
	if len(fields.ProjectNames) != 1 || fields.ProjectNames[0] != "Red Canyon" {
		t.Errorf("projects = %v", fields.ProjectNames)
	}
	if fields.NetPresentValue == nil || *fields.NetPresentValue != 1.2e9 {
		t.Errorf("npv = %v", fields.NetPresentValue)
	}
	if fields.Confidence != 0.87 {
		t.Errorf("confidence = %v", fields.Confidence)
	}
}

func TestExtract_NotExtractable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"extractable": false})
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	_, err := c.Extract(context.Background(), "a cover letter", ports.ExtractionHints{})
	if !errors.Is(err, ErrUnextractable) {
		t.Errorf("error = %v, want ErrUnextractable", err)
	}
}

func TestExtract_TimeoutIsUnextractable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]any{"extractable": true})
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Extract(context.Background(), "slow doc", ports.ExtractionHints{})
	if !errors.Is(err, ErrUnextractable) {
		t.Errorf("error = %v, want ErrUnextractable", err)
	}
}

func TestExtract_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"extractable": true, "commodity": "gold", "confidence": 0.5})
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, MaxRetries: 2})
	fields, err := c.Extract(context.Background(), "doc", ports.ExtractionHints{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if fields.Commodity != domain.CommodityGold {
		t.Errorf("commodity = %q", fields.Commodity)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestExtract_BadRequestNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "document too large", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, MaxRetries: 3})
	_, err := c.Extract(context.Background(), "doc", ports.ExtractionHints{})
	if err == nil {
		t.Fatal("expected error for 400")
	}
	if errors.Is(err, ErrUnextractable) {
		t.Error("service rejection is not the unextractable verdict")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server saw %d calls, want 1", got)
	}
}

func TestExtract_TruncatesOversizeInput(t *testing.T) {
	var gotLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotLen = len(req.Document)
		json.NewEncoder(w).Encode(map[string]any{"extractable": true})
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, MaxInputBytes: 1000})
	if _, err := c.Extract(context.Background(), strings.Repeat("x", 5000), ports.ExtractionHints{}); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if gotLen != 1000 {
		t.Errorf("sent %d bytes, want 1000", gotLen)
	}
}
