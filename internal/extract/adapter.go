// Package extract is the boundary to the structured-extraction service: it
// maps raw document text to typed mining-report fields, or reports the
// document as unextractable.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"prospector/internal/domain"
	"prospector/internal/ports"
)

// ErrUnextractable marks a document the service could not map to structured
// fields, including calls that hit the extraction timeout. Callers persist
// the document with failed status instead of dropping it.
var ErrUnextractable = errors.New("document not extractable")

// Config wires the extraction endpoint.
type Config struct {
	Endpoint      string
	APIKey        string
	Model         string
	Timeout       time.Duration
	MaxInputBytes int
	MaxRetries    int
}

// Client implements ports.Extractor against an LLM extraction API.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ ports.Extractor = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = 120 * 1024
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type extractRequest struct {
	Model    string `json:"model,omitempty"`
	Document string `json:"document"`
	Company  string `json:"company,omitempty"`
	FormType string `json:"form_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

type extractResponse struct {
	Extractable     bool     `json:"extractable"`
	Commodity       string   `json:"commodity"`
	Stage           string   `json:"stage"`
	ProjectNames    []string `json:"project_names"`
	NetPresentValue *float64 `json:"npv_usd"`
	InternalRate    *float64 `json:"irr_pct"`
	Confidence      float64  `json:"confidence"`
}

// Extract posts the document text with filing hints and decodes the typed
// fields. Input beyond the configured bound is truncated before the call;
// a deadline hit or an explicit negative verdict maps to ErrUnextractable.
func (c *Client) Extract(ctx context.Context, text string, hints ports.ExtractionHints) (domain.ExtractedFields, error) {
	if c.cfg.Endpoint == "" {
		return domain.ExtractedFields{}, fmt.Errorf("extraction client misconfigured: no endpoint")
	}
	if len(text) > c.cfg.MaxInputBytes {
		text = text[:c.cfg.MaxInputBytes]
	}

	body, err := json.Marshal(extractRequest{
		Model:    c.cfg.Model,
		Document: text,
		Company:  hints.CompanyName,
		FormType: hints.FormType,
		FileName: hints.FileName,
	})
	if err != nil {
		return domain.ExtractedFields{}, fmt.Errorf("marshal extraction payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var decoded extractResponse
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("new request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("extraction service %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return backoff.Permanent(fmt.Errorf("extraction error %s: %s", resp.Status, strings.TrimSpace(string(payload))))
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("decode extraction response: %w", err))
		}
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		if ctx.Err() != nil {
			return domain.ExtractedFields{}, ErrUnextractable
		}
		return domain.ExtractedFields{}, err
	}

	if !decoded.Extractable {
		return domain.ExtractedFields{}, ErrUnextractable
	}

	return domain.ExtractedFields{
		Commodity:       domain.NormalizeCommodity(decoded.Commodity),
		Stage:           domain.NormalizeStage(decoded.Stage),
		ProjectNames:    decoded.ProjectNames,
		NetPresentValue: decoded.NetPresentValue,
		InternalRate:    decoded.InternalRate,
		Confidence:      decoded.Confidence,
	}, nil
}
