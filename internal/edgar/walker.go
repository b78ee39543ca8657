package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"prospector/internal/domain"
	"prospector/internal/ports"
)

// IndexParseError reports a filing index that was present but contained no
// recognizable document list. Treated by callers as "zero candidates", never
// fatal to a run.
type IndexParseError struct {
	AccessionNumber string
	Reason          string
}

func (e *IndexParseError) Error() string {
	return fmt.Sprintf("filing %s: unparseable index: %s", e.AccessionNumber, e.Reason)
}

// WalkerConfig points the walker at the registry's JSON feeds.
type WalkerConfig struct {
	SubmissionsBaseURL string
	ArchiveBaseURL     string
	TickerIndexURL     string
}

// Walker enumerates a registrant's recent filings and each filing's document
// index. All network traffic goes through the shared rate-limited fetcher.
// Re-walking a scope is idempotent: the registry's output is append-only.
type Walker struct {
	fetcher *Fetcher
	cfg     WalkerConfig
	logger  *slog.Logger

	mu      sync.Mutex
	tickers map[string]domain.Company // lazily loaded symbol -> company, guarded by mu
}

var (
	_ ports.FilingSource       = (*Walker)(nil)
	_ ports.RegistrantResolver = (*Walker)(nil)
)

// NewWalker wires the fetcher; empty base URLs get registry defaults.
func NewWalker(fetcher *Fetcher, cfg WalkerConfig, logger *slog.Logger) *Walker {
	if cfg.SubmissionsBaseURL == "" {
		cfg.SubmissionsBaseURL = "https://data.sec.gov"
	}
	if cfg.ArchiveBaseURL == "" {
		cfg.ArchiveBaseURL = "https://www.sec.gov/Archives"
	}
	if cfg.TickerIndexURL == "" {
		cfg.TickerIndexURL = "https://www.sec.gov/files/company_tickers.json"
	}
	return &Walker{fetcher: fetcher, cfg: cfg, logger: logger}
}

// submissionsFeed mirrors the registry's columnar recent-filings shape.
type submissionsFeed struct {
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// ListFilings retrieves the registrant's recent filing list, most-recent-first,
// filtered client side to the scope's date range and form allow-list. The feed
// supports no server-side filtering, so filtering happens after one decode and
// before any per-filing index fetch.
func (w *Walker) ListFilings(ctx context.Context, cik string, scope domain.Scope) ([]domain.FilingReference, error) {
	url := fmt.Sprintf("%s/submissions/CIK%s.json", strings.TrimRight(w.cfg.SubmissionsBaseURL, "/"), padCIK(cik))
	raw, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("list filings for %s: %w", cik, err)
	}

	var feed submissionsFeed
	if err := json.Unmarshal(raw, &feed); err != nil {
		return nil, fmt.Errorf("decode submissions for %s: %w", cik, err)
	}

	recent := feed.Filings.Recent
	out := make([]domain.FilingReference, 0, len(recent.AccessionNumber))
	for i, accession := range recent.AccessionNumber {
		if i >= len(recent.FilingDate) || i >= len(recent.Form) {
			break
		}
		filed, err := time.Parse("2006-01-02", recent.FilingDate[i])
		if err != nil {
			continue
		}
		if !scope.Includes(filed) || !scope.AllowsForm(recent.Form[i]) {
			continue
		}
		ref := domain.FilingReference{
			CIK:             trimCIK(cik),
			AccessionNumber: accession,
			FormType:        recent.Form[i],
			FilingDate:      filed,
		}
		if i < len(recent.PrimaryDocument) {
			ref.PrimaryDocument = recent.PrimaryDocument[i]
		}
		out = append(out, ref)
		if scope.Limit > 0 && len(out) >= scope.Limit {
			break
		}
	}

	if w.logger != nil {
		w.logger.Debug("listed filings", "cik", cik, "in_scope", len(out))
	}
	return out, nil
}

// directoryIndex mirrors the registry's per-filing JSON directory listing.
type directoryIndex struct {
	Directory struct {
		Item []struct {
			Name        string `json:"name"`
			Size        string `json:"size"`
			Description string `json:"type"`
		} `json:"item"`
	} `json:"directory"`
}

// ListDocuments fetches and parses the filing's document index. Entries come
// back in index order with deterministically constructed absolute URLs.
func (w *Walker) ListDocuments(ctx context.Context, filing domain.FilingReference) ([]domain.DocumentEntry, error) {
	base := fmt.Sprintf("%s/edgar/data/%s/%s",
		strings.TrimRight(w.cfg.ArchiveBaseURL, "/"),
		trimCIK(filing.CIK),
		strings.ReplaceAll(filing.AccessionNumber, "-", ""))

	raw, err := w.fetcher.Fetch(ctx, base+"/index.json")
	if err != nil {
		return nil, fmt.Errorf("fetch index for %s: %w", filing.AccessionNumber, err)
	}

	var idx directoryIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, &IndexParseError{AccessionNumber: filing.AccessionNumber, Reason: err.Error()}
	}
	if len(idx.Directory.Item) == 0 {
		return nil, &IndexParseError{AccessionNumber: filing.AccessionNumber, Reason: "no document list"}
	}

	out := make([]domain.DocumentEntry, 0, len(idx.Directory.Item))
	for _, item := range idx.Directory.Item {
		if item.Name == "" || item.Name == "index.json" {
			continue
		}
		size, _ := strconv.ParseInt(strings.TrimSpace(item.Size), 10, 64)
		out = append(out, domain.DocumentEntry{
			AccessionNumber: filing.AccessionNumber,
			FileName:        item.Name,
			Size:            size,
			Description:     item.Description,
			Category:        categoryFor(item.Name),
			URL:             base + "/" + item.Name,
		})
	}
	return out, nil
}

// tickerIndex mirrors the registry's company index: a map of row number to
// {cik_str, ticker, title}.
type tickerIndex map[string]struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// ResolveRegistrant maps a ticker symbol to its registrant record. The company
// index is fetched once and cached for the process lifetime. One walker is
// shared across concurrent runs, so the cache load is serialized.
func (w *Walker) ResolveRegistrant(ctx context.Context, symbol string) (domain.Company, error) {
	tickers, err := w.loadTickers(ctx)
	if err != nil {
		return domain.Company{}, err
	}
	c, ok := tickers[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return domain.Company{}, fmt.Errorf("unknown ticker %q", symbol)
	}
	return c, nil
}

// loadTickers returns the cached company index, fetching it on first use.
// The mutex is held across the fetch so concurrent resolvers wait for one
// load instead of issuing duplicates.
func (w *Walker) loadTickers(ctx context.Context) (map[string]domain.Company, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tickers != nil {
		return w.tickers, nil
	}

	raw, err := w.fetcher.Fetch(ctx, w.cfg.TickerIndexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch ticker index: %w", err)
	}
	var idx tickerIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("decode ticker index: %w", err)
	}

	tickers := make(map[string]domain.Company, len(idx))
	for _, row := range idx {
		tickers[strings.ToUpper(row.Ticker)] = domain.Company{
			CIK:    strconv.FormatInt(row.CIK, 10),
			Name:   row.Title,
			Ticker: strings.ToUpper(row.Ticker),
		}
	}
	w.tickers = tickers
	return tickers, nil
}

func categoryFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".htm", ".html":
		return "html"
	case ".pdf":
		return "pdf"
	case ".txt":
		return "text"
	case ".xml", ".xsd":
		return "xml"
	case ".jpg", ".jpeg", ".png", ".gif":
		return "image"
	default:
		return "other"
	}
}

// padCIK zero-pads a registrant id to the 10 digits the submissions feed
// expects.
func padCIK(cik string) string {
	cik = trimCIK(cik)
	for len(cik) < 10 {
		cik = "0" + cik
	}
	return cik
}

// trimCIK strips leading zeros for archive paths.
func trimCIK(cik string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
