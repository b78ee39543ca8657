// Package scrape drives the filing-discovery pipeline: walk filings, classify
// documents, drop duplicates, extract fields, persist, and report progress.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"prospector/internal/classify"
	"prospector/internal/dedup"
	"prospector/internal/domain"
	"prospector/internal/edgar"
	"prospector/internal/extract"
	"prospector/internal/ports"
	"prospector/internal/progress"
	"prospector/internal/stats"
)

var (
	// ErrAlreadyRunning rejects a second start for a scope that already has a
	// running orchestration. The dedup registry and progress buffer are
	// scope-scoped; two concurrent runs over one scope would race on them.
	ErrAlreadyRunning = errors.New("a run is already active for this scope")
	// ErrNotFound reports an unknown run id.
	ErrNotFound = errors.New("run not found")
)

const (
	incrementalWindow = 30 * 24 * time.Hour
	finishTimeout     = 10 * time.Second
)

// Deps wires all collaborators into the orchestrator.
type Deps struct {
	Source     ports.FilingSource
	Resolver   ports.RegistrantResolver
	Classifier *classify.Classifier
	Documents  ports.DocumentStore
	Companies  ports.CompanyStore
	Runs       ports.RunStore
	Extractor  ports.Extractor   // nil skips the extraction stage
	Bodies     ports.BodyFetcher // required when Extractor is set
	Progress   *progress.Channel
	Stats      *stats.Collector
	Logger     *slog.Logger
	Workers    int
	Watchlist  []string // registrants for global (no-registrant) scopes
	FormTypes  []string // default form allow-list when a request names none
}

// StartRequest is the trigger-surface payload for a new run.
type StartRequest struct {
	Mode        domain.RunMode
	DateFrom    time.Time
	DateTo      time.Time
	Registrants []string
	FormTypes   []string
	Limit       int
}

// Orchestrator owns the run state machine and the per-scope run registry.
// Exactly one running orchestration is permitted per logical scope; disjoint
// scopes run concurrently with independent dedup registries.
type Orchestrator struct {
	deps Deps

	mu     sync.Mutex
	active map[string]*activeRun // scope key -> running
	byID   map[string]*activeRun // run id -> running
}

type activeRun struct {
	mu      sync.Mutex
	rec     domain.RunRecord
	stopped bool
}

func (a *activeRun) snapshot() domain.RunRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec
}

func (a *activeRun) requestStop() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
}

func (a *activeRun) stopRequested() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

// New builds an orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Workers <= 0 {
		deps.Workers = 4
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		deps:   deps,
		active: make(map[string]*activeRun),
		byID:   make(map[string]*activeRun),
	}
}

// Start validates the request, records a RunRecord with status running, and
// launches the run body in the background. It returns immediately; callers
// poll status or subscribe to progress. A start for a scope that is already
// running returns ErrAlreadyRunning without creating a RunRecord.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (domain.RunRecord, error) {
	scope, err := o.scopeFor(req)
	if err != nil {
		return domain.RunRecord{}, err
	}
	key := scope.Key()

	rec := domain.RunRecord{
		ID:        uuid.New().String()[:8],
		Mode:      req.Mode,
		Scope:     scope,
		Status:    domain.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	ar := &activeRun{rec: rec}

	o.mu.Lock()
	if _, busy := o.active[key]; busy {
		o.mu.Unlock()
		return domain.RunRecord{}, ErrAlreadyRunning
	}
	o.active[key] = ar
	o.byID[rec.ID] = ar
	o.mu.Unlock()

	if err := o.deps.Runs.CreateRun(ctx, rec); err != nil {
		o.remove(key, rec.ID)
		return domain.RunRecord{}, fmt.Errorf("record run start: %w", err)
	}
	if o.deps.Stats != nil {
		o.deps.Stats.RecordRunStarted()
	}

	go o.run(context.Background(), key, ar)
	return rec, nil
}

// Stop requests cooperative cancellation of a running run. The request is
// observed at the next per-filing boundary, never mid-filing, so no
// partially-classified document set is persisted.
func (o *Orchestrator) Stop(runID string) error {
	o.mu.Lock()
	ar, ok := o.byID[runID]
	o.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	ar.requestStop()
	return nil
}

// Shutdown requests cooperative stop of every active run. Like Stop, the
// request takes effect at filing boundaries; callers wanting to block can
// poll Get until the runs report a terminal status.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	for _, ar := range o.byID {
		ar.requestStop()
	}
	o.mu.Unlock()
}

// Get returns the current record for a run: live state for active runs,
// the stored record otherwise.
func (o *Orchestrator) Get(ctx context.Context, runID string) (domain.RunRecord, error) {
	o.mu.Lock()
	ar, ok := o.byID[runID]
	o.mu.Unlock()
	if ok {
		return ar.snapshot(), nil
	}
	rec, err := o.deps.Runs.GetRun(ctx, runID)
	if err != nil {
		return domain.RunRecord{}, err
	}
	return rec, nil
}

func (o *Orchestrator) remove(key, runID string) {
	o.mu.Lock()
	delete(o.active, key)
	delete(o.byID, runID)
	o.mu.Unlock()
}

// scopeFor derives the run scope from the request. Incremental runs without
// an explicit range default to a recent window; targeted runs require
// registrants. A request naming no form types inherits the configured
// allow-list; an empty configured list admits every form.
func (o *Orchestrator) scopeFor(req StartRequest) (domain.Scope, error) {
	if _, err := domain.ParseRunMode(string(req.Mode)); err != nil {
		return domain.Scope{}, err
	}
	forms := req.FormTypes
	if len(forms) == 0 {
		forms = o.deps.FormTypes
	}
	scope := domain.Scope{
		Registrants: req.Registrants,
		DateFrom:    req.DateFrom,
		DateTo:      req.DateTo,
		FormTypes:   forms,
		Limit:       req.Limit,
	}
	switch req.Mode {
	case domain.ModeIncremental:
		if scope.DateFrom.IsZero() {
			scope.DateFrom = time.Now().UTC().Add(-incrementalWindow)
		}
	case domain.ModeTargeted:
		if len(scope.Registrants) == 0 {
			return domain.Scope{}, errors.New("targeted mode requires registrants")
		}
	case domain.ModeBackfill:
		if scope.DateFrom.IsZero() || scope.DateTo.IsZero() {
			return domain.Scope{}, errors.New("backfill mode requires dateFrom and dateTo")
		}
	}
	return scope, nil
}

type counters struct {
	scanned int64
	found   int64
	newDocs int64
	errs    int64
}

func (c *counters) snapshot() domain.RunCounters {
	return domain.RunCounters{
		FilingsScanned: int(atomic.LoadInt64(&c.scanned)),
		DocumentsFound: int(atomic.LoadInt64(&c.found)),
		DocumentsNew:   int(atomic.LoadInt64(&c.newDocs)),
		Errors:         int(atomic.LoadInt64(&c.errs)),
	}
}

// run is the run body. Per-filing failures are counted and skipped; the run
// fails outright only when the store itself is unreachable.
func (o *Orchestrator) run(ctx context.Context, key string, ar *activeRun) {
	rec := ar.snapshot()
	log := o.deps.Logger.With("run_id", rec.ID, "scope", key, "mode", string(rec.Mode))
	defer o.remove(key, rec.ID) // idempotent; finish and fail release earlier

	o.deps.Progress.Publish(progress.Event{Type: progress.EventStarted, Payload: rec})
	log.Info("run started", "registrants", len(rec.Scope.Registrants))

	registry := dedup.New()
	if err := registry.Load(ctx, o.deps.Documents); err != nil {
		o.fail(ar, key, fmt.Errorf("seed dedup registry: %w", err))
		return
	}

	var c counters
	registrants, err := o.resolveRegistrants(ctx, rec.Scope, &c, log)
	if err != nil {
		o.fail(ar, key, err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.deps.Workers)

walk:
	for _, cik := range registrants {
		if o.shouldStop(ctx, ar) {
			break
		}
		filings, err := o.deps.Source.ListFilings(gctx, cik, rec.Scope)
		if err != nil {
			atomic.AddInt64(&c.errs, 1)
			log.Warn("filing list failed", "cik", cik, "error", err)
			continue
		}
		for _, filing := range filings {
			if o.shouldStop(ctx, ar) {
				break walk
			}
			filing := filing
			g.Go(func() error {
				o.processFiling(gctx, rec, filing, registry, &c, log)
				return nil
			})
		}
	}
	_ = g.Wait()

	o.finish(ar, key, c.snapshot(), o.shouldStop(ctx, ar))
}

func (o *Orchestrator) shouldStop(ctx context.Context, ar *activeRun) bool {
	return ctx.Err() != nil || ar.stopRequested()
}

// resolveRegistrants expands the scope's registrant set, falling back to the
// configured watchlist for global scopes and resolving ticker symbols to
// registry identifiers.
func (o *Orchestrator) resolveRegistrants(ctx context.Context, scope domain.Scope, c *counters, log *slog.Logger) ([]string, error) {
	regs := scope.Registrants
	if len(regs) == 0 {
		regs = o.deps.Watchlist
	}
	if len(regs) == 0 {
		return nil, errors.New("no registrants in scope and no watchlist configured")
	}

	out := make([]string, 0, len(regs))
	for _, r := range regs {
		if isNumeric(r) {
			out = append(out, r)
			continue
		}
		if o.deps.Resolver == nil {
			atomic.AddInt64(&c.errs, 1)
			log.Warn("cannot resolve ticker without resolver", "symbol", r)
			continue
		}
		company, err := o.deps.Resolver.ResolveRegistrant(ctx, r)
		if err != nil {
			atomic.AddInt64(&c.errs, 1)
			log.Warn("ticker resolution failed", "symbol", r, "error", err)
			continue
		}
		if o.deps.Companies != nil {
			if err := o.deps.Companies.UpsertCompany(ctx, company); err != nil {
				log.Warn("company upsert failed", "cik", company.CIK, "error", err)
			}
		}
		out = append(out, company.CIK)
	}
	if len(out) == 0 {
		return nil, errors.New("no resolvable registrants in scope")
	}
	return out, nil
}

// processFiling handles one filing end to end: list documents, classify in
// index order, claim against the dedup registry, extract, persist, publish.
// Any failure here is recorded and the walk proceeds.
func (o *Orchestrator) processFiling(ctx context.Context, rec domain.RunRecord, filing domain.FilingReference, registry *dedup.Registry, c *counters, log *slog.Logger) {
	atomic.AddInt64(&c.scanned, 1)

	docs, err := o.deps.Source.ListDocuments(ctx, filing)
	if err != nil {
		atomic.AddInt64(&c.errs, 1)
		var parseErr *edgar.IndexParseError
		if errors.As(err, &parseErr) {
			log.Warn("filing index unparseable", "accession", filing.AccessionNumber)
		} else {
			log.Warn("filing index fetch failed", "accession", filing.AccessionNumber, "error", err)
		}
		return
	}

	for _, entry := range docs {
		verdict := o.deps.Classifier.Classify(entry)
		if !verdict.IsCandidate {
			continue
		}
		atomic.AddInt64(&c.found, 1)

		if !registry.Claim(entry.Key()) {
			continue
		}
		atomic.AddInt64(&c.newDocs, 1)

		doc := domain.ExtractedDocument{
			AccessionNumber: entry.AccessionNumber,
			FileName:        entry.FileName,
			CIK:             filing.CIK,
			FormType:        filing.FormType,
			FilingDate:      filing.FilingDate,
			Size:            entry.Size,
			Description:     entry.Description,
			URL:             entry.URL,
			Classification:  verdict,
			Status:          domain.StatusPending,
			RunID:           rec.ID,
			DiscoveredAt:    time.Now().UTC(),
		}
		o.extractInto(ctx, &doc, log)

		if _, err := o.deps.Documents.UpsertDocument(ctx, doc); err != nil {
			atomic.AddInt64(&c.errs, 1)
			log.Warn("document upsert failed", "key", doc.Key().String(), "error", err)
			continue
		}
		o.persistCompanyAndProjects(ctx, doc, log)
		o.deps.Progress.Publish(progress.Event{Type: progress.EventDocumentFound, Payload: doc})
	}
}

// extractInto runs the optional extraction stage. An extraction failure
// degrades the document to failed status; it is still persisted with its
// classification metadata so operators can retry extraction later without
// re-crawling.
func (o *Orchestrator) extractInto(ctx context.Context, doc *domain.ExtractedDocument, log *slog.Logger) {
	if o.deps.Extractor == nil || o.deps.Bodies == nil {
		return
	}

	body, err := o.deps.Bodies.Fetch(ctx, doc.URL)
	if err != nil {
		doc.Status = domain.StatusFailed
		log.Warn("document body fetch failed", "key", doc.Key().String(), "error", err)
		return
	}

	fields, err := o.deps.Extractor.Extract(ctx, string(body), ports.ExtractionHints{
		FormType: doc.FormType,
		FileName: doc.FileName,
	})
	if err != nil {
		doc.Status = domain.StatusFailed
		if !errors.Is(err, extract.ErrUnextractable) {
			log.Warn("extraction failed", "key", doc.Key().String(), "error", err)
		}
		return
	}
	doc.Fields = &fields
	doc.Status = domain.StatusProcessed
}

func (o *Orchestrator) persistCompanyAndProjects(ctx context.Context, doc domain.ExtractedDocument, log *slog.Logger) {
	if o.deps.Companies == nil {
		return
	}
	if err := o.deps.Companies.UpsertCompany(ctx, domain.Company{CIK: doc.CIK}); err != nil {
		log.Warn("company upsert failed", "cik", doc.CIK, "error", err)
	}
	if doc.Fields == nil {
		return
	}
	for _, name := range doc.Fields.ProjectNames {
		project := domain.Project{
			CompanyCIK: doc.CIK,
			Name:       name,
			Commodity:  doc.Fields.Commodity,
			Stage:      doc.Fields.Stage,
		}
		if err := o.deps.Companies.UpsertProject(ctx, project); err != nil {
			log.Warn("project upsert failed", "project", name, "error", err)
		}
	}
}

// finish transitions the run to completed, carrying final counters and the
// cancellation flag. A cancelled run completes; it does not fail. The scope
// is released before the terminal record is written, so a caller observing
// completion can immediately start a fresh run over the same scope.
func (o *Orchestrator) finish(ar *activeRun, key string, final domain.RunCounters, cancelled bool) {
	now := time.Now().UTC()
	ar.mu.Lock()
	ar.rec.Counters = final
	ar.rec.Status = domain.RunCompleted
	ar.rec.WasCancelled = cancelled
	ar.rec.FinishedAt = &now
	rec := ar.rec
	ar.mu.Unlock()

	o.remove(key, rec.ID)
	o.persistFinal(rec)
	if o.deps.Stats != nil {
		o.deps.Stats.RecordRunFinished(false, final.DocumentsNew)
	}
	o.deps.Progress.Publish(progress.Event{Type: progress.EventCompleted, Payload: rec})
	o.deps.Logger.Info("run completed",
		"run_id", rec.ID,
		"scanned", final.FilingsScanned,
		"found", final.DocumentsFound,
		"new", final.DocumentsNew,
		"errors", final.Errors,
		"cancelled", cancelled)
}

// fail transitions the run to failed. Reserved for unrecoverable conditions;
// per-filing trouble is counted, not fatal.
func (o *Orchestrator) fail(ar *activeRun, key string, cause error) {
	now := time.Now().UTC()
	ar.mu.Lock()
	ar.rec.Status = domain.RunFailed
	ar.rec.FinishedAt = &now
	rec := ar.rec
	ar.mu.Unlock()

	o.remove(key, rec.ID)
	o.persistFinal(rec)
	if o.deps.Stats != nil {
		o.deps.Stats.RecordRunFinished(true, 0)
	}
	o.deps.Progress.Publish(progress.Event{Type: progress.EventFailed, Payload: cause.Error()})
	o.deps.Logger.Error("run failed", "run_id", rec.ID, "error", cause)
}

// persistFinal writes the terminal record on a fresh context: the run's own
// context may already be cancelled.
func (o *Orchestrator) persistFinal(rec domain.RunRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	if err := o.deps.Runs.FinishRun(ctx, rec); err != nil {
		o.deps.Logger.Error("persist run record failed", "run_id", rec.ID, "error", err)
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
