package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Core domain models used internally. Wire shapes for the HTTP surface are
// derived from these in the http adapter; keep them decoupled where helpful.

// DocumentKey is the natural identity of a physical document inside a filing.
// It is stronger than URL equality: two URLs can differ in formatting and
// still resolve to the same (accession, file) pair.
type DocumentKey struct {
	AccessionNumber string
	FileName        string
}

func (k DocumentKey) String() string {
	return k.AccessionNumber + "/" + k.FileName
}

// FilingReference identifies one regulatory filing. Immutable once fetched.
type FilingReference struct {
	CIK             string
	AccessionNumber string
	FormType        string
	FilingDate      time.Time
	PrimaryDocument string
}

// DocumentEntry is one file within a filing's document index.
type DocumentEntry struct {
	AccessionNumber string
	FileName        string
	Size            int64
	Description     string
	Category        string
	URL             string
}

// Key returns the dedup identity for the entry.
func (e DocumentEntry) Key() DocumentKey {
	return DocumentKey{AccessionNumber: e.AccessionNumber, FileName: e.FileName}
}

// Signal names a heuristic that matched during classification.
type Signal string

const (
	SignalExhibitNumber Signal = "exhibit_number"
	SignalKeyword       Signal = "keyword"
	SignalSizeThreshold Signal = "size_threshold"
)

// ClassificationResult is the classifier's verdict over a DocumentEntry.
// Derived, never persisted on its own.
type ClassificationResult struct {
	IsCandidate bool
	Confidence  int // 0-100
	Signals     []Signal
}

// ProcessingStatus tracks an extracted document through the pipeline.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusProcessed ProcessingStatus = "processed"
	StatusFailed    ProcessingStatus = "failed"
	StatusSkipped   ProcessingStatus = "skipped"
)

// ExtractedFields carries the structured output of the extraction boundary.
type ExtractedFields struct {
	Commodity       Commodity    `json:"commodity,omitempty"`
	Stage           ProjectStage `json:"stage,omitempty"`
	ProjectNames    []string     `json:"projectNames,omitempty"`
	NetPresentValue *float64     `json:"npvUsd,omitempty"`
	InternalRate    *float64     `json:"irrPct,omitempty"`
	Confidence      float64      `json:"confidence"`
}

// ExtractedDocument is the pipeline's output record. Write-once into the
// store; later runs may only flip ProcessingStatus.
type ExtractedDocument struct {
	AccessionNumber string
	FileName        string
	CIK             string
	FormType        string
	FilingDate      time.Time
	Size            int64
	Description     string
	URL             string

	Classification ClassificationResult
	Fields         *ExtractedFields
	Status         ProcessingStatus
	RunID          string
	DiscoveredAt   time.Time
}

// Key returns the dedup identity for the document.
func (d ExtractedDocument) Key() DocumentKey {
	return DocumentKey{AccessionNumber: d.AccessionNumber, FileName: d.FileName}
}

// RunMode selects how a scrape run chooses its work.
type RunMode string

const (
	ModeInitial     RunMode = "initial"
	ModeIncremental RunMode = "incremental"
	ModeBackfill    RunMode = "backfill"
	ModeTargeted    RunMode = "targeted"
)

// ParseRunMode validates a mode string from the trigger surface.
func ParseRunMode(s string) (RunMode, error) {
	switch RunMode(s) {
	case ModeInitial, ModeIncremental, ModeBackfill, ModeTargeted:
		return RunMode(s), nil
	}
	return "", fmt.Errorf("unknown run mode %q", s)
}

// RunStatus is the terminal-state machine of a run record.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Scope bounds one run: registrant set, date range, form-type allow-list.
type Scope struct {
	Registrants []string  `json:"registrants,omitempty"`
	DateFrom    time.Time `json:"dateFrom,omitempty"`
	DateTo      time.Time `json:"dateTo,omitempty"`
	FormTypes   []string  `json:"formTypes,omitempty"`
	Limit       int       `json:"limit,omitempty"`
}

// Key returns the logical-scope identity used for the one-running-run-per-scope
// guard. Two runs over the same registrant set share the in-memory dedup
// registry and must not overlap; runs over disjoint registrant sets may.
func (s Scope) Key() string {
	if len(s.Registrants) == 0 {
		return "global"
	}
	regs := make([]string, len(s.Registrants))
	copy(regs, s.Registrants)
	sort.Strings(regs)
	return "registrants:" + strings.Join(regs, ",")
}

// Includes reports whether a filing date falls inside the scope's range.
func (s Scope) Includes(d time.Time) bool {
	if !s.DateFrom.IsZero() && d.Before(s.DateFrom) {
		return false
	}
	if !s.DateTo.IsZero() && d.After(s.DateTo) {
		return false
	}
	return true
}

// AllowsForm reports whether the form type passes the allow-list.
func (s Scope) AllowsForm(form string) bool {
	if len(s.FormTypes) == 0 {
		return true
	}
	for _, f := range s.FormTypes {
		if strings.EqualFold(f, form) {
			return true
		}
	}
	return false
}

// RunCounters aggregates run progress for the status surface.
type RunCounters struct {
	FilingsScanned int
	DocumentsFound int
	DocumentsNew   int
	Errors         int
}

// RunRecord is one orchestrator invocation. Written at start and again on
// completion or failure, so a crashed run is observably incomplete.
type RunRecord struct {
	ID           string
	Mode         RunMode
	Scope        Scope
	Counters     RunCounters
	Status       RunStatus
	WasCancelled bool
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Company is a registrant record keyed by its stable registry identifier.
type Company struct {
	CIK    string
	Name   string
	Ticker string
}

// Project is a mining project surfaced by extraction, keyed by company + name.
type Project struct {
	CompanyCIK string
	Name       string
	Commodity  Commodity
	Stage      ProjectStage
}
