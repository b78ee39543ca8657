package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"prospector/internal/adapters/postgres"
	"prospector/internal/domain"
	"prospector/internal/ports"
	"prospector/internal/progress"
	"prospector/internal/services/scrape"
	"prospector/internal/stats"
)

const dateLayout = "2006-01-02"

// Server exposes the trigger, status, and live-progress surfaces.
type Server struct {
	orchestrator *scrape.Orchestrator
	documents    ports.DocumentStore
	progress     *progress.Channel
	stats        *stats.Collector
	logger       *slog.Logger
}

func New(orch *scrape.Orchestrator, documents ports.DocumentStore, ch *progress.Channel, collector *stats.Collector, logger *slog.Logger) *Server {
	return &Server{
		orchestrator: orch,
		documents:    documents,
		progress:     ch,
		stats:        collector,
		logger:       logger,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Post("/runs", s.handleStartRun)
	r.Get("/runs/{id}", s.handleGetRun)
	r.Post("/runs/{id}/stop", s.handleStopRun)
	r.Get("/documents/recent", s.handleRecentDocuments)
	r.Get("/stats", s.handleStats)
	r.Get("/events", s.handleEvents)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRunRequest struct {
	Mode        string   `json:"mode"`
	DateFrom    string   `json:"dateFrom,omitempty"`
	DateTo      string   `json:"dateTo,omitempty"`
	Registrants []string `json:"registrants,omitempty"`
	FormTypes   []string `json:"formTypes,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var body startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	mode, err := domain.ParseRunMode(body.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := scrape.StartRequest{Mode: mode, Registrants: body.Registrants, FormTypes: body.FormTypes, Limit: body.Limit}
	if body.DateFrom != "" {
		if req.DateFrom, err = time.Parse(dateLayout, body.DateFrom); err != nil {
			writeError(w, http.StatusBadRequest, "dateFrom must be YYYY-MM-DD")
			return
		}
	}
	if body.DateTo != "" {
		if req.DateTo, err = time.Parse(dateLayout, body.DateTo); err != nil {
			writeError(w, http.StatusBadRequest, "dateTo must be YYYY-MM-DD")
			return
		}
	}

	rec, err := s.orchestrator.Start(r.Context(), req)
	switch {
	case errors.Is(err, scrape.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": rec.ID})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.orchestrator.Get(r.Context(), id)
	if errors.Is(err, scrape.ErrNotFound) || errors.Is(err, postgres.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("run lookup failed", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "run lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, runResponse(rec))
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orchestrator.Stop(id); err != nil {
		writeError(w, http.StatusNotFound, "run not found or already finished")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": id, "stopping": "true"})
}

func (s *Server) handleRecentDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be 1-500")
			return
		}
		limit = n
	}
	docs, err := s.documents.RecentDocuments(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent documents query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "document query failed")
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

// handleEvents streams newline-delimited JSON frames until the client
// disconnects. The first frame acknowledges the connection, the second
// replays the recent-document buffer, then live report and ping frames
// follow.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	write := func(frame streamFrame) bool {
		if err := enc.Encode(frame); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !write(streamFrame{Type: "connected", At: time.Now().UTC()}) {
		return
	}
	history := s.progress.History()
	recent := make([]documentResponse, 0, len(history))
	for _, d := range history {
		recent = append(recent, toDocumentResponse(d))
	}
	if !write(streamFrame{Type: "initial", At: time.Now().UTC(), Payload: recent}) {
		return
	}

	events, cancel := s.progress.Subscribe()
	defer cancel()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			frame := streamFrame{At: ev.At}
			if frame.At.IsZero() {
				frame.At = time.Now().UTC()
			}
			if ev.Type == progress.EventHeartbeat {
				frame.Type = "ping"
			} else {
				frame.Type = "report"
				frame.Event = string(ev.Type)
				frame.Payload = ev.Payload
			}
			if !write(frame) {
				return
			}
		}
	}
}

type streamFrame struct {
	Type    string    `json:"type"`
	Event   string    `json:"event,omitempty"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

type runResponseBody struct {
	ID           string     `json:"runId"`
	Mode         string     `json:"mode"`
	Status       string     `json:"status"`
	WasCancelled bool       `json:"wasCancelled"`
	Registrants  []string   `json:"registrants,omitempty"`
	Scanned      int        `json:"filingsScanned"`
	Found        int        `json:"documentsFound"`
	New          int        `json:"documentsNew"`
	Errors       int        `json:"errors"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

func runResponse(rec domain.RunRecord) runResponseBody {
	return runResponseBody{
		ID:           rec.ID,
		Mode:         string(rec.Mode),
		Status:       string(rec.Status),
		WasCancelled: rec.WasCancelled,
		Registrants:  rec.Scope.Registrants,
		Scanned:      rec.Counters.FilingsScanned,
		Found:        rec.Counters.DocumentsFound,
		New:          rec.Counters.DocumentsNew,
		Errors:       rec.Counters.Errors,
		StartedAt:    rec.StartedAt,
		FinishedAt:   rec.FinishedAt,
	}
}

type documentResponse struct {
	AccessionNumber string                  `json:"accessionNumber"`
	FileName        string                  `json:"fileName"`
	CIK             string                  `json:"cik"`
	FormType        string                  `json:"formType"`
	FilingDate      string                  `json:"filingDate,omitempty"`
	SizeBytes       int64                   `json:"sizeBytes"`
	URL             string                  `json:"url"`
	Confidence      int                     `json:"confidence"`
	Signals         []string                `json:"signals,omitempty"`
	Status          string                  `json:"status"`
	Fields          *domain.ExtractedFields `json:"fields,omitempty"`
	DiscoveredAt    time.Time               `json:"discoveredAt"`
}

func toDocumentResponse(d domain.ExtractedDocument) documentResponse {
	resp := documentResponse{
		AccessionNumber: d.AccessionNumber,
		FileName:        d.FileName,
		CIK:             d.CIK,
		FormType:        d.FormType,
		SizeBytes:       d.Size,
		URL:             d.URL,
		Confidence:      d.Classification.Confidence,
		Status:          string(d.Status),
		Fields:          d.Fields,
		DiscoveredAt:    d.DiscoveredAt,
	}
	if !d.FilingDate.IsZero() {
		resp.FilingDate = d.FilingDate.Format(dateLayout)
	}
	for _, sig := range d.Classification.Signals {
		resp.Signals = append(resp.Signals, string(sig))
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
