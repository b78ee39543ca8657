package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"prospector/internal/domain"
)

func (db *DB) CreateRun(ctx context.Context, rec domain.RunRecord) error {
	scope, err := json.Marshal(rec.Scope)
	if err != nil {
		return err
	}
	_, err = db.Pool.Exec(ctx, `
        INSERT INTO runs (id, mode, scope, status, started_at)
        VALUES ($1, $2, $3, $4, $5)
    `, rec.ID, string(rec.Mode), scope, string(rec.Status), rec.StartedAt)
	return err
}

// FinishRun writes the terminal state and final counters of a run.
func (db *DB) FinishRun(ctx context.Context, rec domain.RunRecord) error {
	_, err := db.Pool.Exec(ctx, `
        UPDATE runs SET
            status = $2,
            was_cancelled = $3,
            filings_scanned = $4,
            documents_found = $5,
            documents_new = $6,
            errors = $7,
            finished_at = $8
        WHERE id = $1
    `, rec.ID, string(rec.Status), rec.WasCancelled,
		rec.Counters.FilingsScanned, rec.Counters.DocumentsFound,
		rec.Counters.DocumentsNew, rec.Counters.Errors, rec.FinishedAt)
	return err
}

func (db *DB) GetRun(ctx context.Context, id string) (domain.RunRecord, error) {
	var (
		rec   domain.RunRecord
		mode  string
		scope []byte
		state string
	)
	err := db.Pool.QueryRow(ctx, `
        SELECT id, mode, scope, status, was_cancelled,
               filings_scanned, documents_found, documents_new, errors,
               started_at, finished_at
        FROM runs WHERE id = $1
    `, id).Scan(
		&rec.ID, &mode, &scope, &state, &rec.WasCancelled,
		&rec.Counters.FilingsScanned, &rec.Counters.DocumentsFound,
		&rec.Counters.DocumentsNew, &rec.Counters.Errors,
		&rec.StartedAt, &rec.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	rec.Mode = domain.RunMode(mode)
	rec.Status = domain.RunStatus(state)
	if err := json.Unmarshal(scope, &rec.Scope); err != nil {
		return rec, err
	}
	return rec, nil
}
