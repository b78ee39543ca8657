package postgres

import (
	"context"

	"prospector/internal/domain"
)

// UpsertCompany inserts or refreshes a company keyed by CIK. Empty incoming
// name or ticker never overwrites a previously stored value.
func (db *DB) UpsertCompany(ctx context.Context, c domain.Company) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO companies (cik, name, ticker)
        VALUES ($1, $2, $3)
        ON CONFLICT (cik) DO UPDATE SET
            name   = COALESCE(NULLIF(EXCLUDED.name, ''), companies.name),
            ticker = COALESCE(NULLIF(EXCLUDED.ticker, ''), companies.ticker)
    `, c.CIK, c.Name, c.Ticker)
	return err
}

// UpsertProject inserts or refreshes a project keyed by (company, name).
func (db *DB) UpsertProject(ctx context.Context, p domain.Project) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO projects (company_cik, name, commodity, stage)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (company_cik, name) DO UPDATE SET
            commodity = EXCLUDED.commodity,
            stage     = EXCLUDED.stage
    `, p.CompanyCIK, p.Name, string(p.Commodity), string(p.Stage))
	return err
}
