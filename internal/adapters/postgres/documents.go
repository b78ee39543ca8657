package postgres

import (
	"context"
	"errors"

	"prospector/internal/domain"
)

var ErrNotFound = errors.New("not found")

// UpsertDocument writes a discovered document. The (accession_number,
// file_name) pair is the natural key; a conflicting insert is a no-op so a
// retried or re-discovered document never clobbers an existing row.
func (db *DB) UpsertDocument(ctx context.Context, doc domain.ExtractedDocument) (bool, error) {
	var (
		commodity, stage *string
		projectNames     []string
		npv, irr         *float64
		extractionConf   *float64
	)
	if doc.Fields != nil {
		c, s := string(doc.Fields.Commodity), string(doc.Fields.Stage)
		commodity, stage = &c, &s
		projectNames = doc.Fields.ProjectNames
		npv, irr = doc.Fields.NetPresentValue, doc.Fields.InternalRate
		conf := doc.Fields.Confidence
		extractionConf = &conf
	}

	tag, err := db.Pool.Exec(ctx, `
        INSERT INTO documents (
            accession_number, file_name, cik, form_type, filing_date,
            size_bytes, description, url,
            is_candidate, confidence, signals,
            commodity, stage, project_names, npv_usd, irr_pct, extraction_confidence,
            status, run_id, discovered_at
        )
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
        ON CONFLICT (accession_number, file_name) DO NOTHING
    `,
		doc.AccessionNumber, doc.FileName, doc.CIK, doc.FormType, doc.FilingDate,
		doc.Size, doc.Description, doc.URL,
		doc.Classification.IsCandidate, doc.Classification.Confidence, signalStrings(doc.Classification.Signals),
		commodity, stage, projectNames, npv, irr, extractionConf,
		string(doc.Status), doc.RunID, doc.DiscoveredAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDocumentStatus flips the processing status of an existing row. Every
// other column is write-once.
func (db *DB) MarkDocumentStatus(ctx context.Context, key domain.DocumentKey, status domain.ProcessingStatus) error {
	tag, err := db.Pool.Exec(ctx, `
        UPDATE documents SET status = $3
        WHERE accession_number = $1 AND file_name = $2
    `, key.AccessionNumber, key.FileName, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocumentKeys pages through all stored keys in stable order.
func (db *DB) ListDocumentKeys(ctx context.Context, offset, limit int) ([]domain.DocumentKey, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT accession_number, file_name FROM documents
        ORDER BY accession_number, file_name
        OFFSET $1 LIMIT $2
    `, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.DocumentKey
	for rows.Next() {
		var k domain.DocumentKey
		if err := rows.Scan(&k.AccessionNumber, &k.FileName); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (db *DB) RecentDocuments(ctx context.Context, limit int) ([]domain.ExtractedDocument, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT accession_number, file_name, cik, form_type, filing_date,
               size_bytes, description, url,
               is_candidate, confidence, signals,
               commodity, stage, project_names, npv_usd, irr_pct, extraction_confidence,
               status, run_id, discovered_at
        FROM documents
        ORDER BY discovered_at DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.ExtractedDocument
	for rows.Next() {
		var (
			doc              domain.ExtractedDocument
			signals          []string
			commodity, stage *string
			projectNames     []string
			npv, irr         *float64
			extractionConf   *float64
			status           string
		)
		if err := rows.Scan(
			&doc.AccessionNumber, &doc.FileName, &doc.CIK, &doc.FormType, &doc.FilingDate,
			&doc.Size, &doc.Description, &doc.URL,
			&doc.Classification.IsCandidate, &doc.Classification.Confidence, &signals,
			&commodity, &stage, &projectNames, &npv, &irr, &extractionConf,
			&status, &doc.RunID, &doc.DiscoveredAt,
		); err != nil {
			return nil, err
		}
		doc.Classification.Signals = parseSignals(signals)
		doc.Status = domain.ProcessingStatus(status)
		if commodity != nil || stage != nil || len(projectNames) > 0 {
			fields := &domain.ExtractedFields{
				ProjectNames:    projectNames,
				NetPresentValue: npv,
				InternalRate:    irr,
			}
			if commodity != nil {
				fields.Commodity = domain.Commodity(*commodity)
			}
			if stage != nil {
				fields.Stage = domain.ProjectStage(*stage)
			}
			if extractionConf != nil {
				fields.Confidence = *extractionConf
			}
			doc.Fields = fields
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func signalStrings(signals []domain.Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = string(s)
	}
	return out
}

func parseSignals(raw []string) []domain.Signal {
	if len(raw) == 0 {
		return nil
	}
	out := make([]domain.Signal, len(raw))
	for i, s := range raw {
		out[i] = domain.Signal(s)
	}
	return out
}
