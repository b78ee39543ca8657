package ports

import (
	"context"

	"prospector/internal/domain"
)

// DocumentStore persists extracted documents keyed by their natural identity.
// Upserts are idempotent: a retried or duplicate write is a no-op.
type DocumentStore interface {
	// UpsertDocument inserts the document if its (accession, file name) key is
	// unseen; inserted reports whether a new row was created.
	UpsertDocument(ctx context.Context, doc domain.ExtractedDocument) (inserted bool, err error)
	// MarkDocumentStatus flips only the processing status of a stored
	// document; all other fields are write-once.
	MarkDocumentStatus(ctx context.Context, key domain.DocumentKey, status domain.ProcessingStatus) error
	// ListDocumentKeys pages through all stored dedup keys. Callers must page
	// until a short result to get the complete set.
	ListDocumentKeys(ctx context.Context, offset, limit int) ([]domain.DocumentKey, error)
	// RecentDocuments returns the most recently discovered documents.
	RecentDocuments(ctx context.Context, limit int) ([]domain.ExtractedDocument, error)
}

// CompanyStore upserts company and project records by natural identifiers.
type CompanyStore interface {
	UpsertCompany(ctx context.Context, c domain.Company) error
	UpsertProject(ctx context.Context, p domain.Project) error
}

// RunStore records orchestrator invocations.
type RunStore interface {
	CreateRun(ctx context.Context, rec domain.RunRecord) error
	FinishRun(ctx context.Context, rec domain.RunRecord) error
	GetRun(ctx context.Context, id string) (domain.RunRecord, error)
}
