package ports

import (
	"context"

	"prospector/internal/domain"
)

// FilingSource enumerates filings and their document indexes for a registrant.
type FilingSource interface {
	// ListFilings returns the registrant's filings most-recent-first, already
	// filtered to the scope's date range and form allow-list.
	ListFilings(ctx context.Context, cik string, scope domain.Scope) ([]domain.FilingReference, error)
	// ListDocuments fetches and parses the filing's document index, in index
	// order.
	ListDocuments(ctx context.Context, filing domain.FilingReference) ([]domain.DocumentEntry, error)
}

// RegistrantResolver maps ticker symbols to registry identifiers.
type RegistrantResolver interface {
	ResolveRegistrant(ctx context.Context, symbol string) (domain.Company, error)
}

// BodyFetcher retrieves raw document bytes for the extraction stage.
type BodyFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ExtractionHints gives the extraction service filing context alongside the
// document text.
type ExtractionHints struct {
	CompanyName string
	FormType    string
	FileName    string
}

// Extractor maps raw document text to structured fields. Implementations
// return extract.ErrUnextractable when the service cannot produce fields;
// callers must bound input size before calling.
type Extractor interface {
	Extract(ctx context.Context, text string, hints ExtractionHints) (domain.ExtractedFields, error)
}
