// Package classify scores document-index entries as technical-report
// candidates from metadata alone. Classification never opens the document
// body: it runs over every file in every filing and must stay cheap.
package classify

import (
	"regexp"
	"strings"

	"prospector/internal/domain"
)

// Mining technical reports filed with the registry follow the exhibit 96
// numbering convention (ex96-1.htm, ex_961.htm, exhibit96.htm, ...).
var exhibitPattern = regexp.MustCompile(`(?i)ex(?:hibit)?[-_.]?96`)

var defaultKeywords = []string{
	"technical report",
	"mineral",
	"feasibility",
	"reserve",
	"resource estimate",
	"preliminary economic assessment",
	"s-k 1300",
	"ni 43-101",
}

const (
	confidenceExhibit  = 90
	confidenceKeyword  = 60
	confidenceSizeOnly = 25
)

// Config carries the sweep thresholds. The same classifier serves "precise"
// and "broad" modes by tuning these.
type Config struct {
	// MinDocumentBytes rejects near-empty placeholders outright.
	MinDocumentBytes int64
	// KeywordMinBytes is the floor a keyword match must also clear.
	KeywordMinBytes int64
	// SizeOnlyMinBytes is the much higher floor for size-alone "maybe"s.
	SizeOnlyMinBytes int64
	Keywords         []string
}

// Classifier is a deterministic, pure function over entry metadata.
type Classifier struct {
	cfg      Config
	keywords []string
}

// New builds a classifier; zero thresholds and empty keywords get defaults.
func New(cfg Config) *Classifier {
	if cfg.MinDocumentBytes <= 0 {
		cfg.MinDocumentBytes = 10 * 1024
	}
	if cfg.KeywordMinBytes <= 0 {
		cfg.KeywordMinBytes = 200 * 1024
	}
	if cfg.SizeOnlyMinBytes <= 0 {
		cfg.SizeOnlyMinBytes = 5 * 1024 * 1024
	}
	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Classifier{cfg: cfg, keywords: lowered}
}

// Classify scores one entry. Policy, in priority order: exhibit-number match
// short-circuits at high confidence; keyword match plus size floor is medium;
// size alone above the higher floor is a low-confidence maybe. Entries under
// the global minimum are always rejected regardless of other signals.
func (c *Classifier) Classify(entry domain.DocumentEntry) domain.ClassificationResult {
	if entry.Size < c.cfg.MinDocumentBytes {
		return domain.ClassificationResult{}
	}

	if exhibitPattern.MatchString(entry.FileName) {
		return domain.ClassificationResult{
			IsCandidate: true,
			Confidence:  confidenceExhibit,
			Signals:     []domain.Signal{domain.SignalExhibitNumber},
		}
	}

	if c.matchesKeyword(entry) && entry.Size > c.cfg.KeywordMinBytes {
		return domain.ClassificationResult{
			IsCandidate: true,
			Confidence:  confidenceKeyword,
			Signals:     []domain.Signal{domain.SignalKeyword, domain.SignalSizeThreshold},
		}
	}

	if entry.Size > c.cfg.SizeOnlyMinBytes {
		return domain.ClassificationResult{
			IsCandidate: true,
			Confidence:  confidenceSizeOnly,
			Signals:     []domain.Signal{domain.SignalSizeThreshold},
		}
	}

	return domain.ClassificationResult{}
}

func (c *Classifier) matchesKeyword(entry domain.DocumentEntry) bool {
	name := strings.ToLower(entry.FileName)
	desc := strings.ToLower(entry.Description)
	for _, kw := range c.keywords {
		if strings.Contains(name, kw) || strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}
