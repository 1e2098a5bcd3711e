package request

import (
	"fmt"

	"github.com/joelhooks/pdf-brain/internal/domain/search/filter"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultLimit   = 10
	MaxLimit       = 100
	// MaxExpandChars caps the context window requested per hit.
	MaxExpandChars = 20000
)

// Request is a validated retrieval query.
type Request struct {
	query            string
	filters          filter.Expression
	limit            int
	threshold        float64
	hybrid           bool
	expandChars      int
	includeSummaries bool
}

// New validates and normalizes search parameters.
// Defaults: limit=10, threshold=0 (no cut), no expansion.
func New(
	query string,
	filters filter.Expression,
	limit int,
	threshold float64,
	hybrid bool,
	expandChars int,
	includeSummaries bool,
) (Request, error) {
	if query == "" {
		return Request{}, fmt.Errorf("query is required")
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if threshold < 0 || threshold > 1 {
		return Request{}, fmt.Errorf("threshold must be between 0 and 1")
	}
	if expandChars < 0 {
		return Request{}, fmt.Errorf("expand_chars must not be negative")
	}
	if expandChars > MaxExpandChars {
		expandChars = MaxExpandChars
	}

	return Request{
		query:            query,
		filters:          filters,
		limit:            limit,
		threshold:        threshold,
		hybrid:           hybrid,
		expandChars:      expandChars,
		includeSummaries: includeSummaries,
	}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Filters returns the tag pre-filter.
func (r *Request) Filters() filter.Expression { return r.filters }

// Limit returns the maximum hits to return.
func (r *Request) Limit() int { return r.limit }

// Threshold returns the minimum similarity for vector and summary hits.
func (r *Request) Threshold() float64 { return r.threshold }

// Hybrid reports whether keyword search joins the vector search.
func (r *Request) Hybrid() bool { return r.hybrid }

// ExpandChars returns the context expansion budget per hit (0 = off).
func (r *Request) ExpandChars() int { return r.expandChars }

// IncludeClusterSummaries reports whether cluster summaries are searched.
func (r *Request) IncludeClusterSummaries() bool { return r.includeSummaries }
