package chi

import (
	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/domain/search/hit"
)

// ErrorCode is the machine-readable part of an error response.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest                ErrorCode = "bad_request"
	ErrorCodeValidationFailed          ErrorCode = "validation_failed"
	ErrorCodeUnauthorized              ErrorCode = "unauthorized"
	ErrorCodeNotFound                  ErrorCode = "not_found"
	ErrorCodeConflict                  ErrorCode = "conflict"
	ErrorCodeRateLimited               ErrorCode = "rate_limited"
	ErrorCodeEmbeddingProviderError    ErrorCode = "embedding_provider_error"
	ErrorCodeSummarizationFailed       ErrorCode = "summarization_failed"
	ErrorCodeCollaboratorUnavailable   ErrorCode = "collaborator_unavailable"
	ErrorCodeKeywordSearchNotSupported ErrorCode = "keyword_search_not_supported"
	ErrorCodeInternalError             ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query                   string   `json:"query"`
	Limit                   int      `json:"limit,omitempty"`
	Threshold               float64  `json:"threshold,omitempty"`
	Tags                    []string `json:"tags,omitempty"`
	Hybrid                  bool     `json:"hybrid,omitempty"`
	ExpandChars             int      `json:"expand_chars,omitempty"`
	IncludeClusterSummaries bool     `json:"include_cluster_summaries,omitempty"`
}

// SearchHit is one item of a search response.
type SearchHit struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id,omitempty"`
	Title      string  `json:"title,omitempty"`
	Page       int     `json:"page,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Expanded   string  `json:"expanded,omitempty"`
	Score      float64 `json:"score"`
	Provenance string  `json:"provenance"`
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	Items []SearchHit `json:"items"`
	Total int         `json:"total"`
}

// RebuildRequest is the optional body of POST /clusters/rebuild.
type RebuildRequest struct {
	Tags []string `json:"tags,omitempty"`
	// Wait runs the pipeline inside the request instead of in the background.
	Wait bool `json:"wait,omitempty"`
}

// RebuildResponse reports a started or finished rebuild.
type RebuildResponse struct {
	Status string       `json:"status"`
	Run    *RunResponse `json:"run,omitempty"`
}

// SummaryResponse is a cluster summary without its vector.
type SummaryResponse struct {
	Key                 string   `json:"key"`
	Level               int      `json:"level"`
	ClusterID           int      `json:"cluster_id"`
	Text                string   `json:"text"`
	MemberCount         int      `json:"member_count"`
	KeyTopics           []string `json:"key_topics,omitempty"`
	RepresentativeQuote string   `json:"representative_quote,omitempty"`
	ConceptID           string   `json:"concept_id,omitempty"`
	Confidence          float64  `json:"confidence,omitempty"`
	SuggestedLabel      string   `json:"suggested_label,omitempty"`
	Extractive          bool     `json:"extractive,omitempty"`
}

// RunResponse describes a clustering run.
type RunResponse struct {
	ID        string             `json:"id"`
	Algorithm string             `json:"algorithm"`
	K         int                `json:"k"`
	Levels    int                `json:"levels"`
	CreatedAt int64              `json:"created_at"`
	BICScores []cluster.BICScore `json:"bic_scores,omitempty"`
	Summaries []SummaryResponse  `json:"summaries"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func hitToResponse(h *hit.Hit) SearchHit {
	return SearchHit{
		ID:         h.ID(),
		DocumentID: h.DocumentID(),
		Title:      h.Title(),
		Page:       h.Page(),
		ChunkIndex: h.ChunkIndex(),
		Content:    h.Content(),
		Expanded:   h.Expanded(),
		Score:      h.Score(),
		Provenance: string(h.Provenance()),
	}
}

func runToResponse(run *cluster.Run) *RunResponse {
	summaries := make([]SummaryResponse, len(run.Summaries))
	for i := range run.Summaries {
		s := &run.Summaries[i]
		summaries[i] = SummaryResponse{
			Key:                 s.Key(),
			Level:               s.Level,
			ClusterID:           s.ClusterID,
			Text:                s.Text,
			MemberCount:         s.MemberCount,
			KeyTopics:           s.KeyTopics,
			RepresentativeQuote: s.RepresentativeQuote,
			ConceptID:           s.ConceptID,
			Confidence:          s.Confidence,
			SuggestedLabel:      s.SuggestedLabel,
			Extractive:          s.Extractive,
		}
	}
	return &RunResponse{
		ID:        run.ID,
		Algorithm: run.Algorithm,
		K:         run.K,
		Levels:    run.Levels,
		CreatedAt: run.CreatedAt,
		BICScores: run.BICScores,
		Summaries: summaries,
	}
}
