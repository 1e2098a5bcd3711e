package provenance

// Provenance records which retrieval source produced a hit.
type Provenance string

// Provenance values.
const (
	Vector Provenance = "vector"
	// Keyword is a full-text (BM25) match.
	Keyword Provenance = "keyword"
	// Hybrid marks a hit returned by more than one source.
	Hybrid Provenance = "hybrid"
	// ClusterSummary is a hit on a cluster summary rather than a chunk.
	ClusterSummary Provenance = "cluster-summary"
)

// IsValid checks if p is one of the known values.
func (p Provenance) IsValid() bool {
	return p == Vector || p == Keyword || p == Hybrid || p == ClusterSummary
}
