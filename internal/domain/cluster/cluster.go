// Package cluster holds the value types produced by a clustering run.
package cluster

// Point is an embedding labelled with the id of the chunk (or summary) it came from.
type Point struct {
	ID     string
	Vector []float32
}

// Centroid is the mean of a cluster's members. Size is 0 for a cluster that
// lost all members; its vector is then the one from the previous iteration.
type Centroid struct {
	ID     int       `json:"id"`
	Vector []float32 `json:"vector"`
	Size   int       `json:"size"`
}

// HardAssignment places one point in exactly one cluster.
type HardAssignment struct {
	PointID   string  `json:"point_id"`
	ClusterID int     `json:"cluster_id"`
	Distance  float64 `json:"distance"`
}

// SoftAssignment is one (point, cluster) membership probability.
// A point may have several; they are not renormalized after filtering.
type SoftAssignment struct {
	PointID     string  `json:"point_id"`
	ClusterID   int     `json:"cluster_id"`
	Probability float64 `json:"probability"`
}

// BICScore is one point on the model-selection curve.
type BICScore struct {
	K       int     `json:"k"`
	BIC     float64 `json:"bic"`
	RSS     float64 `json:"rss"`
	Skipped bool    `json:"skipped,omitempty"`
}

// Result is the output of a clustering call. Soft is filled only by the soft
// variant; BICScores only when k was chosen by model selection.
type Result struct {
	Centroids   []Centroid
	Assignments []HardAssignment
	Soft        []SoftAssignment
	BICScores   []BICScore
	Iterations  int
	Converged   bool
}

// K returns the number of clusters.
func (r Result) K() int { return len(r.Centroids) }

// RSS returns the residual sum of squares of the assignments.
func (r Result) RSS() float64 {
	var rss float64
	for _, a := range r.Assignments {
		rss += a.Distance * a.Distance
	}
	return rss
}

// Members groups point ids by cluster id, in assignment order.
func (r Result) Members() map[int][]string {
	out := make(map[int][]string, len(r.Centroids))
	for _, a := range r.Assignments {
		out[a.ClusterID] = append(out[a.ClusterID], a.PointID)
	}
	return out
}

// Digest is what a summarizer returns for one cluster.
type Digest struct {
	Summary             string   `json:"summary"`
	KeyTopics           []string `json:"key_topics"`
	RepresentativeQuote string   `json:"representative_quote"`
}

// Summary describes one cluster at one level of the hierarchy.
type Summary struct {
	Level               int       `json:"level"`
	ClusterID           int       `json:"cluster_id"`
	Text                string    `json:"text"`
	MemberCount         int       `json:"member_count"`
	MemberIDs           []string  `json:"member_ids,omitempty"`
	KeyTopics           []string  `json:"key_topics,omitempty"`
	RepresentativeQuote string    `json:"representative_quote,omitempty"`
	ConceptID           string    `json:"concept_id,omitempty"`
	Confidence          float64   `json:"confidence,omitempty"`
	SuggestedLabel      string    `json:"suggested_label,omitempty"`
	Extractive          bool      `json:"extractive,omitempty"`
	Embedding           []float32 `json:"-"`
}

// Key is the stable identifier of a summary inside one run.
func (s Summary) Key() string {
	return SummaryKey(s.Level, s.ClusterID)
}

// Run is everything one pipeline execution produced.
type Run struct {
	ID          string           `json:"id"`
	Algorithm   string           `json:"algorithm"`
	K           int              `json:"k"`
	Levels      int              `json:"levels"`
	Centroids   []Centroid       `json:"centroids"`
	Assignments []HardAssignment `json:"-"`
	Soft        []SoftAssignment `json:"-"`
	BICScores   []BICScore       `json:"bic_scores,omitempty"`
	Summaries   []Summary        `json:"-"`
	CreatedAt   int64            `json:"created_at"` // unix millis
}
