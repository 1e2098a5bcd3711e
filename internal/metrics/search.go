package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval metrics. The source label is one of embedding, vector, keyword
// or summaries.
var (
	SearchSourceErrorsTotal = counterVec("search_source_errors_total",
		"Retrieval sources skipped after an error", "source")
	SearchHits = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_hits",
		Help:      "Hits returned per search after merging",
		Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
	})
)

var searchGroup = newGroup(SearchSourceErrorsTotal, SearchHits)

// RegisterSearchMetrics registers the retrieval metrics.
func RegisterSearchMetrics() { searchGroup.register() }
