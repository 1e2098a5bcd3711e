package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister_Idempotent(t *testing.T) {
	RegisterEmbeddingMetrics()
	RegisterEmbeddingMetrics()
	RegisterClusteringMetrics()
	RegisterClusteringMetrics()
	RegisterSearchMetrics()
	RegisterSearchMetrics()
	RegisterHTTPMetrics()
	RegisterHTTPMetrics()
}

func TestSearchSourceErrors_Labels(t *testing.T) {
	before := testutil.ToFloat64(SearchSourceErrorsTotal.WithLabelValues("keyword"))
	SearchSourceErrorsTotal.WithLabelValues("keyword").Inc()
	if got := testutil.ToFloat64(SearchSourceErrorsTotal.WithLabelValues("keyword")); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}
