package metrics

import "github.com/prometheus/client_golang/prometheus"

// Clustering pipeline and summarizer metrics.
var (
	ClusterRunsTotal = counterVec("cluster_runs_total",
		"Clustering pipeline runs", "algorithm", "status")
	ClusterRunDuration = histogramVec("cluster_run_duration_seconds",
		"Wall time of one pipeline run", []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600}, "algorithm")
	ClusterIterations = histogramVec("cluster_iterations",
		"Iterations used by one clustering call", []float64{1, 2, 5, 10, 20, 50, 100, 200}, "algorithm")
	ClusterSelectedK = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cluster_selected_k",
		Help:      "Clusters in the latest run, per hierarchy level",
	}, []string{"level"})

	SummarizerRequestsTotal = counterVec("summarizer_requests_total",
		"Summarizer API calls", "model", "status")
	SummarizerRequestDuration = histogramVec("summarizer_request_duration_seconds",
		"Summarizer API call latency", []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60}, "model")
	SummarizerFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "summarizer_fallbacks_total",
		Help:      "Clusters summarized extractively after a summarizer failure",
	})
)

var clusteringGroup = newGroup(
	ClusterRunsTotal,
	ClusterRunDuration,
	ClusterIterations,
	ClusterSelectedK,
	SummarizerRequestsTotal,
	SummarizerRequestDuration,
	SummarizerFallbacksTotal,
)

// RegisterClusteringMetrics registers the pipeline and summarizer metrics.
func RegisterClusteringMetrics() { clusteringGroup.register() }
