package metrics

// Embedding provider metrics, labelled by provider and model. The cache
// counter is labelled "hit" or "miss" per text.
var (
	EmbeddingRequestsTotal = counterVec("embedding_requests_total",
		"Embedding API calls", "provider", "model", "status")
	EmbeddingRequestDuration = histogramVec("embedding_request_duration_seconds",
		"Embedding API call latency", []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}, "provider", "model")
	EmbeddingTokensTotal = counterVec("embedding_tokens_total",
		"Tokens billed by the embedding provider", "provider", "model", "type")
	EmbeddingErrorsTotal = counterVec("embedding_errors_total",
		"Failed embedding API calls by cause", "provider", "model", "error_type")
	EmbeddingCacheTotal = counterVec("embedding_cache_total",
		"Embedding cache lookups", "result")
)

var embeddingGroup = newGroup(
	EmbeddingRequestsTotal,
	EmbeddingRequestDuration,
	EmbeddingTokensTotal,
	EmbeddingErrorsTotal,
	EmbeddingCacheTotal,
)

// RegisterEmbeddingMetrics registers the embedding metrics.
func RegisterEmbeddingMetrics() { embeddingGroup.register() }
