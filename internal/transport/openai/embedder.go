// Package openai talks to OpenAI-compatible endpoints (OpenAI, Ollama,
// Nebius, vLLM) for embeddings and cluster summaries.
package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/metrics"
)

// Config holds the embedding endpoint settings. Provider only labels metrics.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	User       string
	Provider   string
	Logger     *zap.Logger
}

// Embedder calls the /embeddings endpoint and records transport metrics.
type Embedder struct {
	client *openai.Client
	cfg    Config
}

// NewEmbedder creates an embedder for cfg.
func NewEmbedder(cfg *Config) *Embedder {
	c := *cfg
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return &Embedder{client: newClient(c.APIKey, c.BaseURL), cfg: c}
}

func newClient(apiKey, baseURL string) *openai.Client {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.create(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder with one request.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	return e.create(ctx, texts)
}

// HealthCheck lists models, which costs no tokens.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// create sends one request and returns the vectors in input order. Some
// providers answer out of order, so items are placed by their index field.
func (e *Embedder) create(ctx context.Context, input []string) (domain.BatchEmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          input,
		Model:          openai.EmbeddingModel(e.cfg.Model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.cfg.User,
		Dimensions:     max(e.cfg.Dimensions, 0),
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		e.fail("api_error")
		return domain.BatchEmbeddingResult{}, parseAPIError("embedding", err, domain.ErrEmbeddingProviderError)
	}

	out := make([][]float32, len(input))
	if len(resp.Data) != len(input) {
		e.fail("count_mismatch")
		return domain.BatchEmbeddingResult{}, fmt.Errorf("got %d embeddings for %d inputs: %w",
			len(resp.Data), len(input), domain.ErrEmbeddingProviderError)
	}
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			e.fail("bad_index")
			return domain.BatchEmbeddingResult{}, fmt.Errorf("unexpected embedding index %d: %w",
				d.Index, domain.ErrEmbeddingProviderError)
		}
		out[d.Index] = d.Embedding
	}

	e.succeed(time.Since(start), resp.Usage)
	e.cfg.Logger.Debug("Embeddings created",
		zap.String("model", e.cfg.Model),
		zap.Int("inputs", len(input)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

func (e *Embedder) fail(kind string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.cfg.Provider, e.cfg.Model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.cfg.Provider, e.cfg.Model, kind).Inc()
}

func (e *Embedder) succeed(took time.Duration, usage openai.Usage) {
	p, m := e.cfg.Provider, e.cfg.Model
	metrics.EmbeddingRequestsTotal.WithLabelValues(p, m, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(p, m).Observe(took.Seconds())
	metrics.EmbeddingTokensTotal.WithLabelValues(p, m, "prompt").Add(float64(usage.PromptTokens))
	metrics.EmbeddingTokensTotal.WithLabelValues(p, m, "total").Add(float64(usage.TotalTokens))
}
