// Package embedding holds provider-agnostic embedder decorators.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joelhooks/pdf-brain/internal/domain"
	logpkg "github.com/joelhooks/pdf-brain/internal/logger"
)

// DefaultMaxAPIBatchSize caps the texts sent in one provider request.
const DefaultMaxAPIBatchSize = 256

// InstrumentedEmbedder logs every embedding call and splits large batches
// (a rebuild embeds every cluster summary at once) into provider-sized
// requests. Request counts and latency are recorded by the transport.
type InstrumentedEmbedder struct {
	inner        domain.Embedder
	model        string
	maxBatchSize int
	logger       *zap.Logger
}

// NewInstrumentedEmbedder wraps inner. maxBatchSize <= 0 means DefaultMaxAPIBatchSize.
func NewInstrumentedEmbedder(inner domain.Embedder, model string, maxBatchSize int, logger *zap.Logger) *InstrumentedEmbedder {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxAPIBatchSize
	}
	return &InstrumentedEmbedder{inner: inner, model: model, maxBatchSize: maxBatchSize, logger: logger}
}

// Embed implements domain.Embedder.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	log := logpkg.FromContext(ctx, p.logger).With(zap.String("model", p.model))
	start := time.Now()

	res, err := p.inner.Embed(ctx, text)
	if err != nil {
		log.Error("Embedding request failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	log.Debug("Embedding request completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("dimensions", len(res.Embedding)),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return res, nil
}

// BatchEmbed implements domain.BatchEmbedder. Vectors come back in input
// order; a sub-batch answered with the wrong number of vectors fails the
// whole call with domain.ErrEmbeddingProviderError.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	log := logpkg.FromContext(ctx, p.logger).With(zap.String("model", p.model))
	start := time.Now()

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for part := range subBatches(texts, p.maxBatchSize) {
		res, err := domain.EmbedAll(ctx, p.inner, part.texts)
		if err == nil && len(res.Embeddings) != len(part.texts) {
			err = fmt.Errorf("%w: got %d embeddings for %d texts",
				domain.ErrEmbeddingProviderError, len(res.Embeddings), len(part.texts))
		}
		if err != nil {
			log.Error("Batch embedding request failed",
				zap.Int("offset", part.offset),
				zap.Int("size", len(part.texts)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		out.Append(res)
	}

	log.Debug("Batch embedding completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

type subBatch struct {
	offset int
	texts  []string
}

// subBatches yields consecutive windows of at most size texts.
func subBatches(texts []string, size int) func(yield func(subBatch) bool) {
	return func(yield func(subBatch) bool) {
		for offset := 0; offset < len(texts); offset += size {
			if !yield(subBatch{offset: offset, texts: texts[offset:min(offset+size, len(texts))]}) {
				return
			}
		}
	}
}
