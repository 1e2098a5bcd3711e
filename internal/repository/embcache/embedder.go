// Package embcache caches embedding vectors in the key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/joelhooks/pdf-brain/internal/db"
	"github.com/joelhooks/pdf-brain/internal/domain"
	logpkg "github.com/joelhooks/pdf-brain/internal/logger"
)

type store interface {
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type embedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

// Config scopes cached vectors. Model is part of every key, so switching
// models never serves vectors of the wrong dimension. A zero TTL keeps
// entries forever.
type Config struct {
	Model string
	TTL   time.Duration
}

// CachedEmbedder serves repeated texts (queries, unchanged cluster
// summaries, taxonomy descriptions) from the store. Cache failures are
// logged and fall through to the provider.
type CachedEmbedder struct {
	inner   embedder
	store   store
	cfg     Config
	lookups *prometheus.CounterVec
	logger  *zap.Logger
}

// New wraps inner. lookups takes a "result" label of hit or miss and may be nil.
func New(inner embedder, s store, cfg Config, lookups *prometheus.CounterVec, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, store: s, cfg: cfg, lookups: lookups, logger: logger}
}

// Embed implements domain.Embedder. A hit reports zero tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := c.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder. Hits are read in one
// round-trip; distinct missing texts go to the provider in one batch, and
// the reported tokens cover only that batch.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	log := logpkg.FromContext(ctx, c.logger)

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}
	out := c.lookup(ctx, log, keys)

	// slots maps each distinct missing text to every position it fills.
	slots := map[string][]int{}
	var missing []string
	hits := 0
	for i, vec := range out {
		if vec != nil {
			hits++
			continue
		}
		if _, seen := slots[texts[i]]; !seen {
			missing = append(missing, texts[i])
		}
		slots[texts[i]] = append(slots[texts[i]], i)
	}
	c.count("hit", hits)
	c.count("miss", len(texts)-hits)

	if len(missing) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: out}, nil
	}

	res, err := c.inner.BatchEmbed(ctx, missing)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed %d uncached texts: %w", len(missing), err)
	}
	if len(res.Embeddings) != len(missing) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: got %d embeddings for %d texts",
			domain.ErrEmbeddingProviderError, len(res.Embeddings), len(missing))
	}

	for j, text := range missing {
		vec := res.Embeddings[j]
		for _, i := range slots[text] {
			out[i] = vec
		}
		c.put(ctx, log, keys[slots[text][0]], vec)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// key is prefix, model and the SHA-256 of the text.
func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return domain.EmbeddingCachePrefix + c.cfg.Model + ":" + hex.EncodeToString(sum[:])
}

// lookup returns cached vectors by position, nil where absent or unreadable.
func (c *CachedEmbedder) lookup(ctx context.Context, log *zap.Logger, keys []string) [][]float32 {
	out := make([][]float32, len(keys))

	blobs, err := c.store.GetMulti(ctx, keys)
	if err != nil {
		log.Warn("Embedding cache read failed", zap.Int("keys", len(keys)), zap.Error(err))
		return out
	}
	for i, blob := range blobs {
		if len(blob) == 0 {
			continue
		}
		if out[i] = db.DecodeVector(string(blob)); out[i] == nil {
			log.Warn("Discarding corrupt cached embedding", zap.String("key", keys[i]), zap.Int("bytes", len(blob)))
		}
	}
	return out
}

func (c *CachedEmbedder) put(ctx context.Context, log *zap.Logger, key string, vec []float32) {
	blob := []byte(db.EncodeVector(vec))
	var err error
	if c.cfg.TTL > 0 {
		err = c.store.SetWithTTL(ctx, key, blob, c.cfg.TTL)
	} else {
		err = c.store.Set(ctx, key, blob)
	}
	if err != nil {
		log.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedEmbedder) count(result string, n int) {
	if c.lookups != nil && n > 0 {
		c.lookups.WithLabelValues(result).Add(float64(n))
	}
}
