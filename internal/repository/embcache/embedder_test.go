package embcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joelhooks/pdf-brain/internal/db"
	"github.com/joelhooks/pdf-brain/internal/domain"
)

// memKV is an in-memory store; readErr makes every read fail.
type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	readErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) GetMulti(_ context.Context, keys []string) ([][]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.ttls[key] = ttl
	return m.Set(ctx, key, value)
}

// provider embeds text as {len(text), 1} for 5 tokens per text and records batches.
type provider struct {
	batches [][]string
	err     error
	short   bool
}

func (p *provider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := p.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0], TotalTokens: res.TotalTokens}, nil
}

func (p *provider) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	p.batches = append(p.batches, texts)
	if p.err != nil {
		return domain.BatchEmbeddingResult{}, p.err
	}
	out := domain.BatchEmbeddingResult{PromptTokens: 5 * len(texts), TotalTokens: 5 * len(texts)}
	for _, t := range texts {
		out.Embeddings = append(out.Embeddings, []float32{float32(len(t)), 1})
	}
	if p.short {
		out.Embeddings = out.Embeddings[1:]
	}
	return out, nil
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
}

func TestEmbed_MissThenHit(t *testing.T) {
	kv, p, lookups := newMemKV(), &provider{}, newCounter()
	c := New(p, kv, Config{Model: "nomic"}, lookups, zap.NewNop())

	first, err := c.Embed(context.Background(), "what is attention")
	require.NoError(t, err)
	assert.Equal(t, 5, first.TotalTokens)

	second, err := c.Embed(context.Background(), "what is attention")
	require.NoError(t, err)
	assert.Equal(t, first.Embedding, second.Embedding)
	assert.Zero(t, second.TotalTokens, "hits cost nothing")

	assert.Len(t, p.batches, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(lookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lookups.WithLabelValues("miss")))
}

func TestBatchEmbed_OnlyDistinctMissesReachProvider(t *testing.T) {
	kv, p := newMemKV(), &provider{}
	c := New(p, kv, Config{Model: "nomic"}, nil, zap.NewNop())

	_, err := c.Embed(context.Background(), "cached")
	require.NoError(t, err)

	res, err := c.BatchEmbed(context.Background(), []string{"new", "cached", "new", "other"})
	require.NoError(t, err)

	require.Len(t, p.batches, 2)
	assert.Equal(t, []string{"new", "other"}, p.batches[1])
	assert.Equal(t, 10, res.TotalTokens)
	assert.Equal(t, res.Embeddings[0], res.Embeddings[2])
	assert.Equal(t, []float32{6, 1}, res.Embeddings[1])
	assert.Len(t, kv.data, 3)
}

func TestBatchEmbed_AllHitsSkipProvider(t *testing.T) {
	kv, p := newMemKV(), &provider{}
	c := New(p, kv, Config{}, nil, zap.NewNop())

	_, err := c.BatchEmbed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	res, err := c.BatchEmbed(context.Background(), []string{"b", "a"})
	require.NoError(t, err)

	assert.Len(t, p.batches, 1)
	assert.Zero(t, res.TotalTokens)
}

func TestBatchEmbed_Empty(t *testing.T) {
	p := &provider{}
	res, err := New(p, newMemKV(), Config{}, nil, zap.NewNop()).BatchEmbed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Embeddings)
	assert.Empty(t, p.batches)
}

func TestKeys_AreModelScopedWithTTL(t *testing.T) {
	kv := newMemKV()
	ctx := context.Background()

	_, err := New(&provider{}, kv, Config{Model: "m1", TTL: time.Hour}, nil, zap.NewNop()).Embed(ctx, "x")
	require.NoError(t, err)
	_, err = New(&provider{}, kv, Config{Model: "m2"}, nil, zap.NewNop()).Embed(ctx, "x")
	require.NoError(t, err)

	require.Len(t, kv.data, 2)
	for key := range kv.data {
		assert.True(t, strings.HasPrefix(key, domain.EmbeddingCachePrefix+"m1:") ||
			strings.HasPrefix(key, domain.EmbeddingCachePrefix+"m2:"), key)
	}
	require.Len(t, kv.ttls, 1, "only the TTL-configured cache sets expiry")
	for _, ttl := range kv.ttls {
		assert.Equal(t, time.Hour, ttl)
	}
}

func TestBatchEmbed_ReadFailureFallsThrough(t *testing.T) {
	kv, p := newMemKV(), &provider{}
	kv.readErr = errors.New("connection reset")

	res, err := New(p, kv, Config{}, nil, zap.NewNop()).BatchEmbed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, res.Embeddings, 1)
	assert.Len(t, p.batches, 1)
}

func TestBatchEmbed_CorruptEntryIsReembedded(t *testing.T) {
	kv, p := newMemKV(), &provider{}
	c := New(p, kv, Config{Model: "m"}, nil, zap.NewNop())
	kv.data[c.key("a")] = []byte{1, 2, 3}

	res, err := c.BatchEmbed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, res.Embeddings[0])
	assert.Equal(t, []float32{1, 1}, db.DecodeVector(string(kv.data[c.key("a")])))
}

func TestBatchEmbed_ProviderErrors(t *testing.T) {
	t.Run("failure", func(t *testing.T) {
		p := &provider{err: domain.ErrRateLimited}
		_, err := New(p, newMemKV(), Config{}, nil, zap.NewNop()).BatchEmbed(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	})
	t.Run("short response", func(t *testing.T) {
		kv := newMemKV()
		p := &provider{short: true}
		_, err := New(p, kv, Config{}, nil, zap.NewNop()).BatchEmbed(context.Background(), []string{"a", "b"})
		assert.ErrorIs(t, err, domain.ErrEmbeddingProviderError)
		assert.Empty(t, kv.data, "nothing cached from a bad response")
	})
}
