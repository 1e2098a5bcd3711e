package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/joelhooks/pdf-brain/internal/domain"
	logpkg "github.com/joelhooks/pdf-brain/internal/logger"
)

// lengthEmbedder answers every text with {len(text)} and one token per text.
// batchFn, when set, replaces the native batch answer.
type lengthEmbedder struct {
	err     error
	batchFn func(texts []string) (domain.BatchEmbeddingResult, error)
	batches [][]string
}

func (e *lengthEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text))}, PromptTokens: 1, TotalTokens: 1}, nil
}

func (e *lengthEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e.batches = append(e.batches, texts)
	if e.batchFn != nil {
		return e.batchFn(texts)
	}
	return domain.BatchFallback(ctx, e, texts)
}

// singleOnly has no native batch call.
type singleOnly struct{ calls int }

func (s *singleOnly) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	s.calls++
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text))}, TotalTokens: 2}, nil
}

func TestInstrumentedEmbedder_Embed(t *testing.T) {
	p := NewInstrumentedEmbedder(&lengthEmbedder{}, "m", 0, zap.NewNop())

	res, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5}, res.Embedding)
	assert.Equal(t, 1, res.TotalTokens)
}

func TestInstrumentedEmbedder_EmbedErrorLogsToRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	ctx := logpkg.ContextWithLogger(context.Background(), zap.New(core).With(zap.String("request_id", "r1")))

	p := NewInstrumentedEmbedder(&lengthEmbedder{err: domain.ErrRateLimited}, "m", 0, zap.NewNop())
	_, err := p.Embed(ctx, "hello")

	require.ErrorIs(t, err, domain.ErrRateLimited)
	entries := logs.FilterMessage("Embedding request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "m", entries[0].ContextMap()["model"])
}

func TestInstrumentedEmbedder_BatchEmbed(t *testing.T) {
	tests := []struct {
		name        string
		maxBatch    int
		texts       []string
		wantBatches []int
	}{
		{"empty skips provider", 0, nil, nil},
		{"fits in one request", 0, []string{"a", "bb", "ccc"}, []int{3}},
		{"split with remainder", 2, []string{"a", "bb", "ccc", "dddd", "eeeee"}, []int{2, 2, 1}},
		{"exact multiple", 2, []string{"a", "bb", "ccc", "dddd"}, []int{2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &lengthEmbedder{}
			p := NewInstrumentedEmbedder(inner, "m", tt.maxBatch, zap.NewNop())

			res, err := p.BatchEmbed(context.Background(), tt.texts)
			require.NoError(t, err)

			sizes := make([]int, 0, len(inner.batches))
			for _, b := range inner.batches {
				sizes = append(sizes, len(b))
			}
			if tt.wantBatches == nil {
				assert.Empty(t, sizes)
			} else {
				assert.Equal(t, tt.wantBatches, sizes)
			}

			require.Len(t, res.Embeddings, len(tt.texts))
			for i, text := range tt.texts {
				assert.Equal(t, float32(len(text)), res.Embeddings[i][0], "order at %d", i)
			}
			assert.Equal(t, len(tt.texts), res.TotalTokens)
			assert.Equal(t, len(tt.texts), res.PromptTokens)
		})
	}
}

func TestInstrumentedEmbedder_BatchEmbedFailures(t *testing.T) {
	tests := []struct {
		name    string
		batchFn func([]string) (domain.BatchEmbeddingResult, error)
		wantErr error
	}{
		{
			name: "provider error",
			batchFn: func([]string) (domain.BatchEmbeddingResult, error) {
				return domain.BatchEmbeddingResult{}, domain.ErrRateLimited
			},
			wantErr: domain.ErrRateLimited,
		},
		{
			name: "short answer",
			batchFn: func([]string) (domain.BatchEmbeddingResult, error) {
				return domain.BatchEmbeddingResult{Embeddings: [][]float32{{1}}}, nil
			},
			wantErr: domain.ErrEmbeddingProviderError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewInstrumentedEmbedder(&lengthEmbedder{batchFn: tt.batchFn}, "m", 0, zap.NewNop())
			_, err := p.BatchEmbed(context.Background(), []string{"a", "b"})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestInstrumentedEmbedder_BatchEmbedStopsAtFirstFailedSubBatch(t *testing.T) {
	inner := &lengthEmbedder{}
	inner.batchFn = func(texts []string) (domain.BatchEmbeddingResult, error) {
		if len(inner.batches) == 2 {
			return domain.BatchEmbeddingResult{}, errors.New("boom")
		}
		return domain.BatchFallback(context.Background(), &lengthEmbedder{}, texts)
	}
	p := NewInstrumentedEmbedder(inner, "m", 1, zap.NewNop())

	_, err := p.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "boom"))
	assert.Len(t, inner.batches, 2)
}

func TestInstrumentedEmbedder_BatchEmbedWithoutNativeBatch(t *testing.T) {
	inner := &singleOnly{}
	p := NewInstrumentedEmbedder(inner, "m", 0, zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 6, res.TotalTokens)
}

func TestSubBatches_StopsWhenYieldReturnsFalse(t *testing.T) {
	var seen []int
	for part := range subBatches([]string{"a", "b", "c", "d"}, 1) {
		seen = append(seen, part.offset)
		if part.offset == 1 {
			break
		}
	}
	assert.Equal(t, []int{0, 1}, seen)
}
