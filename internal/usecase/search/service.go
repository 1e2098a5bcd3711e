package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/search/hit"
	"github.com/joelhooks/pdf-brain/internal/domain/search/provenance"
	"github.com/joelhooks/pdf-brain/internal/domain/search/request"
)

const (
	// DefaultHybridBoost multiplies the score of a hit found by more than one source.
	DefaultHybridBoost = 1.2
	// DefaultCandidateFactor over-fetches each source so merging has room to reorder.
	DefaultCandidateFactor = 2
	// DefaultExpandConcurrency bounds concurrent per-document expansions.
	DefaultExpandConcurrency = 4
)

// Source labels used in logs and metrics.
const (
	sourceVector    = "vector"
	sourceKeyword   = "keyword"
	sourceSummaries = "summaries"
	sourceEmbedding = "embedding"
)

// Service merges chunk, keyword and cluster-summary retrieval into one ranked list.
type Service struct {
	chunks    ChunkSource
	summaries SummarySource
	embed     Embedder
	logger    *zap.Logger

	boost             float64
	candidateFactor   int
	expandConcurrency int
	sourceErrors      *prometheus.CounterVec
	hitsObserved      prometheus.Observer
}

// Option configures a Service.
type Option func(*Service)

// WithHybridBoost sets the multiplier applied to duplicated hits.
func WithHybridBoost(b float64) Option {
	return func(s *Service) {
		if b >= 1 {
			s.boost = b
		}
	}
}

// WithCandidateFactor sets how many candidates per requested hit each source returns.
func WithCandidateFactor(f int) Option {
	return func(s *Service) {
		if f > 0 {
			s.candidateFactor = f
		}
	}
}

// WithExpandConcurrency bounds concurrent document expansions.
func WithExpandConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.expandConcurrency = n
		}
	}
}

// WithSourceErrors counts degraded sources, labelled by "source".
func WithSourceErrors(c *prometheus.CounterVec) Option {
	return func(s *Service) { s.sourceErrors = c }
}

// WithHitsObserver records the size of every merged result list.
func WithHitsObserver(o prometheus.Observer) Option {
	return func(s *Service) { s.hitsObserved = o }
}

// New creates a search service. summaries may be nil when no summary index is configured.
func New(chunks ChunkSource, summaries SummarySource, embed Embedder, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		chunks:            chunks,
		summaries:         summaries,
		embed:             embed,
		logger:            log,
		boost:             DefaultHybridBoost,
		candidateFactor:   DefaultCandidateFactor,
		expandConcurrency: DefaultExpandConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search embeds the query and runs SearchEmbedding. When the embedder fails
// the vector sources are skipped and keyword search takes over.
func (s *Service) Search(ctx context.Context, req *request.Request) ([]hit.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var embedding []float32
	res, err := s.embed.Embed(ctx, req.Query())
	switch {
	case err == nil:
		embedding = res.Embedding
		domain.TokenMeterFrom(ctx).Add(res.TotalTokens)
	case isCtxErr(ctx, err):
		return nil, err
	default:
		s.degrade(sourceEmbedding, fmt.Errorf("%w: %w", domain.ErrCollaboratorUnavailable, err))
	}

	return s.SearchEmbedding(ctx, embedding, req)
}

// SearchEmbedding retrieves with a precomputed query embedding. A nil
// embedding means vector search is unavailable.
//
// Sources run concurrently; one that fails is logged and skipped. Vector and
// summary hits below the request threshold are dropped. Keyword scores are
// normalized by the best keyword score of the call. A passage returned by
// more than one source keeps its first score times the hybrid boost (capped
// at 1) and becomes provenance "hybrid". The list is stable-sorted by score
// and cut to the limit, then optionally expanded with adjacent chunks.
func (s *Service) SearchEmbedding(
	ctx context.Context, embedding []float32, req *request.Request,
) ([]hit.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectorOK := len(embedding) > 0
	useKeyword := req.Hybrid() || !vectorOK
	useSummaries := vectorOK && req.IncludeClusterSummaries() && s.summaries != nil
	fetch := req.Limit() * s.candidateFactor

	var vecHits, kwHits, sumHits []hit.Hit
	g, gctx := errgroup.WithContext(ctx)

	if vectorOK {
		g.Go(func() error {
			hits, err := s.chunks.NearestChunks(gctx, embedding, fetch, req.Filters())
			if err != nil {
				return s.sourceFailed(gctx, sourceVector, err)
			}
			vecHits = hits
			return nil
		})
	}
	if useKeyword {
		g.Go(func() error {
			hits, err := s.chunks.KeywordSearch(gctx, req.Query(), fetch, req.Filters())
			if err != nil {
				return s.sourceFailed(gctx, sourceKeyword, err)
			}
			kwHits = hits
			return nil
		})
	}
	if useSummaries {
		g.Go(func() error {
			hits, err := s.summaries.NearestSummaries(gctx, embedding, fetch)
			if err != nil {
				return s.sourceFailed(gctx, sourceSummaries, err)
			}
			sumHits = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := merge(
		s.boost,
		aboveThreshold(vecHits, req.Threshold()),
		normalizeKeyword(kwHits),
		aboveThreshold(sumHits, req.Threshold()),
	)
	if len(merged) > req.Limit() {
		merged = merged[:req.Limit()]
	}

	if req.ExpandChars() > 0 && len(merged) > 0 {
		expanded, err := s.expand(ctx, merged, req.ExpandChars())
		if err != nil {
			return nil, err
		}
		merged = expanded
	}
	if s.hitsObserved != nil {
		s.hitsObserved.Observe(float64(len(merged)))
	}
	return merged, nil
}

// sourceFailed swallows a source error unless the call itself was cancelled.
func (s *Service) sourceFailed(ctx context.Context, source string, err error) error {
	if isCtxErr(ctx, err) {
		return err
	}
	s.degrade(source, err)
	return nil
}

func (s *Service) degrade(source string, err error) {
	s.logger.Warn("Search source degraded", zap.String("source", source), zap.Error(err))
	if s.sourceErrors != nil {
		s.sourceErrors.WithLabelValues(source).Inc()
	}
}

// merge dedupes hits across sources in the order given and returns them
// stable-sorted by descending score with scores clamped to [0,1].
func merge(boost float64, sources ...[]hit.Hit) []hit.Hit {
	total := 0
	for _, src := range sources {
		total += len(src)
	}

	out := make([]hit.Hit, 0, total)
	index := make(map[string]int, total)
	for _, src := range sources {
		for _, h := range src {
			key := h.DedupKey()
			if i, ok := index[key]; ok {
				existing := out[i]
				out[i] = existing.
					WithScore(min(1, existing.Score()*boost)).
					WithProvenance(provenance.Hybrid)
				continue
			}
			index[key] = len(out)
			out = append(out, h.WithScore(clamp01(h.Score())))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score() > out[j].Score()
	})
	return out
}

func aboveThreshold(hits []hit.Hit, threshold float64) []hit.Hit {
	if threshold <= 0 {
		return hits
	}
	out := make([]hit.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score() >= threshold {
			out = append(out, h)
		}
	}
	return out
}

// normalizeKeyword rescales BM25 scores into [0,1] relative to the best match.
func normalizeKeyword(hits []hit.Hit) []hit.Hit {
	best := 0.0
	for _, h := range hits {
		best = max(best, h.Score())
	}
	out := make([]hit.Hit, len(hits))
	for i, h := range hits {
		score := 0.0
		if best > 0 {
			score = h.Score() / best
		}
		out[i] = h.WithScore(score)
	}
	return out
}

func clamp01(x float64) float64 {
	switch {
	case x < 0 || x != x: // NaN
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

func isCtxErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
