package clustering

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
	domconcept "github.com/joelhooks/pdf-brain/internal/domain/concept"
	"github.com/joelhooks/pdf-brain/internal/domain/search/filter"
	"github.com/joelhooks/pdf-brain/internal/usecase/concept"
)

// Pipeline defaults.
const (
	DefaultMaxK               = 20
	DefaultMiniBatchThreshold = 5000
	DefaultSelectionSample    = 2000
	DefaultMaxLevels          = 2
	DefaultSummaryMembers     = 20
	DefaultSummaryConcurrency = 4
	DefaultConceptThreshold   = 0.75

	// extractiveMembers is how many nearest members feed an extractive summary.
	extractiveMembers = 3
)

// PipelineConfig tunes a batch clustering run.
type PipelineConfig struct {
	// Algorithm is the level-0 variant; zero picks hard or mini-batch by
	// MiniBatchThreshold. Upper levels follow the same rule.
	Algorithm Algorithm
	// K fixes the level-0 cluster count; zero selects it by BIC up to MaxK.
	// Upper levels always select by BIC.
	K                  int
	MaxK               int
	MaxIterations      int
	BatchSize          int
	MiniBatchThreshold int
	SelectionSample    int
	Soft               SoftOptions
	MaxLevels          int
	SummaryMembers     int
	SummaryConcurrency int
	ConceptThreshold   float64
}

func (c *PipelineConfig) applyDefaults() {
	if c.MaxK <= 0 {
		c.MaxK = DefaultMaxK
	}
	if c.MiniBatchThreshold <= 0 {
		c.MiniBatchThreshold = DefaultMiniBatchThreshold
	}
	if c.SelectionSample <= 0 {
		c.SelectionSample = DefaultSelectionSample
	}
	soft := DefaultSoftOptions()
	if c.Soft.Temperature <= 0 {
		c.Soft.Temperature = soft.Temperature
	}
	if c.Soft.MinProbability <= 0 {
		c.Soft.MinProbability = soft.MinProbability
	}
	if c.Soft.MaxClusters <= 0 {
		c.Soft.MaxClusters = soft.MaxClusters
	}
	if c.MaxLevels <= 0 {
		c.MaxLevels = DefaultMaxLevels
	}
	if c.SummaryMembers <= 0 {
		c.SummaryMembers = DefaultSummaryMembers
	}
	if c.SummaryConcurrency <= 0 {
		c.SummaryConcurrency = DefaultSummaryConcurrency
	}
	if c.ConceptThreshold <= 0 {
		c.ConceptThreshold = DefaultConceptThreshold
	}
}

// PipelineMetrics are the collectors a Pipeline reports to. Nil fields are skipped.
type PipelineMetrics struct {
	Runs       *prometheus.CounterVec   // algorithm, status
	Duration   *prometheus.HistogramVec // algorithm
	Iterations *prometheus.HistogramVec // algorithm
	SelectedK  *prometheus.GaugeVec     // level
	Fallbacks  prometheus.Counter
}

// RunOptions scopes one run.
type RunOptions struct {
	// Tags restricts the run to chunks carrying at least one of them.
	Tags []string
}

// Pipeline turns the stored corpus into a persisted clustering run:
// hierarchical clusters, their summaries and concept mappings.
type Pipeline struct {
	clusterer *Clusterer
	chunks    ChunkLister
	runs      RunStore
	cfg       PipelineConfig
	logger    *zap.Logger

	summarizer Summarizer
	concepts   ConceptSource
	embedder   BatchEmbedder
	indexers   []SummaryIndexer
	metrics    PipelineMetrics
	now        func() time.Time

	mu sync.Mutex
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithSummarizer sets the abstractive summarizer. Without one every summary is extractive.
func WithSummarizer(s Summarizer) PipelineOption {
	return func(p *Pipeline) { p.summarizer = s }
}

// WithConcepts sets the taxonomy clusters are mapped onto.
func WithConcepts(c ConceptSource) PipelineOption {
	return func(p *Pipeline) { p.concepts = c }
}

// WithSummaryEmbedder sets the embedder for summary texts. Without one the
// centroid is stored as the summary vector.
func WithSummaryEmbedder(e BatchEmbedder) PipelineOption {
	return func(p *Pipeline) { p.embedder = e }
}

// WithSummaryIndex adds an index that receives every run's summaries.
func WithSummaryIndex(ix SummaryIndexer) PipelineOption {
	return func(p *Pipeline) { p.indexers = append(p.indexers, ix) }
}

// WithPipelineMetrics sets the collectors.
func WithPipelineMetrics(m PipelineMetrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a pipeline.
func NewPipeline(
	c *Clusterer, chunks ChunkLister, runs RunStore, cfg PipelineConfig,
	logger *zap.Logger, opts ...PipelineOption,
) *Pipeline {
	cfg.applyDefaults()
	p := &Pipeline{
		clusterer: c,
		chunks:    chunks,
		runs:      runs,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run clusters the stored chunks, summarizes every cluster level by level and
// persists the result. Runs are serialized.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (cluster.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	run, err := p.run(ctx, opts)

	alg := run.Algorithm
	if alg == "" {
		alg = p.algorithmLabel()
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	if p.metrics.Runs != nil {
		p.metrics.Runs.WithLabelValues(alg, status).Inc()
	}
	if p.metrics.Duration != nil {
		p.metrics.Duration.WithLabelValues(alg).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return cluster.Run{}, err
	}

	p.logger.Info("Clustering run saved",
		zap.String("run_id", run.ID),
		zap.String("algorithm", run.Algorithm),
		zap.Int("k", run.K),
		zap.Int("levels", run.Levels),
		zap.Int("summaries", len(run.Summaries)),
		zap.Duration("duration", time.Since(start)),
	)
	return run, nil
}

func (p *Pipeline) run(ctx context.Context, opts RunOptions) (cluster.Run, error) {
	filters, err := filter.AnyTag(opts.Tags)
	if err != nil {
		return cluster.Run{}, fmt.Errorf("run filter: %w", err)
	}
	chunks, err := p.chunks.ListChunks(ctx, filters)
	if err != nil {
		return cluster.Run{}, fmt.Errorf("list chunks: %w: %w", domain.ErrCollaboratorUnavailable, err)
	}

	points := make([]cluster.Point, 0, len(chunks))
	texts := make(map[string]string, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		points = append(points, cluster.Point{ID: c.ID(), Vector: c.Embedding})
		texts[c.ID()] = c.Content
	}
	if skipped := len(chunks) - len(points); skipped > 0 {
		p.logger.Warn("Chunks without embeddings skipped", zap.Int("count", skipped))
	}
	if len(points) == 0 {
		return cluster.Run{}, domain.NewInvalidInput("chunks", "no embedded chunks")
	}

	concepts := p.loadConcepts(ctx)

	run := cluster.Run{ID: uuid.NewString()}
	for level := 0; level < p.cfg.MaxLevels; level++ {
		res, alg, err := p.clusterLevel(ctx, level, points)
		if err != nil {
			return cluster.Run{}, fmt.Errorf("level %d: %w", level, err)
		}
		summaries, err := p.summarizeLevel(ctx, level, res, texts, concepts)
		if err != nil {
			return cluster.Run{}, fmt.Errorf("level %d: %w", level, err)
		}
		p.embedSummaries(ctx, summaries, res)

		if level == 0 {
			run.Algorithm = alg.String()
			run.K = res.K()
			run.Centroids = res.Centroids
			run.Assignments = res.Assignments
			run.Soft = res.Soft
			run.BICScores = res.BICScores
		}
		run.Summaries = append(run.Summaries, summaries...)
		run.Levels = level + 1

		p.logger.Info("Cluster level done",
			zap.Int("level", level),
			zap.Int("points", len(points)),
			zap.Int("k", res.K()),
			zap.Int("summaries", len(summaries)),
			zap.Int("iterations", res.Iterations),
		)

		if len(summaries) <= 1 {
			break
		}
		points = make([]cluster.Point, len(summaries))
		texts = make(map[string]string, len(summaries))
		for i, s := range summaries {
			points[i] = cluster.Point{ID: s.Key(), Vector: s.Embedding}
			texts[s.Key()] = s.Text
		}
	}
	run.CreatedAt = p.now().UnixMilli()

	if err := p.runs.SaveRun(ctx, &run); err != nil {
		return cluster.Run{}, fmt.Errorf("save run: %w: %w", domain.ErrCollaboratorUnavailable, err)
	}
	for _, ix := range p.indexers {
		if err := ix.IndexSummaries(ctx, run.ID, run.Summaries); err != nil {
			return cluster.Run{}, fmt.Errorf("index summaries: %w: %w", domain.ErrCollaboratorUnavailable, err)
		}
	}
	return run, nil
}

func (p *Pipeline) algorithmLabel() string {
	if p.cfg.Algorithm == 0 {
		return "auto"
	}
	return p.cfg.Algorithm.String()
}

func (p *Pipeline) loadConcepts(ctx context.Context) []domconcept.Concept {
	if p.concepts == nil {
		return nil
	}
	concepts, err := p.concepts.Concepts(ctx)
	if err != nil {
		p.logger.Warn("Taxonomy unavailable, clusters get suggested labels only", zap.Error(err))
		return nil
	}
	return concepts
}

// clusterLevel picks the variant and k for one level and clusters it.
func (p *Pipeline) clusterLevel(
	ctx context.Context, level int, points []cluster.Point,
) (cluster.Result, Algorithm, error) {
	alg := p.cfg.Algorithm
	if alg == 0 || level > 0 && alg == AlgorithmMiniBatch {
		alg = AlgorithmHard
		if len(points) > p.cfg.MiniBatchThreshold {
			alg = AlgorithmMiniBatch
		}
	}

	k, scores, err := p.chooseK(ctx, level, points)
	if err != nil {
		return cluster.Result{}, alg, err
	}

	soft := p.cfg.Soft
	soft.UseBIC = false
	soft.MaxClusters = k
	res, err := p.clusterer.Run(ctx, alg, points, Params{
		K:             k,
		MaxIterations: p.cfg.MaxIterations,
		BatchSize:     p.cfg.BatchSize,
		Soft:          soft,
	})
	if err != nil {
		return cluster.Result{}, alg, err
	}
	res.BICScores = scores

	if level == 0 && alg != AlgorithmSoft {
		res.Soft, err = Memberships(points, res.Centroids, soft.Temperature, soft.MinProbability)
		if err != nil {
			return cluster.Result{}, alg, err
		}
	}

	if p.metrics.Iterations != nil {
		p.metrics.Iterations.WithLabelValues(alg.String()).Observe(float64(res.Iterations))
	}
	if p.metrics.SelectedK != nil {
		p.metrics.SelectedK.WithLabelValues(strconv.Itoa(level)).Set(float64(res.K()))
	}
	return res, alg, nil
}

// chooseK returns the k for one level, clamped to n: the fixed K at level 0,
// otherwise the BIC choice over a uniform sample. Upper levels search at most
// n/2 clusters so every level is coarser than the one below.
func (p *Pipeline) chooseK(
	ctx context.Context, level int, points []cluster.Point,
) (int, []cluster.BICScore, error) {
	if level == 0 && p.cfg.K > 0 {
		return min(p.cfg.K, len(points)), nil, nil
	}
	maxK := p.cfg.MaxK
	if level > 0 {
		maxK = max(1, min(maxK, len(points)/2))
	}
	sample := p.clusterer.Sample(points, p.cfg.SelectionSample)
	sel, err := p.clusterer.SelectK(ctx, sample, maxK, p.cfg.MaxIterations)
	if err != nil {
		return 0, nil, err
	}
	return min(sel.BestK, len(points)), sel.Scores, nil
}

// summarizeLevel summarizes every non-empty cluster of res concurrently.
func (p *Pipeline) summarizeLevel(
	ctx context.Context, level int, res cluster.Result,
	texts map[string]string, concepts []domconcept.Concept,
) ([]cluster.Summary, error) {
	members := nearestFirst(res.Assignments)

	nonEmpty := make([]cluster.Centroid, 0, len(res.Centroids))
	for _, ct := range res.Centroids {
		if len(members[ct.ID]) > 0 {
			nonEmpty = append(nonEmpty, ct)
		}
	}

	out := make([]cluster.Summary, len(nonEmpty))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.SummaryConcurrency)
	for i, ct := range nonEmpty {
		g.Go(func() error {
			s, err := p.summarizeCluster(gctx, level, ct, members[ct.ID], texts, concepts)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) summarizeCluster(
	ctx context.Context, level int, ct cluster.Centroid, memberIDs []string,
	texts map[string]string, concepts []domconcept.Concept,
) (cluster.Summary, error) {
	input := make([]string, 0, min(len(memberIDs), p.cfg.SummaryMembers))
	for _, id := range memberIDs {
		if len(input) == p.cfg.SummaryMembers {
			break
		}
		if t := texts[id]; strings.TrimSpace(t) != "" {
			input = append(input, t)
		}
	}

	digest, extractive, err := p.digest(ctx, level, ct.ID, input)
	if err != nil {
		return cluster.Summary{}, err
	}

	s := cluster.Summary{
		Level:               level,
		ClusterID:           ct.ID,
		Text:                digest.Summary,
		MemberCount:         len(memberIDs),
		MemberIDs:           memberIDs,
		KeyTopics:           digest.KeyTopics,
		RepresentativeQuote: digest.RepresentativeQuote,
		Extractive:          extractive,
	}

	m := concept.MapCluster(concept.ClusterInput{
		ID:          ct.ID,
		SummaryText: s.Text,
		Centroid:    ct.Vector,
	}, concepts, p.cfg.ConceptThreshold)
	if m.Matched {
		s.ConceptID = m.ConceptID
		s.Confidence = m.Confidence
	} else {
		s.SuggestedLabel = m.SuggestedLabel
	}
	return s, nil
}

// digest asks the summarizer and falls back to an extractive digest on any
// failure other than cancellation.
func (p *Pipeline) digest(
	ctx context.Context, level, clusterID int, texts []string,
) (cluster.Digest, bool, error) {
	if p.summarizer != nil && len(texts) > 0 {
		d, err := p.summarizer.Summarize(ctx, texts)
		if err == nil && strings.TrimSpace(d.Summary) != "" {
			return d, false, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cluster.Digest{}, false, ctxErr
		}
		if err == nil {
			err = errors.New("empty summary")
		}
		p.logger.Warn("Summarizer failed, using extractive summary",
			zap.Int("level", level),
			zap.Int("cluster_id", clusterID),
			zap.Error(err),
		)
		if p.metrics.Fallbacks != nil {
			p.metrics.Fallbacks.Inc()
		}
	}
	return extractiveDigest(texts), true, nil
}

// extractiveDigest joins the first sentences of the nearest members.
func extractiveDigest(texts []string) cluster.Digest {
	sentences := make([]string, 0, extractiveMembers)
	for _, t := range texts {
		if len(sentences) == extractiveMembers {
			break
		}
		if s := concept.FirstSentence(t); s != "" {
			sentences = append(sentences, s)
		}
	}
	d := cluster.Digest{Summary: strings.Join(sentences, " ")}
	if len(sentences) > 0 {
		d.RepresentativeQuote = sentences[0]
	}
	return d
}

// embedSummaries fills Summary.Embedding, falling back to the centroid.
func (p *Pipeline) embedSummaries(ctx context.Context, summaries []cluster.Summary, res cluster.Result) {
	centroids := make(map[int][]float32, len(res.Centroids))
	for _, ct := range res.Centroids {
		centroids[ct.ID] = ct.Vector
	}

	var embeddings [][]float32
	if p.embedder != nil && len(summaries) > 0 {
		texts := make([]string, len(summaries))
		for i, s := range summaries {
			texts[i] = s.Text
		}
		out, err := p.embedder.BatchEmbed(ctx, texts)
		switch {
		case err != nil:
			p.logger.Warn("Summary embedding failed, storing centroids", zap.Error(err))
		case len(out.Embeddings) != len(summaries):
			p.logger.Warn("Summary embedding count mismatch, storing centroids",
				zap.Int("want", len(summaries)), zap.Int("got", len(out.Embeddings)))
		default:
			embeddings = out.Embeddings
		}
	}

	for i := range summaries {
		if embeddings != nil && len(embeddings[i]) > 0 {
			summaries[i].Embedding = embeddings[i]
			continue
		}
		summaries[i].Embedding = centroids[summaries[i].ClusterID]
	}
}

// nearestFirst groups point ids by cluster, nearest to the centroid first.
func nearestFirst(assignments []cluster.HardAssignment) map[int][]string {
	byCluster := make(map[int][]cluster.HardAssignment)
	for _, a := range assignments {
		byCluster[a.ClusterID] = append(byCluster[a.ClusterID], a)
	}
	out := make(map[int][]string, len(byCluster))
	for id, as := range byCluster {
		sort.SliceStable(as, func(i, j int) bool {
			if as[i].Distance != as[j].Distance {
				return as[i].Distance < as[j].Distance
			}
			return as[i].PointID < as[j].PointID
		})
		ids := make([]string, len(as))
		for i, a := range as {
			ids[i] = a.PointID
		}
		out[id] = ids
	}
	return out
}
