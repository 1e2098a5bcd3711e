package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joelhooks/pdf-brain/internal/config"
	dbRedis "github.com/joelhooks/pdf-brain/internal/db/redis"
	"github.com/joelhooks/pdf-brain/internal/domain"
	logpkg "github.com/joelhooks/pdf-brain/internal/logger"
	"github.com/joelhooks/pdf-brain/internal/metrics"
	chromemrepo "github.com/joelhooks/pdf-brain/internal/repository/chromem"
	chunkrepo "github.com/joelhooks/pdf-brain/internal/repository/chunk"
	clusterrepo "github.com/joelhooks/pdf-brain/internal/repository/cluster"
	"github.com/joelhooks/pdf-brain/internal/repository/embcache"
	"github.com/joelhooks/pdf-brain/internal/repository/taxonomy"
	openaiTransport "github.com/joelhooks/pdf-brain/internal/transport/openai"
	clusteringuc "github.com/joelhooks/pdf-brain/internal/usecase/clustering"
	embeddinguc "github.com/joelhooks/pdf-brain/internal/usecase/embedding"
	healthuc "github.com/joelhooks/pdf-brain/internal/usecase/health"
	searchuc "github.com/joelhooks/pdf-brain/internal/usecase/search"
)

// app is the composition root shared by every command.
type app struct {
	cfg    config.Config
	env    string
	logger *zap.Logger
	store  *dbRedis.Store

	pipeline *clusteringuc.Pipeline
	search   *searchuc.Service
	runs     *clusterrepo.Repo
	health   *healthuc.Service
}

// newApp loads configuration, connects to redis and wires every service.
func newApp(ctx context.Context) (*app, error) {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create database store: %w", err)
	}

	a := &app{cfg: cfg, env: env, logger: logger, store: store}
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	if err := a.store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	a.logger.Info("Connected to database", zap.Strings("db_addrs", cfg.Database.Addrs))

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterClusteringMetrics()
	metrics.RegisterSearchMetrics()
	metrics.RegisterHTTPMetrics()

	// Base provider (with transport metrics built-in), shared by both chains
	provider := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     a.logger,
	})
	docEmbedder := a.buildEmbedder(provider, cfg.Embedding.DocumentInstruction)
	queryEmbedder := a.buildEmbedder(provider, cfg.Embedding.QueryInstruction)

	dim := cfg.Embedding.Dimensions
	if dim <= 0 {
		probed, err := probeDimensions(ctx, docEmbedder)
		if err != nil {
			return err
		}
		dim = probed
	}
	a.logger.Info("Embedders created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", dim),
	)

	chunks := chunkrepo.New(a.store, chunkrepo.HNSWConfig{
		M:           cfg.Database.HNSWM,
		EFConstruct: cfg.Database.HNSWEFConstruct,
	})
	if err := chunks.EnsureIndex(ctx, dim); err != nil {
		return fmt.Errorf("ensure chunk index: %w", err)
	}
	a.runs = clusterrepo.New(a.store)
	if err := a.runs.EnsureIndex(ctx, dim); err != nil {
		return fmt.Errorf("ensure summary index: %w", err)
	}

	var summaries searchuc.SummarySource = a.runs
	pipelineOpts := []clusteringuc.PipelineOption{
		clusteringuc.WithSummaryEmbedder(docEmbedder),
		clusteringuc.WithPipelineMetrics(clusteringuc.PipelineMetrics{
			Runs:       metrics.ClusterRunsTotal,
			Duration:   metrics.ClusterRunDuration,
			Iterations: metrics.ClusterIterations,
			SelectedK:  metrics.ClusterSelectedK,
			Fallbacks:  metrics.SummarizerFallbacksTotal,
		}),
	}

	if cfg.Summaries.Driver == "chromem" {
		index, err := chromemrepo.New(cfg.Summaries.Path, a.logger)
		if err != nil {
			return fmt.Errorf("open summary index: %w", err)
		}
		summaries = index
		pipelineOpts = append(pipelineOpts, clusteringuc.WithSummaryIndex(index))
	}

	if cfg.Summarizer.Model != "" {
		pipelineOpts = append(pipelineOpts, clusteringuc.WithSummarizer(
			openaiTransport.NewSummarizer(&openaiTransport.SummarizerConfig{
				APIKey:        cfg.Summarizer.APIKey,
				BaseURL:       cfg.Summarizer.BaseURL,
				Model:         cfg.Summarizer.Model,
				MaxInputRunes: cfg.Summarizer.MaxInputRunes,
				Temperature:   cfg.Summarizer.Temperature,
				Logger:        a.logger,
			}),
		))
	} else {
		a.logger.Info("No summarizer model configured, cluster summaries are extractive")
	}

	if cfg.Taxonomy.Path != "" {
		pipelineOpts = append(pipelineOpts, clusteringuc.WithConcepts(
			taxonomy.New(cfg.Taxonomy.Path, docEmbedder, cfg.Embedding.Concurrency, a.logger),
		))
	}

	algorithm, err := parseAlgorithm(cfg.Clustering.Algorithm)
	if err != nil {
		return err
	}
	clusterer := clusteringuc.New(
		clusteringuc.WithSeed(cfg.Clustering.Seed),
		clusteringuc.WithWorkers(cfg.Clustering.Workers),
	)
	a.pipeline = clusteringuc.NewPipeline(clusterer, chunks, a.runs, clusteringuc.PipelineConfig{
		Algorithm:          algorithm,
		K:                  cfg.Clustering.K,
		MaxK:               cfg.Clustering.MaxK,
		MaxIterations:      cfg.Clustering.MaxIterations,
		BatchSize:          cfg.Clustering.BatchSize,
		MiniBatchThreshold: cfg.Clustering.MiniBatchThreshold,
		SelectionSample:    cfg.Clustering.SelectionSample,
		Soft: clusteringuc.SoftOptions{
			MinProbability: cfg.Clustering.MinProbability,
			Temperature:    cfg.Clustering.Temperature,
			MaxIterations:  cfg.Clustering.MaxIterations,
		},
		MaxLevels:          cfg.Clustering.MaxLevels,
		SummaryMembers:     cfg.Clustering.SummaryMembers,
		SummaryConcurrency: cfg.Summarizer.Concurrency,
		ConceptThreshold:   cfg.Clustering.ConceptThreshold,
	}, a.logger, pipelineOpts...)

	a.search = searchuc.New(chunks, summaries, queryEmbedder, a.logger,
		searchuc.WithHybridBoost(cfg.Search.HybridBoost),
		searchuc.WithCandidateFactor(cfg.Search.CandidateFactor),
		searchuc.WithExpandConcurrency(cfg.Search.ExpandConcurrency),
		searchuc.WithSourceErrors(metrics.SearchSourceErrorsTotal),
		searchuc.WithHitsObserver(metrics.SearchHits),
	)

	a.health = healthuc.New(a.store,
		healthuc.WithIndex(a.store, "chunk_index", domain.ChunkIndex),
		healthuc.WithIndex(a.store, "summary_index", domain.SummaryIndex),
		healthuc.WithProvider(provider),
	)
	return nil
}

func (a *app) close() {
	a.store.Close()
	_ = a.logger.Sync()
}

// embedder is what the services need from the assembled chain.
type embedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

// buildEmbedder assembles the decorator chain: OpenAI -> Instrumented -> Cached -> Instruction
func (a *app) buildEmbedder(base embedder, instruction string) embedder {
	cfg := a.cfg.Embedding

	var e embedder = embeddinguc.NewInstrumentedEmbedder(base, cfg.Model, 0, a.logger)

	if cfg.Cache.Enabled {
		e = embcache.New(e, a.store, embcache.Config{
			Model: cfg.Model,
			TTL:   time.Duration(cfg.Cache.TTLSec) * time.Second,
		}, metrics.EmbeddingCacheTotal, a.logger)
	}

	// Instruction prefix (outermost, so the cache key includes the instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(e, instruction)
	}
	return e
}

// probeDimensions embeds a fixed text once to learn the model's vector size.
func probeDimensions(ctx context.Context, e domain.Embedder) (int, error) {
	res, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimensions: %w", err)
	}
	if len(res.Embedding) == 0 {
		return 0, fmt.Errorf("probe embedding dimensions: %w", domain.ErrEmbeddingProviderError)
	}
	return len(res.Embedding), nil
}

func parseAlgorithm(s string) (clusteringuc.Algorithm, error) {
	if s == "" {
		return 0, nil
	}
	return clusteringuc.ParseAlgorithm(s)
}
