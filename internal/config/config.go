// Package config loads the YAML configuration for an environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the pdf-brain configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Search     SearchConfig     `yaml:"search"`
	Taxonomy   TaxonomyConfig   `yaml:"taxonomy"`
	Summaries  SummariesConfig  `yaml:"summaries"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds redis connection and chunk index settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds the OpenAI-compatible embedding provider settings.
type EmbeddingConfig struct {
	APIKey              string      `yaml:"api_key"`
	BaseURL             string      `yaml:"base_url"`
	Model               string      `yaml:"model"`
	Dimensions          int         `yaml:"dimensions"`
	DocumentInstruction string      `yaml:"document_instruction"`
	QueryInstruction    string      `yaml:"query_instruction"`
	Concurrency         int         `yaml:"concurrency"`
	Cache               CacheConfig `yaml:"cache"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"` // 0 = no expiry
}

// SummarizerConfig holds the chat completion settings used for cluster summaries.
// An empty model disables abstractive summaries.
type SummarizerConfig struct {
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	Model         string  `yaml:"model"`
	MaxInputRunes int     `yaml:"max_input_runes"`
	Temperature   float32 `yaml:"temperature"`
	Concurrency   int     `yaml:"concurrency"`
}

// ClusteringConfig holds batch clustering settings.
type ClusteringConfig struct {
	Algorithm          string  `yaml:"algorithm"` // hard, mini_batch, soft (default: picked by size)
	K                  int     `yaml:"k"`         // 0 = select by BIC
	MaxK               int     `yaml:"max_k"`
	MaxIterations      int     `yaml:"max_iterations"`
	BatchSize          int     `yaml:"batch_size"`
	MiniBatchThreshold int     `yaml:"mini_batch_threshold"`
	SelectionSample    int     `yaml:"selection_sample"`
	MaxLevels          int     `yaml:"max_levels"`
	SummaryMembers     int     `yaml:"summary_members"`
	Temperature        float64 `yaml:"temperature"`
	MinProbability     float64 `yaml:"min_probability"`
	ConceptThreshold   float64 `yaml:"concept_threshold"`
	Seed               uint64  `yaml:"seed"` // 0 = random
	Workers            int     `yaml:"workers"`
	TimeoutSec         int     `yaml:"timeout_sec"`
}

// SearchConfig holds retrieval merge settings.
type SearchConfig struct {
	HybridBoost       float64 `yaml:"hybrid_boost"`
	CandidateFactor   int     `yaml:"candidate_factor"`
	ExpandConcurrency int     `yaml:"expand_concurrency"`
}

// TaxonomyConfig points at the concept catalogue. An empty path disables concept mapping.
type TaxonomyConfig struct {
	Path string `yaml:"path"`
}

// SummariesConfig selects where cluster summaries are indexed for retrieval.
type SummariesConfig struct {
	Driver string `yaml:"driver"` // redis, chromem (default: redis)
	Path   string `yaml:"path"`   // chromem persistence directory; empty keeps it in memory
}

// PathEnv overrides the config file location.
const PathEnv = "PDFBRAIN_CONFIG"

// Load reads config/<env>.yaml (or $PDFBRAIN_CONFIG), expands ${VAR} and
// ${VAR:-default}, applies defaults and validates. Unknown keys are errors.
func Load(env string) (Config, error) {
	path := os.Getenv(PathEnv)
	if path == "" {
		path = findConfigPath(env)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(expandEnvVars(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// GetEnv returns $ENV, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

type number interface {
	~int | ~uint64 | ~float32 | ~float64
}

func orDefault[T number](v *T, def T) {
	if *v <= 0 {
		*v = def
	}
}

func orString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

// ApplyDefaults fills unset fields. Non-positive numbers count as unset.
func (c *Config) ApplyDefaults() {
	orDefault(&c.HTTP.ReadTimeoutSec, 10)
	orDefault(&c.HTTP.WriteTimeoutSec, 10)
	orDefault(&c.HTTP.ShutdownSec, 10)

	orDefault(&c.Database.ReadinessTimeout, 10)
	orDefault(&c.Database.HNSWM, 32)
	orDefault(&c.Database.HNSWEFConstruct, 400)

	orDefault(&c.Embedding.Concurrency, 4)

	// the summarizer usually lives behind the same endpoint as the embedder
	orString(&c.Summarizer.BaseURL, c.Embedding.BaseURL)
	orString(&c.Summarizer.APIKey, c.Embedding.APIKey)
	orDefault(&c.Summarizer.MaxInputRunes, 12000)
	orDefault(&c.Summarizer.Concurrency, 4)

	cl := &c.Clustering
	orDefault(&cl.MaxK, 20)
	orDefault(&cl.MaxIterations, 100)
	orDefault(&cl.BatchSize, 100)
	orDefault(&cl.MiniBatchThreshold, 5000)
	orDefault(&cl.SelectionSample, 2000)
	orDefault(&cl.MaxLevels, 2)
	orDefault(&cl.SummaryMembers, 20)
	orDefault(&cl.Temperature, 0.5)
	orDefault(&cl.MinProbability, 0.01)
	orDefault(&cl.ConceptThreshold, 0.75)
	orDefault(&cl.TimeoutSec, 1800)

	orDefault(&c.Search.HybridBoost, 1.2)
	orDefault(&c.Search.CandidateFactor, 2)
	orDefault(&c.Search.ExpandConcurrency, 4)

	orString(&c.Summaries.Driver, "redis")
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.HTTP.Port > 0 && c.HTTP.Port <= 65535, "http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	check(len(c.Database.Addrs) > 0, "database.addrs is required")
	check(c.Embedding.Model != "", "embedding.model is required")
	check(c.Embedding.Dimensions >= 0, "embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)

	switch c.Clustering.Algorithm {
	case "", "hard", "kmeans", "mini_batch", "minibatch", "soft":
	default:
		check(false, "clustering.algorithm must be \"hard\", \"mini_batch\" or \"soft\", got %q", c.Clustering.Algorithm)
	}
	check(c.Clustering.K >= 0, "clustering.k must not be negative, got %d", c.Clustering.K)
	check(c.Clustering.K <= c.Clustering.MaxK || c.Clustering.K == 0,
		"clustering.k (%d) must not exceed clustering.max_k (%d)", c.Clustering.K, c.Clustering.MaxK)
	check(c.Clustering.ConceptThreshold <= 1,
		"clustering.concept_threshold must be at most 1, got %v", c.Clustering.ConceptThreshold)
	check(c.Clustering.MinProbability < 1,
		"clustering.min_probability must be below 1, got %v", c.Clustering.MinProbability)
	check(c.Search.HybridBoost >= 1, "search.hybrid_boost must be at least 1, got %v", c.Search.HybridBoost)
	check(c.Summaries.Driver == "redis" || c.Summaries.Driver == "chromem",
		"summaries.driver must be \"redis\" or \"chromem\", got %q", c.Summaries.Driver)

	return errors.Join(errs...)
}

// findConfigPath prefers ./config, then the repository's config directory
// (so tests run from any package directory find it).
func findConfigPath(env string) string {
	name := env + ".yaml"
	local := filepath.Join("config", name)
	if fileExists(local) {
		return local
	}

	_, self, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(self)))
	if p := filepath.Join(root, "config", name); fileExists(p) {
		return p
	}
	return local
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars substitutes ${VAR} and ${VAR:-default}.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		name, def, hasDef := strings.Cut(string(match[2:len(match)-1]), ":-")
		if v := os.Getenv(name); v != "" || !hasDef {
			return []byte(v)
		}
		return []byte(def)
	})
}
