// Package taxonomy loads the controlled concept vocabulary from a YAML file.
package taxonomy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/concept"
)

// DefaultEmbedConcurrency bounds concurrent Embed calls while loading.
const DefaultEmbedConcurrency = 4

type file struct {
	Concepts []concept.Concept `yaml:"concepts"`
}

// Repo is a read-only concept catalogue. The file is read once; concepts that
// arrive without an embedding are embedded on first use and kept in memory.
type Repo struct {
	path        string
	embedder    domain.Embedder
	concurrency int
	logger      *zap.Logger

	mu     sync.Mutex
	loaded []concept.Concept
}

// New creates a catalogue backed by the YAML file at path. embedder may be nil
// when every concept carries its own vector.
func New(path string, embedder domain.Embedder, concurrency int, logger *zap.Logger) *Repo {
	if concurrency <= 0 {
		concurrency = DefaultEmbedConcurrency
	}
	return &Repo{
		path:        path,
		embedder:    embedder,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Concepts returns the catalogue. A failed load is retried on the next call.
func (r *Repo) Concepts(ctx context.Context) ([]concept.Concept, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded != nil {
		return r.loaded, nil
	}
	concepts, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	r.loaded = concepts
	return concepts, nil
}

func (r *Repo) load(ctx context.Context) ([]concept.Concept, error) {
	data, err := os.ReadFile(filepath.Clean(r.path))
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", r.path, err)
	}
	concepts, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("taxonomy %s: %w", r.path, err)
	}

	var missing []int
	for i := range concepts {
		if len(concepts[i].Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		if r.embedder == nil {
			return nil, fmt.Errorf("taxonomy %s: %d concepts lack embeddings and no embedder is configured: %w",
				r.path, len(missing), domain.ErrCollaboratorUnavailable)
		}
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = concepts[i].EmbeddingText()
		}
		vecs, err := domain.EmbedConcurrently(ctx, r.embedder, texts, r.concurrency)
		if err != nil {
			return nil, fmt.Errorf("embed taxonomy: %w", err)
		}
		for j, i := range missing {
			concepts[i].Embedding = vecs[j]
		}
	}

	r.logger.Info("Taxonomy loaded",
		zap.String("path", r.path),
		zap.Int("concepts", len(concepts)),
		zap.Int("embedded", len(missing)),
	)
	return concepts, nil
}

// Parse decodes a catalogue document and checks that ids are present and unique.
func Parse(data []byte) ([]concept.Concept, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Concepts))
	for i, c := range f.Concepts {
		if c.ID == "" {
			return nil, domain.NewInvalidInput(fmt.Sprintf("concepts[%d].id", i), "empty")
		}
		if c.PrefLabel == "" {
			return nil, domain.NewInvalidInput(fmt.Sprintf("concepts[%d].pref_label", i), "empty")
		}
		if _, dup := seen[c.ID]; dup {
			return nil, domain.NewInvalidInput(fmt.Sprintf("concepts[%d].id", i), c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	if f.Concepts == nil {
		return []concept.Concept{}, nil
	}
	return f.Concepts, nil
}
