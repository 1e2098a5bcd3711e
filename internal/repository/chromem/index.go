// Package chromem keeps cluster summaries in an embedded chromem-go database,
// an alternative to the redis summary index for single-node deployments.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/domain/search/hit"
	"github.com/joelhooks/pdf-brain/internal/domain/search/provenance"
)

const collectionPrefix = "summaries-"

// Metadata keys stored with every summary document.
const (
	metaRunID     = "run_id"
	metaLevel     = "level"
	metaClusterID = "cluster_id"
	metaConceptID = "concept_id"
	metaLabel     = "label"
)

var errNoEmbedding = errors.New("summary index only accepts precomputed embeddings")

// Index serves nearest-summary queries from the most recent run.
// Each run is written to a fresh collection that replaces the previous one
// only once it is complete.
type Index struct {
	db     *chromem.DB
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current *chromem.Collection
	stamp   int64
}

// New opens the index. An empty path keeps it in memory; otherwise it is
// persisted under path and the latest collection found there is served.
func New(path string, logger *zap.Logger) (*Index, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open summary index %s: %w", path, err)
		}
	}

	ix := &Index{db: db, logger: logger, now: time.Now}
	if err := ix.restore(); err != nil {
		return nil, err
	}
	return ix, nil
}

// restore picks the newest summary collection and drops the rest, which are
// leftovers of interrupted runs.
func (ix *Index) restore() error {
	var names []string
	for name := range ix.db.ListCollections() {
		if strings.HasPrefix(name, collectionPrefix) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	latest := names[len(names)-1]
	for _, name := range names[:len(names)-1] {
		if err := ix.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("drop stale summary collection %s: %w", name, err)
		}
	}
	ix.current = ix.db.GetCollection(latest, noEmbedding)
	ix.stamp, _ = strconv.ParseInt(strings.TrimPrefix(latest, collectionPrefix), 10, 64)
	ix.logger.Info("Summary index restored",
		zap.String("collection", latest),
		zap.Int("summaries", ix.current.Count()),
	)
	return nil
}

// IndexSummaries replaces the served summaries with those of runID.
// Summaries without an embedding are skipped.
func (ix *Index) IndexSummaries(ctx context.Context, runID string, summaries []cluster.Summary) error {
	name := ix.nextName()
	col, err := ix.db.CreateCollection(name, map[string]string{metaRunID: runID}, noEmbedding)
	if err != nil {
		return fmt.Errorf("create summary collection: %w", err)
	}

	docs := make([]chromem.Document, 0, len(summaries))
	for i := range summaries {
		s := &summaries[i]
		if len(s.Embedding) == 0 {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        s.Key(),
			Content:   s.Text,
			Embedding: s.Embedding,
			Metadata: map[string]string{
				metaRunID:     runID,
				metaLevel:     strconv.Itoa(s.Level),
				metaClusterID: strconv.Itoa(s.ClusterID),
				metaConceptID: s.ConceptID,
				metaLabel:     s.SuggestedLabel,
			},
		})
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			_ = ix.db.DeleteCollection(name)
			return fmt.Errorf("add summaries: %w", err)
		}
	}

	ix.mu.Lock()
	prev := ix.current
	ix.current = col
	ix.mu.Unlock()

	if prev != nil && prev.Name != name {
		if err := ix.db.DeleteCollection(prev.Name); err != nil {
			ix.logger.Warn("Failed to drop previous summary collection",
				zap.String("collection", prev.Name), zap.Error(err))
		}
	}
	return nil
}

// NearestSummaries returns up to limit summaries by cosine similarity.
func (ix *Index) NearestSummaries(ctx context.Context, embedding []float32, limit int) ([]hit.Hit, error) {
	ix.mu.RLock()
	col := ix.current
	ix.mu.RUnlock()

	if col == nil || limit <= 0 {
		return nil, nil
	}
	n := min(limit, col.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("nearest summaries: %w", err)
	}

	hits := make([]hit.Hit, 0, len(results))
	for _, r := range results {
		score := max(0, float64(r.Similarity))
		hits = append(hits, hit.New(
			r.ID, "", title(r.Metadata), 0, 0, r.Content, score, provenance.ClusterSummary,
		))
	}
	return hits, nil
}

// nextName returns a collection name that sorts after every earlier one.
func (ix *Index) nextName() string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.stamp = max(ix.now().UnixMilli(), ix.stamp+1)
	return collectionPrefix + fmt.Sprintf("%013d", ix.stamp)
}

func title(meta map[string]string) string {
	if id := meta[metaConceptID]; id != "" {
		return id
	}
	return meta[metaLabel]
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}
