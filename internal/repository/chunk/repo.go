package chunk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joelhooks/pdf-brain/internal/db"
	"github.com/joelhooks/pdf-brain/internal/domain"
	domchunk "github.com/joelhooks/pdf-brain/internal/domain/chunk"
	"github.com/joelhooks/pdf-brain/internal/domain/search/filter"
	"github.com/joelhooks/pdf-brain/internal/domain/search/hit"
	"github.com/joelhooks/pdf-brain/internal/domain/search/provenance"
)

// store is the consumer interface for chunk operations (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SupportsTextSearch(ctx context.Context) bool
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
}

// HNSWConfig holds HNSW parameters for the chunk vector index.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo stores chunk hashes under pdfbrain:chunk:<doc>:<idx> and serves the
// chunk side of retrieval.
type Repo struct {
	store store
	hnsw  HNSWConfig
}

// New creates a chunk repository.
func New(s store, hnsw HNSWConfig) *Repo {
	return &Repo{store: s, hnsw: hnsw}
}

var returnFields = []string{fieldDocID, fieldTitle, fieldPage, fieldChunkIndex, fieldContent}

// EnsureIndex creates the chunk FT index for vectors of dim if it is missing.
func (r *Repo) EnsureIndex(ctx context.Context, dim int) error {
	exists, err := r.store.IndexExists(ctx, domain.ChunkIndex)
	if err != nil {
		return fmt.Errorf("check chunk index: %w", err)
	}
	if exists {
		return nil
	}

	b := db.NewIndex(domain.ChunkIndex).
		Prefix(domain.ChunkKeyPrefix).
		Tag(fieldDocID).
		TagList(fieldTags, tagSeparator).
		Numeric(fieldPage).
		Numeric(fieldChunkIndex)
	if r.store.SupportsTextSearch(ctx) {
		b = b.Text(fieldContent)
	}
	def, err := b.
		VectorHNSW(fieldVector, dim, r.hnsw.M, r.hnsw.EFConstruct).As("vector").
		Build()
	if err != nil {
		return fmt.Errorf("build chunk index: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create chunk index: %w", err)
	}
	return nil
}

// Upsert writes chunks in one pipelined round-trip.
func (r *Repo) Upsert(ctx context.Context, chunks []domchunk.Chunk) error {
	items := make([]db.HashSetItem, len(chunks))
	for i := range chunks {
		if chunks[i].DocumentID == "" {
			return domain.NewInvalidInput("document_id", "")
		}
		items[i] = db.HashSetItem{Key: key(chunks[i].ID()), Fields: toHash(&chunks[i])}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

// NearestChunks runs a KNN query over chunk vectors. Scores are cosine
// similarities in [0,1].
func (r *Repo) NearestChunks(
	ctx context.Context, embedding []float32, limit int, filters filter.Expression,
) ([]hit.Hit, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    domain.ChunkIndex,
		Filters:      filters,
		Vector:       embedding,
		K:            limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("nearest chunks: %w", err)
	}
	return toHits(sr, provenance.Vector), nil
}

// KeywordSearch runs BM25 over chunk text. Scores are raw BM25 values.
func (r *Repo) KeywordSearch(
	ctx context.Context, query string, limit int, filters filter.Expression,
) ([]hit.Hit, error) {
	if !r.store.SupportsTextSearch(ctx) {
		return nil, domain.ErrKeywordSearchNotSupported
	}
	sr, err := r.store.SearchBM25(ctx, &db.TextQuery{
		IndexName:    domain.ChunkIndex,
		Query:        query,
		Filters:      filters,
		TopK:         limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return toHits(sr, provenance.Keyword), nil
}

// AdjacentChunk returns the text of chunk idx of documentID.
func (r *Repo) AdjacentChunk(ctx context.Context, documentID string, idx int) (string, bool, error) {
	if idx < 0 {
		return "", false, nil
	}
	m, err := r.store.HGetAll(ctx, key(domchunk.ID(documentID, idx)))
	if err != nil {
		return "", false, fmt.Errorf("adjacent chunk %s:%d: %w", documentID, idx, err)
	}
	if len(m) == 0 {
		return "", false, nil
	}
	return m[fieldContent], true, nil
}

// ListChunks loads every chunk with its embedding, keeping those whose tags
// match filters. Keys are scanned and fetched in pipelined batches.
func (r *Repo) ListChunks(ctx context.Context, filters filter.Expression) ([]domchunk.Chunk, error) {
	keys, err := r.store.Scan(ctx, domain.ChunkKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}

	out := make([]domchunk.Chunk, 0, len(keys))
	for start := 0; start < len(keys); start += fetchBatch {
		batch := keys[start:min(start+fetchBatch, len(keys))]
		maps, err := r.store.HGetAllMulti(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("load chunks: %w", err)
		}
		for i, m := range maps {
			if len(m) == 0 {
				continue // deleted between SCAN and HGETALL
			}
			c, err := fromHash(m)
			if err != nil {
				return nil, fmt.Errorf("chunk %s: %w", strings.TrimPrefix(batch[i], domain.ChunkKeyPrefix), err)
			}
			if !filters.Matches(filter.TagsField, c.Tags) {
				continue
			}
			out = append(out, c)
		}
	}
	return out, nil
}

const fetchBatch = 256

func key(id string) string {
	return domain.ChunkKeyPrefix + id
}

func toHits(sr *db.SearchResult, p provenance.Provenance) []hit.Hit {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	hits := make([]hit.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		hits = append(hits, toHit(e, p))
	}
	return hits
}
