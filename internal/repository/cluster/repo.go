package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/joelhooks/pdf-brain/internal/db"
	"github.com/joelhooks/pdf-brain/internal/domain"
	domcluster "github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/domain/search/filter"
	"github.com/joelhooks/pdf-brain/internal/domain/search/hit"
	"github.com/joelhooks/pdf-brain/internal/domain/search/provenance"
)

// store is the consumer interface for cluster run persistence (ISP).
type store interface {
	HReplaceMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	DelMulti(ctx context.Context, keys []string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
}

// Repo persists clustering runs: summary hashes (searchable through the
// summary FT index), per-chunk membership hashes and the run document.
type Repo struct {
	store store
}

// New creates a cluster run repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureIndex creates the summary FT index for vectors of dim if it is missing.
// Summaries are few, so the vector field is FLAT.
func (r *Repo) EnsureIndex(ctx context.Context, dim int) error {
	exists, err := r.store.IndexExists(ctx, domain.SummaryIndex)
	if err != nil {
		return fmt.Errorf("check summary index: %w", err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(domain.SummaryIndex).
		Prefix(domain.SummaryKeyPrefix).
		Numeric(fieldLevel).
		Tag(fieldConceptID).
		VectorFlat(fieldVector, dim).As("vector").
		Build()
	if err != nil {
		return fmt.Errorf("build summary index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create summary index: %w", err)
	}
	return nil
}

// SaveRun stores run and supersedes the previous one. Every hash is replaced
// whole, so a key shared with the previous run keeps none of its old fields.
// New hashes are written before stale ones are removed, so readers never see
// an empty summary index.
func (r *Repo) SaveRun(ctx context.Context, run *domcluster.Run) error {
	oldSummaries, err := r.store.Scan(ctx, domain.SummaryKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("scan summaries: %w", err)
	}
	oldMembers, err := r.store.Scan(ctx, domain.MembershipKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("scan memberships: %w", err)
	}

	summaries := make([]db.HashSetItem, len(run.Summaries))
	for i := range run.Summaries {
		s := &run.Summaries[i]
		summaries[i] = db.HashSetItem{Key: summaryKey(s.Key()), Fields: summaryToHash(run.ID, s)}
	}
	if err := r.store.HReplaceMulti(ctx, summaries); err != nil {
		return fmt.Errorf("write summaries: %w", err)
	}

	members := membershipItems(run)
	if err := r.store.HReplaceMulti(ctx, members); err != nil {
		return fmt.Errorf("write memberships: %w", err)
	}

	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := r.store.JSONSet(ctx, domain.LatestRunKey, "$", doc); err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	stale := staleKeys(oldSummaries, summaries)
	stale = append(stale, staleKeys(oldMembers, members)...)
	if err := r.store.DelMulti(ctx, stale); err != nil {
		return fmt.Errorf("remove superseded run: %w", err)
	}
	return nil
}

// LatestRun loads the most recent run with its summaries (without embeddings).
// Returns domain.ErrNotFound when no run was saved yet.
func (r *Repo) LatestRun(ctx context.Context) (domcluster.Run, error) {
	raw, err := r.store.JSONGet(ctx, domain.LatestRunKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domcluster.Run{}, fmt.Errorf("latest run: %w", domain.ErrNotFound)
		}
		return domcluster.Run{}, fmt.Errorf("latest run: %w", err)
	}

	var run domcluster.Run
	if err := json.Unmarshal(unwrapJSONPath(raw), &run); err != nil {
		return domcluster.Run{}, fmt.Errorf("decode run: %w", err)
	}

	keys, err := r.store.Scan(ctx, domain.SummaryKeyPrefix+"*")
	if err != nil {
		return domcluster.Run{}, fmt.Errorf("scan summaries: %w", err)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return domcluster.Run{}, fmt.Errorf("load summaries: %w", err)
	}
	for _, m := range maps {
		if len(m) == 0 || m[fieldRunID] != run.ID {
			continue
		}
		s, err := summaryFromHash(m)
		if err != nil {
			return domcluster.Run{}, err
		}
		run.Summaries = append(run.Summaries, s)
	}
	sort.Slice(run.Summaries, func(i, j int) bool {
		a, b := run.Summaries[i], run.Summaries[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		return a.ClusterID < b.ClusterID
	})
	return run, nil
}

// NearestSummaries runs KNN over summary embeddings of every level.
func (r *Repo) NearestSummaries(ctx context.Context, embedding []float32, limit int) ([]hit.Hit, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    domain.SummaryIndex,
		Filters:      filter.Expression{},
		Vector:       embedding,
		K:            limit,
		ReturnFields: []string{fieldLevel, fieldClusterID, fieldContent, fieldLabel, fieldConceptID},
	})
	if err != nil {
		return nil, fmt.Errorf("nearest summaries: %w", err)
	}
	if sr == nil {
		return nil, nil
	}

	hits := make([]hit.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		s, err := summaryFromHash(e.Fields)
		if err != nil {
			continue
		}
		hits = append(hits, hit.New(
			s.Key(), "", summaryTitle(&s), 0, 0, s.Text, e.Score, provenance.ClusterSummary,
		))
	}
	return hits, nil
}

func summaryKey(key string) string {
	return domain.SummaryKeyPrefix + key
}

func membershipKey(pointID string) string {
	return domain.MembershipKeyPrefix + pointID
}

func staleKeys(old []string, current []db.HashSetItem) []string {
	keep := make(map[string]struct{}, len(current))
	for _, it := range current {
		keep[it.Key] = struct{}{}
	}
	var stale []string
	for _, k := range old {
		if _, ok := keep[k]; !ok {
			stale = append(stale, k)
		}
	}
	return stale
}

// unwrapJSONPath strips the array JSON.GET wraps around results of a "$" path.
func unwrapJSONPath(raw []byte) []byte {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) == 1 {
		return arr[0]
	}
	return raw
}
