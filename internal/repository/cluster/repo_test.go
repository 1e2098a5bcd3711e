package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/joelhooks/pdf-brain/internal/db"
	"github.com/joelhooks/pdf-brain/internal/domain"
	domcluster "github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/domain/search/provenance"
)

func testRun() *domcluster.Run {
	return &domcluster.Run{
		ID:        "run-2",
		Algorithm: "hard",
		K:         2,
		Levels:    1,
		Centroids: []domcluster.Centroid{{ID: 0, Vector: []float32{1, 0}, Size: 1}, {ID: 1, Vector: []float32{0, 1}, Size: 1}},
		Assignments: []domcluster.HardAssignment{
			{PointID: "a:0", ClusterID: 0, Distance: 0.1},
			{PointID: "b:0", ClusterID: 1, Distance: 0.2},
		},
		Soft: []domcluster.SoftAssignment{
			{PointID: "a:0", ClusterID: 0, Probability: 0.9},
			{PointID: "a:0", ClusterID: 1, Probability: 0.1},
		},
		Summaries: []domcluster.Summary{
			{Level: 0, ClusterID: 0, Text: "About A.", MemberCount: 1, MemberIDs: []string{"a:0"}, ConceptID: "topic-a", Confidence: 0.8, Embedding: []float32{1, 0}},
			{Level: 0, ClusterID: 1, Text: "About B.", MemberCount: 1, SuggestedLabel: "About B.", KeyTopics: []string{"b"}},
		},
		CreatedAt: 1700000000000,
	}
}

func TestEnsureIndex_FlatVector(t *testing.T) {
	repo, ms := newTestRepo(t)
	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	if err := repo.EnsureIndex(context.Background(), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil || created.Name != domain.SummaryIndex {
		t.Fatalf("expected summary index, got %+v", created)
	}
	v := created.Fields[len(created.Fields)-1]
	if v.Algorithm != db.VectorFlat || v.Dim != 4 || v.Alias != "vector" {
		t.Errorf("unexpected vector field %+v", v)
	}
}

func TestSaveRun_SupersedesPrevious(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	ms.scanFn = func(_ context.Context, pattern string) ([]string, error) {
		switch pattern {
		case domain.SummaryKeyPrefix + "*":
			return []string{"pdfbrain:summary:0:0", "pdfbrain:summary:0:5", "pdfbrain:summary:1:0"}, nil
		case domain.MembershipKeyPrefix + "*":
			return []string{"pdfbrain:membership:a:0", "pdfbrain:membership:gone:3"}, nil
		}
		t.Fatalf("unexpected pattern %q", pattern)
		return nil, nil
	}

	var written [][]db.HashSetItem
	ms.hreplaceMultiFn = func(_ context.Context, items []db.HashSetItem) error {
		written = append(written, items)
		return nil
	}
	var doc []byte
	ms.jsonSetFn = func(_ context.Context, key, path string, data []byte) error {
		if key != domain.LatestRunKey || path != "$" {
			t.Errorf("unexpected JSON.SET %s %s", key, path)
		}
		doc = data
		return nil
	}
	var deleted []string
	ms.delMultiFn = func(_ context.Context, keys []string) error {
		deleted = keys
		return nil
	}

	if err := repo.SaveRun(ctx, testRun()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(written) != 2 {
		t.Fatalf("expected summaries and memberships writes, got %d", len(written))
	}
	sums := written[0]
	if len(sums) != 2 || sums[0].Key != "pdfbrain:summary:0:0" {
		t.Fatalf("unexpected summary items %+v", sums)
	}
	if len(sums[0].Fields[fieldVector]) != 8 {
		t.Error("expected encoded embedding on summary 0")
	}
	if _, ok := sums[1].Fields[fieldVector]; ok {
		t.Error("summary without embedding must not carry a vector")
	}

	members := written[1]
	if len(members) != 2 {
		t.Fatalf("expected 2 membership hashes, got %d", len(members))
	}
	a := members[0].Fields
	if a[fieldHardCluster] != "0" || a["p:0"] != "0.9" || a["p:1"] != "0.1" || a[fieldRunID] != "run-2" {
		t.Errorf("unexpected membership fields %v", a)
	}

	sort.Strings(deleted)
	want := []string{"pdfbrain:membership:gone:3", "pdfbrain:summary:0:5", "pdfbrain:summary:1:0"}
	if strings.Join(deleted, ",") != strings.Join(want, ",") {
		t.Errorf("expected stale keys %v, got %v", want, deleted)
	}

	var decoded map[string]any
	if err := json.Unmarshal(doc, &decoded); err != nil {
		t.Fatalf("run document is not JSON: %v", err)
	}
	if decoded["id"] != "run-2" {
		t.Errorf("unexpected run document %s", doc)
	}
	if _, ok := decoded["Assignments"]; ok {
		t.Error("assignments must not be embedded in the run document")
	}
}

func TestSaveRun_WriteFailureKeepsOldRun(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.scanFn = func(context.Context, string) ([]string, error) {
		return []string{"pdfbrain:summary:0:9"}, nil
	}
	ms.hreplaceMultiFn = func(context.Context, []db.HashSetItem) error { return errors.New("OOM") }
	ms.delMultiFn = func(context.Context, []string) error {
		t.Fatal("old run must not be deleted after a failed write")
		return nil
	}

	if err := repo.SaveRun(context.Background(), testRun()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSaveRun_SharedKeysDropFieldsOfPreviousRun(t *testing.T) {
	repo, ks := newMemoryRepo(t)
	ctx := context.Background()

	first := &domcluster.Run{
		ID:          "run-1",
		K:           4,
		Levels:      1,
		Assignments: []domcluster.HardAssignment{{PointID: "a:0", ClusterID: 0, Distance: 0.3}},
		Soft: []domcluster.SoftAssignment{
			{PointID: "a:0", ClusterID: 0, Probability: 0.3},
			{PointID: "a:0", ClusterID: 3, Probability: 0.7},
		},
		Summaries: []domcluster.Summary{
			{Level: 0, ClusterID: 0, Text: "Old.", MemberCount: 2, MemberIDs: []string{"a:0", "c:0"}, KeyTopics: []string{"old-topic"}},
		},
	}
	if err := repo.SaveRun(ctx, first); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := repo.SaveRun(ctx, testRun()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	membership := ks.hashes[membershipKey("a:0")]
	if _, ok := membership["p:3"]; ok {
		t.Errorf("soft membership of the previous run survived: %v", membership)
	}
	if membership[fieldRunID] != "run-2" || membership["p:0"] != "0.9" {
		t.Errorf("unexpected membership %v", membership)
	}

	summary := ks.hashes["pdfbrain:summary:0:0"]
	if _, ok := summary[fieldTopics]; ok {
		t.Errorf("key topics of the previous run survived: %v", summary)
	}

	got, err := repo.LatestRun(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got.Summaries))
	}
	if s := got.Summaries[0]; len(s.KeyTopics) != 0 || len(s.MemberIDs) != 1 {
		t.Errorf("summary carries fields of the previous run: %+v", s)
	}
}

func TestLatestRun_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.LatestRun(context.Background())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestRun_LoadsSummaries(t *testing.T) {
	repo, ms := newTestRepo(t)
	run := testRun()
	doc, _ := json.Marshal(run)

	ms.jsonGetFn = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("[" + string(doc) + "]"), nil
	}
	ms.scanFn = func(context.Context, string) ([]string, error) {
		return []string{"k1", "k2", "k3"}, nil
	}
	ms.hgetAllMultiFn = func(context.Context, []string) ([]map[string]string, error) {
		return []map[string]string{
			summaryToHash("run-2", &run.Summaries[1]),
			summaryToHash("run-1", &run.Summaries[0]), // left over from an older run
			summaryToHash("run-2", &run.Summaries[0]),
		}, nil
	}

	got, err := repo.LatestRun(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "run-2" || got.K != 2 || len(got.Centroids) != 2 {
		t.Fatalf("unexpected run %+v", got)
	}
	if len(got.Summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(got.Summaries))
	}
	if got.Summaries[0].ClusterID != 0 || got.Summaries[0].ConceptID != "topic-a" {
		t.Errorf("summaries not ordered or decoded: %+v", got.Summaries[0])
	}
	if got.Summaries[1].KeyTopics[0] != "b" {
		t.Errorf("key topics not decoded: %+v", got.Summaries[1])
	}
}

func TestNearestSummaries(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if q.IndexName != domain.SummaryIndex || q.K != 3 {
			t.Errorf("unexpected query %+v", q)
		}
		return &db.SearchResult{Total: 2, Entries: []db.SearchEntry{
			{Key: "pdfbrain:summary:1:2", Score: 0.7, Fields: map[string]string{
				fieldLevel: "1", fieldClusterID: "2", fieldContent: "Overview.", fieldLabel: "Overview.",
			}},
			{Key: "pdfbrain:summary:bad", Score: 0.6, Fields: map[string]string{fieldLevel: "x"}},
		}}, nil
	}

	hits, err := repo.NearestSummaries(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected malformed entry to be skipped, got %d hits", len(hits))
	}
	h := hits[0]
	if h.ID() != "1:2" || h.Title() != "Overview." || h.Provenance() != provenance.ClusterSummary {
		t.Errorf("unexpected hit %+v", h)
	}
	if h.DedupKey() != "summary:1:2" {
		t.Errorf("unexpected dedup key %q", h.DedupKey())
	}
}
