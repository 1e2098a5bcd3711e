package cluster

import (
	"context"
	"maps"
	"strings"
	"testing"

	"github.com/joelhooks/pdf-brain/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hreplaceMultiFn func(ctx context.Context, items []db.HashSetItem) error
	hgetAllMultiFn  func(ctx context.Context, keys []string) ([]map[string]string, error)
	delMultiFn      func(ctx context.Context, keys []string) error
	scanFn          func(ctx context.Context, pattern string) ([]string, error)
	jsonSetFn       func(ctx context.Context, key, path string, data []byte) error
	jsonGetFn       func(ctx context.Context, key string, paths ...string) ([]byte, error)
	searchKNNFn     func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	indexExistsFn   func(ctx context.Context, name string) (bool, error)
	createIndexFn   func(ctx context.Context, def *db.IndexDefinition) error
}

func (m *mockStore) HReplaceMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hreplaceMultiFn != nil {
		return m.hreplaceMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return make([]map[string]string, len(keys)), nil
}

func (m *mockStore) DelMulti(ctx context.Context, keys []string) error {
	if m.delMultiFn != nil {
		return m.delMultiFn(ctx, keys)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) JSONSet(ctx context.Context, key, path string, data []byte) error {
	if m.jsonSetFn != nil {
		return m.jsonSetFn(ctx, key, path, data)
	}
	return nil
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms), ms
}

// memoryKeyspace backs a mockStore with in-process hashes and one JSON
// document. Hash writes merge fields the way HSET does, and a replace is an
// UNLINK followed by that same merge.
type memoryKeyspace struct {
	hashes map[string]map[string]string
	doc    []byte
}

func (k *memoryKeyspace) hset(key string, fields map[string]string) {
	h, ok := k.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		k.hashes[key] = h
	}
	for f, v := range fields {
		h[f] = v
	}
}

func newMemoryRepo(t *testing.T) (*Repo, *memoryKeyspace) {
	t.Helper()
	ks := &memoryKeyspace{hashes: make(map[string]map[string]string)}
	ms := &mockStore{
		hreplaceMultiFn: func(_ context.Context, items []db.HashSetItem) error {
			for _, item := range items {
				delete(ks.hashes, item.Key)
				ks.hset(item.Key, item.Fields)
			}
			return nil
		},
		hgetAllMultiFn: func(_ context.Context, keys []string) ([]map[string]string, error) {
			out := make([]map[string]string, len(keys))
			for i, key := range keys {
				out[i] = maps.Clone(ks.hashes[key])
			}
			return out, nil
		},
		delMultiFn: func(_ context.Context, keys []string) error {
			for _, key := range keys {
				delete(ks.hashes, key)
			}
			return nil
		},
		scanFn: func(_ context.Context, pattern string) ([]string, error) {
			prefix := strings.TrimSuffix(pattern, "*")
			var keys []string
			for key := range ks.hashes {
				if strings.HasPrefix(key, prefix) {
					keys = append(keys, key)
				}
			}
			return keys, nil
		},
		jsonSetFn: func(_ context.Context, _, _ string, data []byte) error {
			ks.doc = data
			return nil
		},
		jsonGetFn: func(context.Context, string, ...string) ([]byte, error) {
			if ks.doc == nil {
				return nil, db.ErrKeyNotFound
			}
			return ks.doc, nil
		},
	}
	return New(ms), ks
}
