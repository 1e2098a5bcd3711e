package search

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelhooks/pdf-brain/internal/domain/search/hit"
	"github.com/joelhooks/pdf-brain/internal/domain/search/provenance"
)

// expandCeiling is the hard limit on a window, as a multiple of the budget.
const expandCeiling = 1.2

// window is a contiguous run of chunks [lo, hi] of one document.
type window struct {
	lo, hi int
	text   string
}

// expansionCache holds the windows built during one search call, keyed by document id.
type expansionCache struct {
	mu      sync.RWMutex
	windows map[string][]window
}

func newExpansionCache() *expansionCache {
	return &expansionCache{windows: make(map[string][]window)}
}

func (c *expansionCache) lookup(documentID string, chunkIndex int) (window, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.windows[documentID] {
		if chunkIndex >= w.lo && chunkIndex <= w.hi {
			return w, true
		}
	}
	return window{}, false
}

func (c *expansionCache) store(documentID string, w window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows[documentID] = append(c.windows[documentID], w)
}

// expand attaches a context window to every chunk hit. Documents are expanded
// concurrently; hits of one document go in rank order so a later hit falling
// inside an earlier window reuses it.
func (s *Service) expand(ctx context.Context, hits []hit.Hit, budget int) ([]hit.Hit, error) {
	cache := newExpansionCache()

	byDoc := make(map[string][]int)
	var docs []string
	for i, h := range hits {
		if h.Provenance() == provenance.ClusterSummary || h.DocumentID() == "" {
			continue
		}
		if _, ok := byDoc[h.DocumentID()]; !ok {
			docs = append(docs, h.DocumentID())
		}
		byDoc[h.DocumentID()] = append(byDoc[h.DocumentID()], i)
	}

	out := append([]hit.Hit(nil), hits...)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.expandConcurrency)
	for _, doc := range docs {
		g.Go(func() error {
			for _, i := range byDoc[doc] {
				h := out[i]
				w, ok := cache.lookup(doc, h.ChunkIndex())
				if !ok {
					var err error
					w, err = s.buildWindow(gctx, h, budget)
					if err != nil {
						return err
					}
					cache.store(doc, w)
				}
				out[i] = h.WithExpanded(w.text)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// buildWindow grows a window around h, alternating before and after, while
// it is shorter than budget. A direction stops at the document edge, on a
// read error, or when its next chunk would push the window past
// budget*expandCeiling characters.
func (s *Service) buildWindow(ctx context.Context, h hit.Hit, budget int) (window, error) {
	ceiling := int(float64(budget) * expandCeiling)
	size := utf8.RuneCountInString(h.Content())

	var before, after []string
	lo, hi := h.ChunkIndex(), h.ChunkIndex()
	backOpen, fwdOpen := lo > 0, true
	forward := false

	for size < budget && (backOpen || fwdOpen) {
		if err := ctx.Err(); err != nil {
			return window{}, err
		}
		forward = !forward
		if forward && !fwdOpen {
			forward = false
		} else if !forward && !backOpen {
			forward = true
		}

		idx := lo - 1
		if forward {
			idx = hi + 1
		}
		text, ok, err := s.chunks.AdjacentChunk(ctx, h.DocumentID(), idx)
		if err != nil {
			if isCtxErr(ctx, err) {
				return window{}, err
			}
			s.logger.Warn("Adjacent chunk read failed",
				zap.String("document_id", h.DocumentID()), zap.Int("chunk_index", idx), zap.Error(err))
			ok = false
		}

		n := utf8.RuneCountInString(text)
		if !ok || size+n > ceiling {
			if forward {
				fwdOpen = false
			} else {
				backOpen = false
			}
			continue
		}

		size += n
		if forward {
			after = append(after, text)
			hi = idx
		} else {
			before = append(before, text)
			lo = idx
			backOpen = lo > 0
		}
	}

	parts := make([]string, 0, len(before)+1+len(after))
	for i := len(before) - 1; i >= 0; i-- {
		parts = append(parts, before[i])
	}
	parts = append(parts, h.Content())
	parts = append(parts, after...)
	return window{lo: lo, hi: hi, text: strings.Join(parts, "\n")}, nil
}
