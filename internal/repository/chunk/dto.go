package chunk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joelhooks/pdf-brain/internal/db"
	domchunk "github.com/joelhooks/pdf-brain/internal/domain/chunk"
	"github.com/joelhooks/pdf-brain/internal/domain/search/hit"
	"github.com/joelhooks/pdf-brain/internal/domain/search/provenance"
)

// Hash field names.
const (
	fieldDocID      = "doc_id"
	fieldTitle      = "title"
	fieldPage       = "page"
	fieldChunkIndex = "chunk_index"
	fieldTags       = "tags"
	fieldContent    = "__content"
	fieldVector     = "__vector"

	tagSeparator = ","
)

func toHash(c *domchunk.Chunk) map[string]string {
	m := map[string]string{
		fieldDocID:      c.DocumentID,
		fieldTitle:      c.Title,
		fieldPage:       strconv.Itoa(c.Page),
		fieldChunkIndex: strconv.Itoa(c.Index),
		fieldContent:    c.Content,
	}
	if len(c.Tags) > 0 {
		m[fieldTags] = strings.Join(c.Tags, tagSeparator)
	}
	if len(c.Embedding) > 0 {
		m[fieldVector] = db.EncodeVector(c.Embedding)
	}
	return m
}

func fromHash(m map[string]string) (domchunk.Chunk, error) {
	c := domchunk.Chunk{
		DocumentID: m[fieldDocID],
		Title:      m[fieldTitle],
		Content:    m[fieldContent],
	}
	var err error
	if c.Page, err = atoi(m, fieldPage); err != nil {
		return domchunk.Chunk{}, err
	}
	if c.Index, err = atoi(m, fieldChunkIndex); err != nil {
		return domchunk.Chunk{}, err
	}
	if t := m[fieldTags]; t != "" {
		c.Tags = strings.Split(t, tagSeparator)
	}
	if v, ok := m[fieldVector]; ok {
		c.Embedding = db.DecodeVector(v)
		if c.Embedding == nil {
			return domchunk.Chunk{}, fmt.Errorf("corrupt vector of %d bytes", len(v))
		}
	}
	return c, nil
}

func toHit(e db.SearchEntry, p provenance.Provenance) hit.Hit {
	page, _ := strconv.Atoi(e.Fields[fieldPage])
	idx, _ := strconv.Atoi(e.Fields[fieldChunkIndex])
	return hit.New(
		domchunk.ID(e.Fields[fieldDocID], idx),
		e.Fields[fieldDocID], e.Fields[fieldTitle], page, idx,
		e.Fields[fieldContent], e.Score, p,
	)
}

func atoi(m map[string]string, field string) (int, error) {
	v, ok := m[field]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}
	return n, nil
}
