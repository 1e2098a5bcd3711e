// Package chunk describes the embedded text passages the engine clusters and retrieves.
package chunk

import (
	"fmt"
	"strconv"
	"strings"
)

// Chunk is one embedded passage of a source document.
type Chunk struct {
	DocumentID string
	Title      string
	Page       int
	Index      int
	Content    string
	Tags       []string
	Embedding  []float32
}

// ID is "<document>:<index>", unique across the corpus.
func (c Chunk) ID() string {
	return ID(c.DocumentID, c.Index)
}

// ID formats a chunk id.
func ID(documentID string, index int) string {
	return documentID + ":" + strconv.Itoa(index)
}

// ParseID splits a chunk id; the document part may itself contain ':'.
func ParseID(id string) (documentID string, index int, err error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("malformed chunk id %q", id)
	}
	index, err = strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("chunk id %q: %w", id, err)
	}
	return id[:i], index, nil
}
