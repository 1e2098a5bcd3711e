package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/joelhooks/pdf-brain/internal/db"
	"github.com/joelhooks/pdf-brain/internal/domain/search/filter"
)

const (
	vectorAlias = "vector"
	scoreField  = "__vector_score"
	textField   = "__content"
)

// SearchKNN returns the K nearest hashes to q.Vector, best first. Scores are
// cosine similarities clamped to [0,1].
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, errors.New("index name is required")
	case len(q.Vector) == 0:
		return nil, errors.New("vector is required")
	case q.K <= 0:
		return nil, errors.New("k must be positive")
	}

	pre := "*"
	if f := filterClause(q.Filters); f != "" {
		pre = "(" + f + ")"
	}

	args := []string{q.IndexName, pre + "=>[KNN " + strconv.Itoa(q.K) + " @" + vectorAlias + " $BLOB]"}
	if len(q.ReturnFields) > 0 {
		// the distance is only returned when asked for alongside explicit fields
		args = appendReturn(args, append(q.ReturnFields[:len(q.ReturnFields):len(q.ReturnFields)], scoreField))
	}
	args = append(args,
		"SORTBY", scoreField, "ASC",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", db.EncodeVector(q.Vector),
		"DIALECT", "2",
	)

	msgs, err := s.ftSearch(ctx, args)
	if err != nil {
		return nil, err
	}
	res, err := parseReply(msgs, false)
	if err != nil {
		return nil, err
	}
	for i := range res.Entries {
		e := &res.Entries[i]
		if dist, err := strconv.ParseFloat(e.Fields[scoreField], 64); err == nil {
			e.Score = max(0, 1-dist)
		}
		delete(e.Fields, scoreField)
	}
	return res, nil
}

// SearchBM25 matches q.Query against the content field. Scores are raw BM25;
// callers normalize them.
func (s *Store) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, errors.New("index name is required")
	case q.Query == "":
		return nil, errors.New("query is required")
	case q.TopK <= 0:
		return nil, errors.New("topK must be positive")
	}

	query := "@" + textField + ":(" + queryEscaper.Replace(q.Query) + ")"
	if f := filterClause(q.Filters); f != "" {
		query = f + " " + query
	}

	args := appendReturn([]string{q.IndexName, query}, q.ReturnFields)
	args = append(args,
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(q.TopK),
		"DIALECT", "2",
	)

	msgs, err := s.ftSearch(ctx, args)
	if err != nil {
		return nil, err
	}
	return parseReply(msgs, true)
}

func (s *Store) ftSearch(ctx context.Context, args []string) ([]rueidis.RedisMessage, error) {
	msgs, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return msgs, nil
}

func appendReturn(args, fields []string) []string {
	if len(fields) == 0 {
		return args
	}
	args = append(args, "RETURN", strconv.Itoa(len(fields)))
	return append(args, fields...)
}

// parseReply decodes the RESP2 FT.SEARCH layout:
// [total, key, (score,) [field, value, ...], key, ...].
// Malformed entries are skipped.
func parseReply(msgs []rueidis.RedisMessage, withScores bool) (*db.SearchResult, error) {
	if len(msgs) == 0 {
		return &db.SearchResult{}, nil
	}
	total, err := msgs[0].AsInt64()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	stride := 2
	if withScores {
		stride = 3
	}

	res := &db.SearchResult{Total: int(total)}
	for i := 1; i+stride-1 < len(msgs); i += stride {
		key, err := msgs[i].ToString()
		if err != nil {
			continue
		}
		entry := db.SearchEntry{Key: key}

		if withScores {
			raw, err := msgs[i+1].ToString()
			if err != nil {
				continue
			}
			if entry.Score, err = strconv.ParseFloat(raw, 64); err != nil {
				continue
			}
		}

		pairs, err := msgs[i+stride-1].ToArray()
		if err != nil {
			continue
		}
		entry.Fields = fieldMap(pairs)
		res.Entries = append(res.Entries, entry)
	}
	return res, nil
}

func fieldMap(pairs []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for j := 0; j+1 < len(pairs); j += 2 {
		name, err1 := pairs[j].ToString()
		value, err2 := pairs[j+1].ToString()
		if err1 == nil && err2 == nil {
			m[name] = value
		}
	}
	return m
}

// filterClause renders expr as an FT pre-filter: must terms, one OR group
// for should terms, then negated must-not terms.
func filterClause(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}

	var parts []string
	for _, c := range expr.Must() {
		parts = append(parts, tagTerm(c))
	}
	if should := expr.Should(); len(should) > 0 {
		alts := make([]string, len(should))
		for i, c := range should {
			alts[i] = tagTerm(c)
		}
		parts = append(parts, "("+strings.Join(alts, " | ")+")")
	}
	for _, c := range expr.MustNot() {
		parts = append(parts, "-"+tagTerm(c))
	}
	return strings.Join(parts, " ")
}

func tagTerm(c filter.Condition) string {
	return "@" + c.Key() + ":{" + tagEscaper.Replace(c.Match()) + "}"
}

// tagEscaper escapes the punctuation and spaces that split TAG values.
var tagEscaper = newEscaper(",.<>{}\"':;!@#$%^&*()-+=~ ")

// queryEscaper escapes query syntax so user text is matched as plain terms.
var queryEscaper = newEscaper(`\'"@{}()|-~*[]!%^$<>=;+`)

func newEscaper(chars string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(chars))
	for _, r := range chars {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}
