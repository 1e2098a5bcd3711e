// Package filter holds the tag pre-filter applied to chunk searches and to
// the chunk listing behind a clustering run.
package filter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/joelhooks/pdf-brain/internal/domain"
)

// MaxConditionsPerGroup caps each of the must, should and must_not groups.
const MaxConditionsPerGroup = 32

// TagsField is the chunk field holding document tags.
const TagsField = "tags"

// Expression is a conjunction of must conditions, at least one should
// condition (when any are given) and no must_not condition.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates group sizes.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	groups := []struct {
		name  string
		conds []Condition
	}{{"must", must}, {"should", should}, {"must_not", mustNot}}
	for _, g := range groups {
		if len(g.conds) > MaxConditionsPerGroup {
			return Expression{}, fmt.Errorf("%w: %d %s conditions (max %d)",
				domain.ErrInvalidInput, len(g.conds), g.name, MaxConditionsPerGroup)
		}
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// AnyTag matches chunks carrying at least one of tags. Tags are trimmed;
// duplicates collapse into one condition.
func AnyTag(tags []string) (Expression, error) {
	should := make([]Condition, 0, len(tags))
	for _, tag := range tags {
		c, err := NewMatch(TagsField, strings.TrimSpace(tag))
		if err != nil {
			return Expression{}, err
		}
		if !slices.Contains(should, c) {
			should = append(should, c)
		}
	}
	return NewExpression(nil, should, nil)
}

func (e Expression) Must() []Condition    { return e.must }
func (e Expression) Should() []Condition  { return e.should }
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression matches everything.
func (e Expression) IsEmpty() bool {
	return len(e.must)+len(e.should)+len(e.mustNot) == 0
}

// Matches evaluates the expression in memory against the values one item
// holds for field. Conditions on other fields never match.
func (e Expression) Matches(field string, values []string) bool {
	held := func(c Condition) bool {
		return c.key == field && slices.Contains(values, c.match)
	}
	if !all(e.must, held) || slices.ContainsFunc(e.mustNot, held) {
		return false
	}
	return len(e.should) == 0 || slices.ContainsFunc(e.should, held)
}

func all(conds []Condition, pred func(Condition) bool) bool {
	for _, c := range conds {
		if !pred(c) {
			return false
		}
	}
	return true
}

// Condition is an exact match of one tag value.
type Condition struct {
	key   string
	match string
}

// NewMatch requires both a key and a value.
func NewMatch(key, match string) (Condition, error) {
	switch {
	case key == "":
		return Condition{}, fmt.Errorf("%w: filter key is required", domain.ErrInvalidInput)
	case match == "":
		return Condition{}, fmt.Errorf("%w: match value is required for key %q", domain.ErrInvalidInput, key)
	}
	return Condition{key: key, match: match}, nil
}

func (c Condition) Key() string   { return c.key }
func (c Condition) Match() string { return c.match }
