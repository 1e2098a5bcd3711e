package filter

import (
	"errors"
	"strings"
	"testing"

	"github.com/joelhooks/pdf-brain/internal/domain"
)

func TestNewMatch_Validation(t *testing.T) {
	if _, err := NewMatch("", "x"); err == nil {
		t.Error("expected error for empty key")
	}
	_, err := NewMatch("tags", "")
	if err == nil {
		t.Fatal("expected error for empty match")
	}
	if !strings.Contains(err.Error(), `"tags"`) {
		t.Errorf("error = %q", err)
	}
}

func TestNewExpression_TooManyConditions(t *testing.T) {
	conds := make([]Condition, MaxConditionsPerGroup+1)
	for i := range conds {
		conds[i], _ = NewMatch("tags", "t")
	}
	if _, err := NewExpression(conds, nil, nil); err == nil {
		t.Error("expected error for too many must conditions")
	}
	if _, err := NewExpression(nil, conds, nil); err == nil {
		t.Error("expected error for too many should conditions")
	}
	if _, err := NewExpression(nil, nil, conds); err == nil {
		t.Error("expected error for too many must_not conditions")
	}
}

func TestAnyTag(t *testing.T) {
	e, err := AnyTag([]string{"ml", "papers"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.Should()) != 2 || len(e.Must()) != 0 {
		t.Fatalf("unexpected groups: must=%d should=%d", len(e.Must()), len(e.Should()))
	}
	if e.Should()[0].Key() != TagsField {
		t.Errorf("Key() = %q", e.Should()[0].Key())
	}

	empty, err := AnyTag(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !empty.IsEmpty() {
		t.Error("expected empty expression")
	}

	if _, err := AnyTag([]string{""}); err == nil {
		t.Error("expected error for empty tag")
	}
}

func TestMatches(t *testing.T) {
	ml, _ := NewMatch(TagsField, "ml")
	draft, _ := NewMatch(TagsField, "draft")
	books, _ := NewMatch(TagsField, "books")

	e, _ := NewExpression([]Condition{ml}, []Condition{books}, []Condition{draft})

	tests := []struct {
		name string
		tags []string
		want bool
	}{
		{"all satisfied", []string{"ml", "books"}, true},
		{"missing must", []string{"books"}, false},
		{"has must_not", []string{"ml", "books", "draft"}, false},
		{"no should", []string{"ml"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Matches(TagsField, tt.tags); got != tt.want {
				t.Errorf("Matches(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}

	var none Expression
	if !none.Matches(TagsField, nil) {
		t.Error("empty expression must match everything")
	}
}

func TestAnyTag_TrimsAndDedupes(t *testing.T) {
	e, err := AnyTag([]string{" ml", "ml ", "papers"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.Should()) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(e.Should()))
	}
	if e.Should()[0].Match() != "ml" {
		t.Errorf("Match() = %q", e.Should()[0].Match())
	}
}

func TestValidationErrorsAreInvalidInput(t *testing.T) {
	if _, err := AnyTag([]string{"  "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	conds := make([]Condition, MaxConditionsPerGroup+1)
	if _, err := NewExpression(nil, nil, conds); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
