package db

import (
	"slices"
	"strings"
	"testing"
)

func chunkSchema(t *testing.T) *IndexDefinition {
	t.Helper()
	def, err := NewIndex("pdfbrain:chunks:idx").
		Prefix("pdfbrain:chunk:").
		Tag("doc_id").
		TagList("tags", ",").
		Numeric("page").
		Text("__content").
		VectorHNSW("__vector", 1536, 16, 200).As("vector").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return def
}

func TestBuilder_ChunkSchema(t *testing.T) {
	def := chunkSchema(t)

	if len(def.Fields) != 5 {
		t.Fatalf("fields count = %d, want 5", len(def.Fields))
	}
	if f := def.Fields[1]; f.Type != FieldTag || f.Separator != "," {
		t.Errorf("field[1] = %+v, want tags TAG SEPARATOR ,", f)
	}
	v := def.Fields[4]
	if v.Alias != "vector" || v.Algorithm != VectorHNSW || v.Dim != 1536 || v.M != 16 || v.EFConstruct != 200 {
		t.Errorf("unexpected vector field %+v", v)
	}
}

func TestArgs_ChunkSchema(t *testing.T) {
	args, err := chunkSchema(t).Args()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := strings.Join(args, " ")
	want := "pdfbrain:chunks:idx ON HASH PREFIX 1 pdfbrain:chunk: SCHEMA " +
		"doc_id TAG tags TAG SEPARATOR , page NUMERIC __content TEXT " +
		"__vector AS vector VECTOR HNSW 10 TYPE FLOAT32 DIM 1536 DISTANCE_METRIC COSINE M 16 EF_CONSTRUCTION 200"
	if got != want {
		t.Errorf("args mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestArgs_FlatVectorSkipsHNSWParams(t *testing.T) {
	def, err := NewIndex("pdfbrain:summaries:idx").
		Numeric("level").
		VectorFlat("__vector", 768).As("vector").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	args, err := def.Args()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slices.Contains(args, "PREFIX") {
		t.Errorf("no prefix configured, got %v", args)
	}
	if slices.Contains(args, "M") || slices.Contains(args, "EF_CONSTRUCTION") {
		t.Errorf("FLAT field must not carry HNSW params: %v", args)
	}
	if !slices.Contains(args, "FLAT") || !slices.Contains(args, "768") {
		t.Errorf("expected FLAT 768 vector in %v", args)
	}
}

func TestArgs_UnknownFieldType(t *testing.T) {
	def := &IndexDefinition{Name: "idx", Fields: []Field{{Name: "f", Type: FieldType(99)}}}
	if _, err := def.Args(); err == nil || !strings.Contains(err.Error(), "unknown type") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder *IndexBuilder
		wantErr string
	}{
		{"empty name", NewIndex("").Tag("x"), "index name is required"},
		{"no fields", NewIndex("idx"), "at least one field"},
		{"alias without fields", NewIndex("idx").As("x"), "at least one field"},
		{"vector without dim", NewIndex("idx").VectorFlat("v", 0), "positive DIM"},
		{"empty field name", NewIndex("idx").Numeric(""), "name is required"},
		{
			"alias collides",
			NewIndex("idx").Tag("vector").VectorFlat("__vector", 4).As("vector"),
			"duplicate field name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got error %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}
