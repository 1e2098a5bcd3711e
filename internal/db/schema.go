package db

import (
	"errors"
	"fmt"
	"strconv"
)

// FieldType is the kind of an FT schema field.
type FieldType int

// Field types used by the chunk and summary indexes.
const (
	FieldNumeric FieldType = iota
	FieldTag
	FieldText
	FieldVector
)

// VectorAlgorithm selects how a vector field is indexed.
type VectorAlgorithm string

const (
	// VectorHNSW is the approximate graph index used for chunks.
	VectorHNSW VectorAlgorithm = "HNSW"
	// VectorFlat is brute force, fine for the few hundred cluster summaries.
	VectorFlat VectorAlgorithm = "FLAT"
)

// Field is one SCHEMA entry. Vector fields are always FLOAT32 with cosine distance.
type Field struct {
	Name  string
	Alias string
	Type  FieldType

	// Separator splits a TAG field holding a list, such as chunk tags.
	Separator string

	Algorithm   VectorAlgorithm
	Dim         int
	M           int // HNSW max edges per node; 0 keeps the server default
	EFConstruct int // HNSW build-time candidate list; 0 keeps the server default
}

// IndexDefinition describes an FT index over the hashes under Prefixes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []Field
}

// Validate checks names, duplicate attributes and vector dimensions.
func (d *IndexDefinition) Validate() error {
	if d.Name == "" {
		return errors.New("index name is required")
	}
	if len(d.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool, len(d.Fields))
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field %d: name is required", i)
		}
		attr := f.Name
		if f.Alias != "" {
			attr = f.Alias
		}
		if seen[attr] {
			return fmt.Errorf("duplicate field name: %s", attr)
		}
		seen[attr] = true

		if f.Type == FieldVector && f.Dim <= 0 {
			return fmt.Errorf("vector field %s requires positive DIM", f.Name)
		}
	}
	return nil
}

// Args renders the FT.CREATE arguments that follow the command name.
func (d *IndexDefinition) Args() ([]string, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	args := []string{d.Name, "ON", "HASH"}
	if len(d.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(d.Prefixes)))
		args = append(args, d.Prefixes...)
	}
	args = append(args, "SCHEMA")

	for i := range d.Fields {
		fieldArgs, err := d.Fields[i].args()
		if err != nil {
			return nil, err
		}
		args = append(args, fieldArgs...)
	}
	return args, nil
}

func (f *Field) args() ([]string, error) {
	args := []string{f.Name}
	if f.Alias != "" {
		args = append(args, "AS", f.Alias)
	}

	switch f.Type {
	case FieldNumeric:
		args = append(args, "NUMERIC")
	case FieldText:
		args = append(args, "TEXT")
	case FieldTag:
		args = append(args, "TAG")
		if f.Separator != "" {
			args = append(args, "SEPARATOR", f.Separator)
		}
	case FieldVector:
		args = append(args, f.vectorArgs()...)
	default:
		return nil, fmt.Errorf("field %s: unknown type %d", f.Name, f.Type)
	}
	return args, nil
}

func (f *Field) vectorArgs() []string {
	algo := f.Algorithm
	if algo == "" {
		algo = VectorFlat
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(f.Dim),
		"DISTANCE_METRIC", "COSINE",
	}
	if algo == VectorHNSW {
		if f.M > 0 {
			attrs = append(attrs, "M", strconv.Itoa(f.M))
		}
		if f.EFConstruct > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.EFConstruct))
		}
	}

	out := make([]string, 0, 3+len(attrs))
	out = append(out, "VECTOR", string(algo), strconv.Itoa(len(attrs)))
	return append(out, attrs...)
}

// IndexBuilder assembles an IndexDefinition field by field.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts a definition for the index called name.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix adds key prefixes covered by the index.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Numeric adds a NUMERIC field.
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	return b.add(Field{Name: name, Type: FieldNumeric})
}

// Tag adds a single-valued TAG field.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	return b.add(Field{Name: name, Type: FieldTag})
}

// TagList adds a TAG field whose value is a separator-joined list.
func (b *IndexBuilder) TagList(name, separator string) *IndexBuilder {
	return b.add(Field{Name: name, Type: FieldTag, Separator: separator})
}

// Text adds a full-text field.
func (b *IndexBuilder) Text(name string) *IndexBuilder {
	return b.add(Field{Name: name, Type: FieldText})
}

// VectorHNSW adds an HNSW vector field.
func (b *IndexBuilder) VectorHNSW(name string, dim, m, efConstruct int) *IndexBuilder {
	return b.add(Field{
		Name:        name,
		Type:        FieldVector,
		Algorithm:   VectorHNSW,
		Dim:         dim,
		M:           m,
		EFConstruct: efConstruct,
	})
}

// VectorFlat adds a brute-force vector field.
func (b *IndexBuilder) VectorFlat(name string, dim int) *IndexBuilder {
	return b.add(Field{Name: name, Type: FieldVector, Algorithm: VectorFlat, Dim: dim})
}

// As aliases the most recently added field.
func (b *IndexBuilder) As(alias string) *IndexBuilder {
	if n := len(b.def.Fields); n > 0 {
		b.def.Fields[n-1].Alias = alias
	}
	return b
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return &b.def, nil
}

func (b *IndexBuilder) add(f Field) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}
