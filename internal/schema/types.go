// Package schema provides the resource definitions of a remote catalog.
// A Schema is decoded once from the catalog's schema document and is
// immutable afterwards, except for the per-field usage flags used to audit
// which fields a program actually reads.
package schema

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrUnknownResource is returned when a resource is not declared in the schema
	ErrUnknownResource = errors.New("unknown resource")

	// ErrUnknownField is returned when a field is not declared on a resource
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownRelation is returned when a relation is not declared on a resource
	ErrUnknownRelation = errors.New("unknown relation")

	// ErrInvalidSchema is returned when a schema document cannot be used
	ErrInvalidSchema = errors.New("invalid schema")
)

// FieldType represents the value type of a field as declared by the catalog
type FieldType int

const (
	TypeUnknown FieldType = iota

	// Text types
	TypeString
	TypeText
	TypeHTML
	TypeURL

	// Numeric types
	TypeInt
	TypeReal
	TypePrice

	TypeBool

	// Time types
	TypeDate
	TypeDateTime

	// Stored content
	TypeFile
	TypeImage

	TypeColor
	TypeJSON

	// Links to other resources
	TypeRelation
)

// String returns the string representation of the field type
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeHTML:
		return "html"
	case TypeURL:
		return "url"
	case TypeInt:
		return "int"
	case TypeReal:
		return "real"
	case TypePrice:
		return "price"
	case TypeBool:
		return "bool"
	case TypeDate:
		return "date"
	case TypeDateTime:
		return "datetime"
	case TypeFile:
		return "file"
	case TypeImage:
		return "image"
	case TypeColor:
		return "color"
	case TypeJSON:
		return "json"
	case TypeRelation:
		return "relation"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a string to a FieldType
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "html":
		return TypeHTML, nil
	case "url":
		return TypeURL, nil
	case "int":
		return TypeInt, nil
	case "real":
		return TypeReal, nil
	case "price":
		return TypePrice, nil
	case "bool":
		return TypeBool, nil
	case "date":
		return TypeDate, nil
	case "datetime":
		return TypeDateTime, nil
	case "file":
		return TypeFile, nil
	case "image":
		return TypeImage, nil
	case "color":
		return TypeColor, nil
	case "json":
		return TypeJSON, nil
	case "relation":
		return TypeRelation, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown field type: %s", s)
	}
}

// IsFile returns true if values of the type reference stored content
func (t FieldType) IsFile() bool {
	return t == TypeFile || t == TypeImage
}

// Cardinality is the number of records a relation points to
type Cardinality int

const (
	One Cardinality = iota
	Many
)

// String returns the string representation of the cardinality
func (c Cardinality) String() string {
	if c == Many {
		return "many"
	}
	return "one"
}

// Field describes a value field of a resource
type Field struct {
	Name     string
	Label    string
	Type     FieldType
	TypeName string // type as written in the schema document
	Multiple bool

	used atomic.Bool
}

// MarkUsed records that a field value has been read.
// The flag only ever goes from false to true until ResetUsage.
func (f *Field) MarkUsed() {
	if !f.used.Load() {
		f.used.Store(true)
	}
}

// Used reports whether the field has been read since the last reset
func (f *Field) Used() bool {
	return f.used.Load()
}

// Relation describes a link from a resource to another resource
type Relation struct {
	Name        string
	Label       string
	Target      string
	Cardinality Cardinality
}

// Resource describes a named entity type of the catalog
type Resource struct {
	Name  string
	Label string

	fields        []*Field
	fieldIndex    map[string]*Field
	relations     []*Relation
	relationIndex map[string]*Relation
}

// NewResource builds a resource definition. Field and relation names must be
// unique and disjoint.
func NewResource(name, label string, fields []*Field, relations []*Relation) (*Resource, error) {
	r := &Resource{
		Name:          name,
		Label:         label,
		fieldIndex:    make(map[string]*Field, len(fields)),
		relationIndex: make(map[string]*Relation, len(relations)),
	}

	for _, f := range fields {
		if err := r.checkName(f.Name); err != nil {
			return nil, err
		}
		r.fields = append(r.fields, f)
		r.fieldIndex[f.Name] = f
	}
	for _, rel := range relations {
		if err := r.checkName(rel.Name); err != nil {
			return nil, err
		}
		r.relations = append(r.relations, rel)
		r.relationIndex[rel.Name] = rel
	}

	return r, nil
}

func (r *Resource) checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: resource %s has an unnamed field", ErrInvalidSchema, r.Name)
	}
	if _, exists := r.fieldIndex[name]; exists {
		return fmt.Errorf("%w: duplicate name %s on resource %s", ErrInvalidSchema, name, r.Name)
	}
	if _, exists := r.relationIndex[name]; exists {
		return fmt.Errorf("%w: duplicate name %s on resource %s", ErrInvalidSchema, name, r.Name)
	}
	return nil
}

// Field returns the field definition with the given name
func (r *Resource) Field(name string) (*Field, error) {
	f, ok := r.fieldIndex[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, r.Name, name)
	}
	return f, nil
}

// Fields returns the field definitions in schema order
func (r *Resource) Fields() []*Field {
	out := make([]*Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Relation returns the relation definition with the given name
func (r *Resource) Relation(name string) (*Relation, error) {
	rel, ok := r.relationIndex[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, r.Name, name)
	}
	return rel, nil
}

// Relations returns the relation definitions in schema order
func (r *Resource) Relations() []*Relation {
	out := make([]*Relation, len(r.relations))
	copy(out, r.relations)
	return out
}

// HasUsedFields reports whether any field of the resource has been read
func (r *Resource) HasUsedFields() bool {
	for _, f := range r.fields {
		if f.Used() {
			return true
		}
	}
	return false
}
