package schema

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/segmentio/encoding/json"
)

// Schema holds every resource definition of a catalog
type Schema struct {
	Label string

	resources []*Resource
	index     map[string]*Resource
}

// New builds a schema from resource definitions. Resource names must be unique.
func New(label string, resources []*Resource) (*Schema, error) {
	s := &Schema{
		Label: label,
		index: make(map[string]*Resource, len(resources)),
	}
	for _, r := range resources {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: unnamed resource", ErrInvalidSchema)
		}
		if _, exists := s.index[r.Name]; exists {
			return nil, fmt.Errorf("%w: resource %s is declared twice", ErrInvalidSchema, r.Name)
		}
		s.resources = append(s.resources, r)
		s.index[r.Name] = r
	}
	return s, nil
}

// Document is the wire form of the schema endpoint response
type Document struct {
	Label     string             `json:"label"`
	Resources []ResourceDocument `json:"resources"`
}

// ResourceDocument is the wire form of a resource
type ResourceDocument struct {
	Name   string          `json:"name"`
	Label  string          `json:"label"`
	Fields []FieldDocument `json:"fields"`
}

// FieldDocument is the wire form of a field. Fields of type "relation" link
// to RelResource and are exposed as relations rather than value fields.
type FieldDocument struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Multiple    bool   `json:"is_multiple"`
	RelResource string `json:"rel_resource,omitempty"`
}

// Parse decodes a schema document
func Parse(data []byte) (*Schema, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return FromDocument(doc)
}

// FromDocument builds a schema from its decoded wire form
func FromDocument(doc Document) (*Schema, error) {
	resources := make([]*Resource, 0, len(doc.Resources))
	for _, rd := range doc.Resources {
		var fields []*Field
		var relations []*Relation

		for _, fd := range rd.Fields {
			ft, _ := ParseFieldType(fd.Type)
			if ft == TypeRelation {
				if fd.RelResource == "" {
					return nil, fmt.Errorf("%w: relation %s.%s has no target resource", ErrInvalidSchema, rd.Name, fd.Name)
				}
				card := One
				if fd.Multiple {
					card = Many
				}
				relations = append(relations, &Relation{
					Name:        fd.Name,
					Label:       fd.Label,
					Target:      fd.RelResource,
					Cardinality: card,
				})
				continue
			}

			fields = append(fields, &Field{
				Name:     fd.Name,
				Label:    fd.Label,
				Type:     ft,
				TypeName: fd.Type,
				Multiple: fd.Multiple,
			})
		}

		res, err := NewResource(rd.Name, rd.Label, fields, relations)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}

	return New(doc.Label, resources)
}

// Resource retrieves a resource definition by name
func (s *Schema) Resource(name string) (*Resource, error) {
	r, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	return r, nil
}

// Resources returns all resource definitions in schema order
func (s *Schema) Resources() []*Resource {
	out := make([]*Resource, len(s.resources))
	copy(out, s.resources)
	return out
}

// ResetUsage clears the usage flag of every field
func (s *Schema) ResetUsage() {
	for _, r := range s.resources {
		for _, f := range r.fields {
			f.used.Store(false)
		}
	}
}

// UsageHeader is the header row of the usage audit
var UsageHeader = []string{"Resource", "Resource name", "Field", "Field name", "Field type"}

// WriteUsage writes a CSV listing every field read since the last reset,
// grouped by resource. Each resource that had at least one used field is
// followed by a blank line.
func (s *Schema) WriteUsage(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(UsageHeader); err != nil {
		return err
	}

	for _, res := range s.resources {
		used := false
		for _, f := range res.fields {
			if !f.Used() {
				continue
			}
			used = true
			if err := cw.Write([]string{res.Label, res.Name, f.Label, f.Name, f.TypeName}); err != nil {
				return err
			}
		}
		if used {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
