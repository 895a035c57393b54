package onpage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/conduit-lang/onpage/internal/preload"
	"github.com/conduit-lang/onpage/internal/schema"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

// ErrValueType is returned when a field value cannot be converted to the
// requested Go type
var ErrValueType = errors.New("unexpected field value type")

// wireRecord is the wire form of a record
type wireRecord struct {
	ID        int64                      `json:"id"`
	Fields    map[string]any             `json:"fields"`
	Relations map[string]json.RawMessage `json:"relations"`
}

// Record is one fetched instance of a resource.
// Field values are decoded JSON (nil, bool, float64, string, []any,
// map[string]any). Relations are resolved at most once per record.
type Record struct {
	client   *Client
	resource *schema.Resource
	id       int64
	fields   map[string]any

	mu        sync.Mutex
	relations map[string]*lazyRelation
}

// lazyRelation holds the resolution state of one relation of one record.
// The mutex is held for the whole fetch so concurrent callers wait for the
// first one instead of issuing their own request.
type lazyRelation struct {
	mu     sync.Mutex
	loaded bool
	value  *Collection
}

// ID returns the record identifier
func (r *Record) ID() int64 {
	return r.id
}

// Resource returns the name of the record's resource
func (r *Record) Resource() string {
	return r.resource.Name
}

// String returns a short description of the record
func (r *Record) String() string {
	return fmt.Sprintf("%s#%d", r.resource.Name, r.id)
}

// Val returns the decoded value of a field and marks the field as used.
// Multiple-valued fields are returned as []any.
func (r *Record) Val(name string) (any, error) {
	f, err := r.resource.Field(name)
	if err != nil {
		return nil, err
	}
	f.MarkUsed()
	return r.fields[name], nil
}

// Strings returns every value of a field as strings
func (r *Record) Strings(name string) ([]string, error) {
	v, err := r.Val(name)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, item := range values(v) {
		s, err := toString(item)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", r.resource.Name, name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Str returns the first value of a field as a string, or "" when empty
func (r *Record) Str(name string) (string, error) {
	all, err := r.Strings(name)
	if err != nil || len(all) == 0 {
		return "", err
	}
	return all[0], nil
}

// Float returns the first value of a numeric field
func (r *Record) Float(name string) (float64, error) {
	v, err := r.first(name)
	if err != nil || v == nil {
		return 0, err
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s.%s: %v", ErrValueType, r.resource.Name, name, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %s.%s is %T", ErrValueType, r.resource.Name, name, v)
}

// Int returns the first value of a numeric field truncated to an integer.
// Values outside the int64 range fail with ErrValueType.
func (r *Record) Int(name string) (int64, error) {
	f, err := r.Float(name)
	if err != nil {
		return 0, err
	}
	if !(f >= -(1<<63) && f < 1<<63) {
		return 0, fmt.Errorf("%w: %s.%s is out of int64 range", ErrValueType, r.resource.Name, name)
	}
	return int64(f), nil
}

// Bool returns the first value of a boolean field
func (r *Record) Bool(name string) (bool, error) {
	v, err := r.first(name)
	if err != nil || v == nil {
		return false, err
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	}
	return false, fmt.Errorf("%w: %s.%s is %T", ErrValueType, r.resource.Name, name, v)
}

// Files returns every value of a file field
func (r *Record) Files(name string) ([]*File, error) {
	v, err := r.Val(name)
	if err != nil {
		return nil, err
	}

	var out []*File
	for _, item := range values(v) {
		f, ok := r.client.fileFromValue(item)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s is not a file", ErrValueType, r.resource.Name, name)
		}
		out = append(out, f)
	}
	return out, nil
}

// File returns the first value of a file field, or nil when empty
func (r *Record) File(name string) (*File, error) {
	files, err := r.Files(name)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	return files[0], nil
}

func (r *Record) first(name string) (any, error) {
	v, err := r.Val(name)
	if err != nil {
		return nil, err
	}
	all := values(v)
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

// Rel returns the records linked through a relation. The first call on a
// record fetches them unless they were preloaded; later calls return the
// same collection without a request. A relation with cardinality one yields
// a collection of at most one record.
func (r *Record) Rel(ctx context.Context, name string) (*Collection, error) {
	rel, err := r.client.relation(r.resource, name, nil)
	if err != nil {
		return nil, err
	}

	lr := r.lazy(name)
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.loaded {
		return lr.value, nil
	}

	col, err := r.client.fetchRelated(ctx, r, rel)
	if err != nil {
		return nil, err
	}
	lr.value = col
	lr.loaded = true
	return col, nil
}

// RelOne returns the first record linked through a relation, or nil
func (r *Record) RelOne(ctx context.Context, name string) (*Record, error) {
	col, err := r.Rel(ctx, name)
	if err != nil {
		return nil, err
	}
	return col.First(), nil
}

// IsLoaded reports whether a relation has been resolved on this record
func (r *Record) IsLoaded(name string) bool {
	r.mu.Lock()
	lr, ok := r.relations[name]
	r.mu.Unlock()
	if !ok {
		return false
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.loaded
}

func (r *Record) lazy(name string) *lazyRelation {
	r.mu.Lock()
	defer r.mu.Unlock()

	lr, ok := r.relations[name]
	if !ok {
		lr = &lazyRelation{}
		r.relations[name] = lr
	}
	return lr
}

// newRecord decodes a wire record and hydrates the relations named in tree
// from the embedded data
func (c *Client) newRecord(res *schema.Resource, w *wireRecord, tree preload.Tree) (*Record, error) {
	rec := &Record{
		client:    c,
		resource:  res,
		id:        w.ID,
		fields:    w.Fields,
		relations: make(map[string]*lazyRelation),
	}
	if rec.fields == nil {
		rec.fields = make(map[string]any)
	}

	for _, name := range tree.Names() {
		raw, ok := w.Relations[name]
		if !ok {
			continue
		}

		rel, err := c.relation(res, name, raw)
		if err != nil {
			return nil, err
		}

		target, err := c.targetResource(rel.Target)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", res.Name, name, err)
		}
		col, err := c.decodeEmbedded(target, raw, tree.Sub(name))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", res.Name, name, err)
		}
		rec.relations[name] = &lazyRelation{loaded: true, value: col}
	}

	return rec, nil
}

// decodeEmbedded decodes a preloaded relation value: null, one record or a
// list of records
func (c *Client) decodeEmbedded(target *schema.Resource, raw json.RawMessage, tree preload.Tree) (*Collection, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &Collection{}, nil
	}

	var wires []wireRecord
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &wires); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
		}
	case '{':
		var w wireRecord
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
		}
		wires = append(wires, w)
	default:
		return nil, fmt.Errorf("%w: embedded relation is neither a record nor a list", ErrUnexpectedResponse)
	}

	records := make([]*Record, 0, len(wires))
	for i := range wires {
		rec, err := c.newRecord(target, &wires[i], tree)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return &Collection{records: records, total: len(records)}, nil
}

// relation resolves a relation definition. With dynamic relations allowed,
// an undeclared name is treated as a relation to the resource of the same
// name; its cardinality follows the embedded value when there is one and
// defaults to many.
func (c *Client) relation(res *schema.Resource, name string, raw json.RawMessage) (*schema.Relation, error) {
	rel, err := res.Relation(name)
	if err == nil {
		return rel, nil
	}
	if !c.config.AllowDynamicRelations {
		return nil, err
	}

	card := schema.Many
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		card = schema.One
	}
	return &schema.Relation{Name: name, Label: name, Target: name, Cardinality: card}, nil
}

// targetResource returns the named resource definition. A relation may
// point outside the resources visible to the token; such targets fail with
// ErrUnknownResource unless dynamic relations are allowed, in which case
// they get an empty definition.
func (c *Client) targetResource(name string) (*schema.Resource, error) {
	res, err := c.schema.Resource(name)
	if err == nil || !c.config.AllowDynamicRelations {
		return res, err
	}
	return schema.NewResource(name, name, nil, nil)
}

// fetchRelated issues the single query that resolves rel for owner
func (c *Client) fetchRelated(ctx context.Context, owner *Record, rel *schema.Relation) (*Collection, error) {
	c.logger.Debug("loading relation",
		zap.String("resource", owner.resource.Name),
		zap.Int64("id", owner.id),
		zap.String("relation", rel.Name),
		zap.String("target", rel.Target),
	)

	target, err := c.targetResource(rel.Target)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", owner.resource.Name, rel.Name, err)
	}

	q := newQuery(c, target)
	q.related = &relatedTo{
		resource: owner.resource.Name,
		id:       owner.id,
		relation: rel.Name,
	}
	if rel.Cardinality == schema.One {
		q.limit = 1
	}
	return q.All(ctx)
}

// values flattens a field value into its individual values
func values(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	}
	return []any{v}
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", fmt.Errorf("%w: %T", ErrValueType, v)
}
