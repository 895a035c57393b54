package onpage

import (
	"context"
	"fmt"

	"github.com/conduit-lang/onpage/internal/payload"
	"github.com/conduit-lang/onpage/internal/preload"
	"github.com/conduit-lang/onpage/internal/schema"
	"github.com/segmentio/encoding/json"
)

// Query builds a request for the records of one resource.
// Builder methods record the first error they hit; First and All return it
// before anything is sent. A query can be executed any number of times and
// every execution is a fresh round trip.
type Query struct {
	client   *Client
	resource *schema.Resource
	filters  *payload.Map
	tree     preload.Tree
	limit    int
	offset   int
	related  *relatedTo

	err error
}

// relatedTo restricts a query to the records linked from one owner record
type relatedTo struct {
	resource string
	id       int64
	relation string
}

// Query starts a query over the named resource. An undeclared resource
// makes every execution fail with ErrUnknownResource.
func (c *Client) Query(resource string) *Query {
	q := newQuery(c, nil)
	res, err := c.schema.Resource(resource)
	if err != nil {
		q.err = err
		return q
	}
	q.resource = res
	return q
}

func newQuery(c *Client, res *schema.Resource) *Query {
	return &Query{
		client:   c,
		resource: res,
		filters:  &payload.Map{},
		tree:     preload.Tree{},
	}
}

// Resource returns the definition the query is bound to, or nil
func (q *Query) Resource() *schema.Resource {
	return q.resource
}

// Err returns the first error recorded by a builder method
func (q *Query) Err() error {
	return q.err
}

// Where adds a filter parameter. Setting the same key again replaces the
// previous value.
func (q *Query) Where(key string, value any) *Query {
	q.filters.Set(key, value)
	return q
}

// Filters merges several filter parameters, in sorted key order
func (q *Query) Filters(filters map[string]any) *Query {
	src := payload.FromMap(filters)
	for _, k := range src.Keys() {
		v, _ := src.Get(k)
		q.filters.Set(k, v)
	}
	return q
}

// With requests relations to be embedded in the response. Paths are dotted
// relation chains ("argomenti.prodotti") and accumulate across calls.
func (q *Query) With(paths ...string) *Query {
	if q.err != nil {
		return q
	}

	tree, err := preload.Compile(q.client.schema, q.resource, q.client.config.AllowDynamicRelations, paths...)
	if err != nil {
		q.err = err
		return q
	}
	q.tree.Merge(tree)
	return q
}

// Limit caps the number of records returned. Zero removes the cap.
func (q *Query) Limit(n int) *Query {
	if n < 0 {
		n = 0
	}
	q.limit = n
	return q
}

// Offset skips the first n records
func (q *Query) Offset(n int) *Query {
	if n < 0 {
		n = 0
	}
	q.offset = n
	return q
}

// Preloads returns the compiled preload paths
func (q *Query) Preloads() []string {
	return q.tree.Paths()
}

// First returns the first matching record, or nil when nothing matches
func (q *Query) First(ctx context.Context) (*Record, error) {
	col, err := q.execute(ctx, 1)
	if err != nil {
		return nil, err
	}
	return col.First(), nil
}

// All returns every matching record
func (q *Query) All(ctx context.Context) (*Collection, error) {
	return q.execute(ctx, q.limit)
}

// Payload returns the request body an execution would send, without the
// _method discriminator
func (q *Query) Payload() *Map {
	return q.payload(q.limit)
}

func (q *Query) payload(limit int) *Map {
	m := &payload.Map{}
	if q.filters.Len() > 0 {
		m.Set("filters", q.filters.Clone())
	}
	if limit > 0 {
		m.Set("limit", limit)
	}
	if q.offset > 0 {
		m.Set("offset", q.offset)
	}
	if len(q.tree) > 0 {
		m.Set("with", q.tree.Clone())
	}
	if q.related != nil {
		m.Set("related_to", payload.NewMap(
			"resource", q.related.resource,
			"id", q.related.id,
			"relation", q.related.relation,
		))
	}
	return m
}

// listResponse is the wire form of a query response
type listResponse struct {
	Data  []wireRecord `json:"data"`
	Count *int         `json:"count"`
}

func (q *Query) execute(ctx context.Context, limit int) (*Collection, error) {
	if q.err != nil {
		return nil, q.err
	}

	raw, err := q.client.call(ctx, q.resource.Name, withMethod(q.payload(limit), "get"))
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnexpectedResponse, q.resource.Name, err)
	}

	records := make([]*Record, 0, len(resp.Data))
	for i := range resp.Data {
		rec, err := q.client.newRecord(q.resource, &resp.Data[i], q.tree)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	total := len(records)
	if resp.Count != nil {
		total = *resp.Count
	}
	return &Collection{records: records, total: total}, nil
}
