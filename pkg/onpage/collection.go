package onpage

// Collection is an ordered list of records plus the total number of matches
// reported by the server
type Collection struct {
	records []*Record
	total   int
}

// NewCollection groups records into a collection. Nil records are skipped.
func NewCollection(records ...*Record) *Collection {
	c := &Collection{}
	for _, r := range records {
		if r != nil {
			c.records = append(c.records, r)
		}
	}
	c.total = len(c.records)
	return c
}

// First returns the first record, or nil
func (c *Collection) First() *Record {
	if c == nil || len(c.records) == 0 {
		return nil
	}
	return c.records[0]
}

// At returns the record at index i, or nil when out of range
func (c *Collection) At(i int) *Record {
	if c == nil || i < 0 || i >= len(c.records) {
		return nil
	}
	return c.records[i]
}

// Len returns the number of records held by the collection
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// Count returns the total number of matches, which can exceed Len when the
// query was paginated
func (c *Collection) Count() int {
	if c == nil {
		return 0
	}
	return c.total
}

// Records returns the records in order
func (c *Collection) Records() []*Record {
	if c == nil {
		return nil
	}
	out := make([]*Record, len(c.records))
	copy(out, c.records)
	return out
}

// IDs returns the identifiers of the records in order
func (c *Collection) IDs() []int64 {
	ids := make([]int64, 0, c.Len())
	for _, r := range c.Records() {
		ids = append(ids, r.ID())
	}
	return ids
}
