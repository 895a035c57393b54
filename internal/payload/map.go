// Package payload encodes request data for the catalog API.
//
// A payload is a tree of mappings, sequences and leaves. Leaves are nil,
// scalars, file references (content already stored server side) and file
// uploads (local files sent along with the request). A tree without uploads is
// sent as a JSON document; a tree with at least one upload anywhere is
// flattened into multipart form parts whose names carry the nesting path in
// brackets (outer[inner][0]).
package payload

import (
	"bytes"
	"sort"

	"github.com/segmentio/encoding/json"
)

// Map is a string keyed mapping that remembers insertion order.
// Encoding a Map always visits keys in the order they were first set.
type Map struct {
	keys   []string
	values map[string]any
}

// NewMap creates a map from alternating key/value arguments.
// Non-string keys are ignored.
func NewMap(kv ...any) *Map {
	m := &Map{values: make(map[string]any, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			m.Set(k, kv[i+1])
		}
	}
	return m
}

// FromMap copies a plain Go map. Keys are inserted in sorted order so the
// result is deterministic.
func FromMap(src map[string]any) *Map {
	m := &Map{values: make(map[string]any, len(src))}
	for _, k := range sortedKeys(src) {
		m.Set(k, src[k])
	}
	return m
}

// Set stores value under key. Overwriting keeps the original position.
func (m *Map) Set(key string, value any) *Map {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
	return m
}

// Get returns the value stored under key
func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key from the map
func (m *Map) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Len returns the number of entries
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Clone returns a shallow copy of the map
func (m *Map) Clone() *Map {
	c := &Map{values: make(map[string]any, m.Len())}
	if m == nil {
		return c
	}
	for _, k := range m.keys {
		c.Set(k, m.values[k])
	}
	return c
}

// MarshalJSON encodes the map as a JSON object preserving key order
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// List is an ordered sequence of payload values
type List []any

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
