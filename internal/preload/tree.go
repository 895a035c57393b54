// Package preload compiles dotted relation paths such as "argomenti.prodotti"
// into a tree of relations to embed in a query response.
package preload

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/onpage/internal/schema"
)

// ErrUndeclaredRelation is returned when a preload path cannot be compiled
// against the schema
var ErrUndeclaredRelation = errors.New("invalid preload path")

// Tree maps a relation name to the relations to load beneath it.
// An empty subtree means "this relation and nothing further".
type Tree map[string]Tree

// Parse builds a tree from dotted paths without schema validation
func Parse(paths ...string) (Tree, error) {
	t := Tree{}
	for _, p := range paths {
		if err := t.Add(p); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add merges a dotted path into the tree
func (t Tree) Add(path string) error {
	segments, err := split(path)
	if err != nil {
		return err
	}

	node := t
	for _, seg := range segments {
		child, ok := node[seg]
		if !ok || child == nil {
			child = Tree{}
			node[seg] = child
		}
		node = child
	}
	return nil
}

// Merge adds every path of other into t
func (t Tree) Merge(other Tree) {
	for name, sub := range other {
		child, ok := t[name]
		if !ok || child == nil {
			child = Tree{}
			t[name] = child
		}
		child.Merge(sub)
	}
}

// Names returns the relation names at this level in sorted order
func (t Tree) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sub returns the subtree below name, or an empty tree
func (t Tree) Sub(name string) Tree {
	if sub := t[name]; sub != nil {
		return sub
	}
	return Tree{}
}

// Paths returns the tree as sorted dotted leaf paths
func (t Tree) Paths() []string {
	var out []string
	for _, name := range t.Names() {
		sub := t[name]
		if len(sub) == 0 {
			out = append(out, name)
			continue
		}
		for _, p := range sub.Paths() {
			out = append(out, name+"."+p)
		}
	}
	return out
}

// Clone returns a deep copy of the tree
func (t Tree) Clone() Tree {
	c := Tree{}
	c.Merge(t)
	return c
}

func split(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrUndeclaredRelation)
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrUndeclaredRelation, path)
		}
	}
	return segments, nil
}

// Lookup resolves resource definitions by name
type Lookup interface {
	Resource(name string) (*schema.Resource, error)
}

// Compile parses paths and checks every segment against the relations of the
// resource it is applied to. With allowDynamic, undeclared relations are
// accepted and nothing below them is checked.
func Compile(lookup Lookup, resource *schema.Resource, allowDynamic bool, paths ...string) (Tree, error) {
	t, err := Parse(paths...)
	if err != nil {
		return nil, err
	}
	if err := validate(lookup, resource, t, allowDynamic, ""); err != nil {
		return nil, err
	}
	return t, nil
}

func validate(lookup Lookup, resource *schema.Resource, t Tree, allowDynamic bool, prefix string) error {
	for _, name := range t.Names() {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		rel, err := resource.Relation(name)
		if err != nil {
			if allowDynamic {
				continue
			}
			return fmt.Errorf("%w: %s is not a relation of %s", ErrUndeclaredRelation, path, resource.Name)
		}

		target, err := lookup.Resource(rel.Target)
		if err != nil {
			if allowDynamic {
				continue
			}
			return fmt.Errorf("%w: %s targets %v", ErrUndeclaredRelation, path, err)
		}

		if err := validate(lookup, target, t[name], allowDynamic, path); err != nil {
			return err
		}
	}
	return nil
}
