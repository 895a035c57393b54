package payload

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"

	"github.com/segmentio/encoding/json"
)

// ErrUnsupportedValue is returned when a payload contains a value that is
// neither a leaf nor a mapping or sequence
var ErrUnsupportedValue = errors.New("unsupported payload value")

// FileRef identifies content already stored by the server
type FileRef struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

// FileReference implements FileReferencer
func (f FileRef) FileReference() FileRef { return f }

// FileReferencer is implemented by values that point to stored content
type FileReferencer interface {
	FileReference() FileRef
}

// FileUpload points to a local file that is sent with the request
type FileUpload struct {
	Path string
}

// Upload creates a FileUpload for path
func Upload(path string) FileUpload {
	return FileUpload{Path: path}
}

// Filename returns the base name sent as the part filename
func (u FileUpload) Filename() string {
	return filepath.Base(u.Path)
}

// Kind classifies a payload value
type Kind int

const (
	KindNull Kind = iota
	KindUpload
	KindFileRef
	KindScalar
	KindNested
	KindInvalid
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUpload:
		return "upload"
	case KindFileRef:
		return "file"
	case KindScalar:
		return "scalar"
	case KindNested:
		return "nested"
	default:
		return "invalid"
	}
}

// KindOf classifies v. The checks run in leaf precedence order: null,
// upload, file reference, scalar, nested.
func KindOf(v any) Kind {
	switch t := v.(type) {
	case nil:
		return KindNull
	case FileUpload, *FileUpload:
		if p, ok := t.(*FileUpload); ok && p == nil {
			return KindNull
		}
		return KindUpload
	case FileReferencer:
		if isNilPointer(t) {
			return KindNull
		}
		return KindFileRef
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return KindScalar
	case *Map:
		if t == nil {
			return KindNull
		}
		return KindNested
	case List, []any, map[string]any:
		return KindNested
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return KindNull
		}
		return KindOf(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return KindNull
		}
		return KindNested
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return KindInvalid
		}
		if rv.IsNil() {
			return KindNull
		}
		return KindNested
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindScalar
	}
	return KindInvalid
}

// ContainsUploads reports whether any value reachable from v is a FileUpload
func ContainsUploads(v any) bool {
	found := false
	_ = walkChildren(v, func(_ string, child any) error {
		if found {
			return nil
		}
		switch KindOf(child) {
		case KindUpload:
			found = true
		case KindNested:
			found = ContainsUploads(child)
		}
		return nil
	})
	return found || KindOf(v) == KindUpload
}

// walkChildren calls fn for every direct child of a nested value, in
// insertion order for Map and List, index order for sequences and sorted key
// order for plain Go maps.
func walkChildren(v any, fn func(key string, child any) error) error {
	switch t := v.(type) {
	case *Map:
		if t == nil {
			return nil
		}
		for _, k := range t.keys {
			if err := fn(k, t.values[k]); err != nil {
				return err
			}
		}
		return nil
	case List:
		return walkSlice(t, fn)
	case []any:
		return walkSlice(t, fn)
	case map[string]any:
		for _, k := range sortedKeys(t) {
			if err := fn(k, t[k]); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := fn(strconv.Itoa(i), rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map with %s keys", ErrUnsupportedValue, rv.Type().Key())
		}
		keys := make(map[string]reflect.Value, rv.Len())
		for _, k := range rv.MapKeys() {
			keys[k.String()] = k
		}
		for _, k := range sortedKeys(keys) {
			if err := fn(k, rv.MapIndex(keys[k]).Interface()); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkSlice(items []any, fn func(key string, child any) error) error {
	for i, item := range items {
		if err := fn(strconv.Itoa(i), item); err != nil {
			return err
		}
	}
	return nil
}

// scalarString renders a scalar as multipart contents.
// Booleans use the 1/0 form understood by form decoders.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case json.Number:
		return t.String()
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return scalarString(rv.Bool())
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	}
	return fmt.Sprint(rv.Interface())
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func derefKind(v any) reflect.Kind {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Invalid
		}
		rv = rv.Elem()
	}
	return rv.Kind()
}
