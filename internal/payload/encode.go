package payload

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"reflect"

	"github.com/segmentio/encoding/json"
)

// Format is the wire encoding chosen for a payload
type Format int

const (
	FormatJSON Format = iota
	FormatMultipart
)

// String returns the string representation of the format
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMultipart:
		return "multipart"
	default:
		return "unknown"
	}
}

// Body is an encoded request payload
type Body struct {
	Format Format
	JSON   []byte
	Parts  []Part
}

// Part is a single multipart form part.
// Exactly one of Value or Upload is meaningful.
type Part struct {
	Name   string
	Value  string
	Upload *FileUpload
}

// IsFile reports whether the part streams a local file
func (p Part) IsFile() bool {
	return p.Upload != nil
}

// Filename returns the base name of the uploaded file, or "" for value parts
func (p Part) Filename() string {
	if p.Upload == nil {
		return ""
	}
	return p.Upload.Filename()
}

// Open opens the uploaded file for reading
func (p Part) Open() (io.ReadCloser, error) {
	if p.Upload == nil {
		return nil, fmt.Errorf("part %s is not a file", p.Name)
	}
	return os.Open(p.Upload.Path)
}

// Encode picks the wire format for data and encodes it.
// The whole tree is scanned first: any reachable FileUpload switches the
// payload to multipart.
func Encode(data any) (*Body, error) {
	if ContainsUploads(data) {
		parts, err := Flatten(data)
		if err != nil {
			return nil, err
		}
		return &Body{Format: FormatMultipart, Parts: parts}, nil
	}

	normalized, err := jsonValue(data)
	if err != nil {
		return nil, err
	}
	if normalized == nil {
		normalized = &Map{}
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return &Body{Format: FormatJSON, JSON: encoded}, nil
}

// Flatten walks data and returns its multipart parts in source order.
// Part names are bracketed paths: the top level key is bare and every
// nested key or index is appended as [key]. The top level must be a map or
// a list.
func Flatten(data any) ([]Part, error) {
	switch kind := KindOf(data); kind {
	case KindNull, KindNested:
	default:
		return nil, fmt.Errorf("%w: top level %s has no part name", ErrUnsupportedValue, kind)
	}

	var parts []Part
	if err := flatten(data, "", &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

func flatten(data any, namespace string, parts *[]Part) error {
	return walkChildren(data, func(key string, value any) error {
		name := key
		if namespace != "" {
			name = namespace + "[" + key + "]"
		}

		switch KindOf(value) {
		case KindNull:
			// omitted
		case KindUpload:
			upload := asUpload(value)
			*parts = append(*parts, Part{Name: name, Upload: &upload})
		case KindFileRef:
			ref := value.(FileReferencer).FileReference()
			*parts = append(*parts,
				Part{Name: name + "[token]", Value: ref.Token},
				Part{Name: name + "[name]", Value: ref.Name},
			)
		case KindScalar:
			*parts = append(*parts, Part{Name: name, Value: scalarString(value)})
		case KindNested:
			return flatten(value, name, parts)
		default:
			return fmt.Errorf("%w: %T at %s", ErrUnsupportedValue, value, name)
		}
		return nil
	})
}

// WriteParts writes parts to mw, streaming uploads from disk.
// The caller closes mw.
func WriteParts(mw *multipart.Writer, parts []Part) error {
	for _, part := range parts {
		if !part.IsFile() {
			if err := mw.WriteField(part.Name, part.Value); err != nil {
				return err
			}
			continue
		}

		if err := writeFile(mw, part); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(mw *multipart.Writer, part Part) error {
	src, err := part.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload %s: %w", part.Upload.Path, err)
	}
	defer src.Close()

	dst, err := mw.CreateFormFile(part.Name, part.Filename())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to stream upload %s: %w", part.Upload.Path, err)
	}
	return nil
}

// jsonValue rewrites file references to {token, name} objects so JSON and
// multipart encodings agree.
func jsonValue(v any) (any, error) {
	switch KindOf(v) {
	case KindNull:
		return nil, nil
	case KindFileRef:
		return v.(FileReferencer).FileReference(), nil
	case KindScalar:
		return v, nil
	case KindUpload:
		return nil, fmt.Errorf("%w: file upload in json payload", ErrUnsupportedValue)
	case KindInvalid:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}

	if isSequence(v) {
		out := make([]any, 0)
		err := walkChildren(v, func(_ string, child any) error {
			c, err := jsonValue(child)
			out = append(out, c)
			return err
		})
		return out, err
	}

	out := &Map{}
	err := walkChildren(v, func(key string, child any) error {
		c, err := jsonValue(child)
		out.Set(key, c)
		return err
	})
	return out, err
}

func isSequence(v any) bool {
	switch v.(type) {
	case List, []any:
		return true
	case *Map, map[string]any:
		return false
	}
	kind := derefKind(v)
	return kind == reflect.Slice || kind == reflect.Array
}

func asUpload(v any) FileUpload {
	switch t := v.(type) {
	case FileUpload:
		return t
	case *FileUpload:
		return *t
	}
	return FileUpload{}
}
