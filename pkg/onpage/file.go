package onpage

import (
	"strconv"
	"strings"

	"github.com/conduit-lang/onpage/internal/payload"
)

var imageExtensions = map[string]bool{
	"png":  true,
	"gif":  true,
	"jpg":  true,
	"webp": true,
	"eps":  true,
	"dwg":  true,
	"svg":  true,
	"tiff": true,
}

// File is content stored by the catalog
type File struct {
	Token string
	Name  string
	Ext   string

	client *Client
}

// NewFile creates a file bound to the client's storage
func (c *Client) NewFile(token, name, ext string) *File {
	return &File{Token: token, Name: name, Ext: ext, client: c}
}

// fileFromValue decodes a {token, name, ext} field value
func (c *Client) fileFromValue(v any) (*File, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	token, ok := m["token"].(string)
	if !ok || token == "" {
		return nil, false
	}
	name, _ := m["name"].(string)
	ext, _ := m["ext"].(string)
	return c.NewFile(token, name, ext), true
}

// FileReference lets a File be used directly in request payloads
func (f *File) FileReference() payload.FileRef {
	return payload.FileRef{Token: f.Token, Name: f.Name}
}

// IsImage reports whether the file extension is an image format
func (f *File) IsImage() bool {
	return imageExtensions[strings.ToLower(f.Ext)]
}

type linkOptions struct {
	x, y    int
	contain bool
	ext     string
	name    string
	setName bool
	noName  bool
}

// LinkOption customizes a file link
type LinkOption func(*linkOptions)

// Size requests a thumbnail of the given dimensions
func Size(x, y int) LinkOption {
	return func(o *linkOptions) {
		o.x, o.y = x, y
	}
}

// Width requests a thumbnail of the given width
func Width(x int) LinkOption {
	return func(o *linkOptions) {
		o.x = x
	}
}

// Height requests a thumbnail of the given height
func Height(y int) LinkOption {
	return func(o *linkOptions) {
		o.y = y
	}
}

// Contain fits the thumbnail inside the requested box. It has no effect
// without a dimension.
func Contain() LinkOption {
	return func(o *linkOptions) {
		o.contain = true
	}
}

// Ext converts the file to another format
func Ext(ext string) LinkOption {
	return func(o *linkOptions) {
		o.ext = ext
	}
}

// Name overrides the download name
func Name(name string) LinkOption {
	return func(o *linkOptions) {
		o.name, o.setName, o.noName = name, true, false
	}
}

// NoName omits the download name
func NoName() LinkOption {
	return func(o *linkOptions) {
		o.noName, o.setName = true, false
	}
}

// Link returns the public URL of the file. Building a link never touches the
// network.
func (f *File) Link(opts ...LinkOption) string {
	var o linkOptions
	for _, opt := range opts {
		opt(&o)
	}

	var suffix strings.Builder
	if o.x > 0 || o.y > 0 {
		suffix.WriteString("." + dimension(o.x) + "x" + dimension(o.y))
		if o.contain {
			suffix.WriteString("-contain")
		}
	}

	if suffix.Len() > 0 || o.ext != "" {
		ext := o.ext
		if ext == "" {
			ext = f.client.config.ThumbnailFormat
		}
		suffix.WriteString("." + ext)
	}

	name := f.Name
	switch {
	case o.noName:
		name = ""
	case o.setName:
		name = o.name
	}

	return f.client.StorageLink(f.Token+suffix.String(), name)
}

func dimension(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
