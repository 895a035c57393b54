package onpage

import (
	"github.com/conduit-lang/onpage/internal/payload"
	"github.com/conduit-lang/onpage/internal/transport"
)

type (
	// Map is an insertion-ordered payload mapping
	Map = payload.Map

	// List is an ordered payload sequence
	List = payload.List

	// FileRef points to content already stored by the server
	FileRef = payload.FileRef

	// FileUpload points to a local file sent with the request
	FileUpload = payload.FileUpload

	// Body is an encoded request payload, as handed to a Transport
	Body = payload.Body

	// Part is one multipart form part of a Body
	Part = payload.Part

	// Transport delivers encoded requests; see WithTransport
	Transport = transport.Transport
)

// NewMap creates a payload map from alternating key/value arguments
func NewMap(kv ...any) *Map {
	return payload.NewMap(kv...)
}

// Upload creates a FileUpload for a local path
func Upload(path string) FileUpload {
	return payload.Upload(path)
}

// Encode returns the wire form data would be sent as
func Encode(data any) (*Body, error) {
	return payload.Encode(data)
}
