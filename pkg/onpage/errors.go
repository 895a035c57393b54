package onpage

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/onpage/internal/preload"
	"github.com/conduit-lang/onpage/internal/schema"
	"github.com/conduit-lang/onpage/internal/transport"
)

var (
	// ErrUnknownResource is returned when a resource is not declared in the schema
	ErrUnknownResource = schema.ErrUnknownResource

	// ErrUnknownField is returned when a field is not declared on a resource
	ErrUnknownField = schema.ErrUnknownField

	// ErrUnknownRelation is returned when a relation is not declared on a resource
	ErrUnknownRelation = schema.ErrUnknownRelation

	// ErrConfiguration is returned for invalid preload paths
	ErrConfiguration = preload.ErrUndeclaredRelation

	// ErrInvalidConfig is returned by New when the configuration is unusable
	ErrInvalidConfig = errors.New("invalid client configuration")

	// ErrUnexpectedResponse is returned when a response body cannot be decoded
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// TransportError is returned when a request could not be exchanged with the
// server. It is never retried.
type TransportError = transport.Error

// APIError is returned for any response status other than 200 and 201
type APIError struct {
	StatusCode int
	Body       []byte
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status code [%d]", e.StatusCode)
}

// IsAPIError reports whether err is an APIError with the given status code
func IsAPIError(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
