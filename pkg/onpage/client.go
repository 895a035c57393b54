package onpage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"

	"github.com/conduit-lang/onpage/internal/payload"
	"github.com/conduit-lang/onpage/internal/schema"
	"github.com/conduit-lang/onpage/internal/transport"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

// SchemaEndpoint is the path the schema is loaded from
const SchemaEndpoint = "schema"

// Client is a connection to one catalog. It is safe for concurrent use.
type Client struct {
	config    Config
	transport transport.Transport
	logger    *zap.Logger
	schema    *schema.Schema

	requests atomic.Int64
}

// New creates a client and loads the catalog schema. A client is never
// returned without a schema.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: cfg.withDefaults(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = transport.NewHTTP(c.config.ViewURL(), c.config.Timeout, c.logger)
	}

	if err := c.loadSchema(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) loadSchema(ctx context.Context) error {
	data, err := c.call(ctx, SchemaEndpoint, withMethod(nil, "get"))
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	s, err := schema.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	c.schema = s

	c.logger.Info("schema loaded",
		zap.String("label", s.Label),
		zap.Int("resources", len(s.Resources())),
	)
	return nil
}

// Schema returns the catalog schema loaded at construction
func (c *Client) Schema() *schema.Schema {
	return c.schema
}

// Config returns the normalized client configuration
func (c *Client) Config() Config {
	return c.config
}

// Get issues a request with GET semantics. The verb is tunneled through POST
// by adding a _method field to params.
func (c *Client) Get(ctx context.Context, endpoint string, params *Map) (any, error) {
	return c.decode(c.call(ctx, endpoint, withMethod(params, "get")))
}

// Delete issues a request with DELETE semantics
func (c *Client) Delete(ctx context.Context, endpoint string, params *Map) (any, error) {
	return c.decode(c.call(ctx, endpoint, withMethod(params, "delete")))
}

// Post sends data to endpoint and returns the decoded JSON response.
// data may be any payload tree; it is sent as multipart if it contains a
// FileUpload anywhere, as JSON otherwise.
func (c *Client) Post(ctx context.Context, endpoint string, data any) (any, error) {
	return c.decode(c.call(ctx, endpoint, data))
}

// RequestCount returns the number of requests sent since construction or the
// last reset, including failed ones
func (c *Client) RequestCount() int {
	return int(c.requests.Load())
}

// ResetRequestCount sets the request counter to zero
func (c *Client) ResetRequestCount() {
	c.requests.Store(0)
}

// ResetUsedFields clears the usage flags of every schema field
func (c *Client) ResetUsedFields() {
	c.schema.ResetUsage()
}

// StorageLink returns the public URL of stored content. A non-empty name is
// passed as the download file name.
func (c *Client) StorageLink(token, name string) string {
	link := fmt.Sprintf("%s/storage/%s", c.config.Endpoint, token)
	if name != "" {
		link += "?" + url.Values{"name": {name}}.Encode()
	}
	return link
}

// DumpUsedFields writes the usage audit CSV to path
func (c *Client) DumpUsedFields(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.schema.WriteUsage(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// call encodes data, sends it and checks the response status.
// Every call counts as one request, whether or not it succeeds.
func (c *Client) call(ctx context.Context, endpoint string, data any) ([]byte, error) {
	body, err := payload.Encode(data)
	if err != nil {
		return nil, err
	}

	c.requests.Add(1)
	status, raw, err := c.transport.Send(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		return raw, nil
	default:
		return nil, &APIError{StatusCode: status, Body: raw}
	}
}

func (c *Client) decode(raw []byte, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return out, nil
}

// withMethod returns a copy of params with the _method discriminator set
func withMethod(params *Map, method string) *Map {
	out := params.Clone()
	out.Set("_method", method)
	return out
}
