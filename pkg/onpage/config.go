package onpage

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/conduit-lang/onpage/internal/transport"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds every request made by the default transport
	DefaultTimeout = 60 * time.Second

	// DefaultThumbnailFormat is the extension used for resized file links
	DefaultThumbnailFormat = "png"
)

// Config holds the settings needed to reach a catalog
type Config struct {
	// Endpoint is either a full API URL or a bare company name, which is
	// expanded to https://<name>.onpage.it/api
	Endpoint string `mapstructure:"endpoint"`

	// Token is the opaque access token embedded in every path
	Token string `mapstructure:"token"`

	Timeout         time.Duration `mapstructure:"timeout"`
	ThumbnailFormat string        `mapstructure:"thumbnail_format"`

	// AllowDynamicRelations disables the check that relation names are
	// declared in the schema
	AllowDynamicRelations bool `mapstructure:"allow_dynamic_relations"`
}

var schemePattern = regexp.MustCompile(`^https?:`)

// NormalizeEndpoint expands company names to full API URLs and strips
// trailing slashes
func NormalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if !schemePattern.MatchString(endpoint) {
		endpoint = fmt.Sprintf("https://%s.onpage.it/api/", endpoint)
	}
	return strings.TrimRight(endpoint, "/")
}

// withDefaults returns a normalized copy of the configuration
func (c Config) withDefaults() Config {
	c.Endpoint = NormalizeEndpoint(c.Endpoint)
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ThumbnailFormat == "" {
		c.ThumbnailFormat = DefaultThumbnailFormat
	}
	return c
}

// Validate checks that the configuration can be used to build a client
func (c Config) Validate() error {
	if NormalizeEndpoint(c.Endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidConfig)
	}
	if strings.Contains(c.Token, "/") {
		return fmt.Errorf("%w: token must not contain '/'", ErrInvalidConfig)
	}
	return nil
}

// ViewURL returns the base URL of resource, schema and query endpoints
func (c Config) ViewURL() string {
	return fmt.Sprintf("%s/view/%s/", NormalizeEndpoint(c.Endpoint), c.Token)
}

// Option configures a Client
type Option func(*Client)

// WithTransport replaces the default HTTP transport
func WithTransport(t transport.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithLogger sets the logger used by the client and its default transport
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}
