// Package config loads the CLI connection settings from onpage.yml and
// ONPAGE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/conduit-lang/onpage/pkg/onpage"
	"github.com/spf13/viper"
)

// FileName is the base name of the configuration file
const FileName = "onpage.yml"

// EnvPrefix prefixes every environment override, e.g. ONPAGE_TOKEN
const EnvPrefix = "ONPAGE"

var keys = []string{"endpoint", "token", "timeout", "thumbnail_format", "allow_dynamic_relations"}

// Load reads the configuration. With an empty path the nearest onpage.yml
// from the working directory upwards is used, if any. Environment variables
// override file values.
func Load(path string) (*onpage.Config, error) {
	v := viper.New()

	v.SetDefault("timeout", onpage.DefaultTimeout)
	v.SetDefault("thumbnail_format", onpage.DefaultThumbnailFormat)
	v.SetDefault("allow_dynamic_relations", false)

	v.SetEnvPrefix(EnvPrefix)
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path == "" {
		if found, err := FindConfigFile(); err == nil {
			path = found
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg onpage.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML
func Save(path string, cfg onpage.Config) error {
	v := viper.New()
	v.Set("endpoint", cfg.Endpoint)
	v.Set("token", cfg.Token)
	if cfg.Timeout > 0 {
		v.Set("timeout", cfg.Timeout.String())
	}
	if cfg.ThumbnailFormat != "" {
		v.Set("thumbnail_format", cfg.ThumbnailFormat)
	}
	if cfg.AllowDynamicRelations {
		v.Set("allow_dynamic_relations", true)
	}

	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindConfigFile looks for onpage.yml in the working directory and its parents
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s found", FileName)
		}
		dir = parent
	}
}

// Override applies non-empty command line values on top of cfg
func Override(cfg *onpage.Config, endpoint, token string, timeout time.Duration) {
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if token != "" {
		cfg.Token = token
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
}
