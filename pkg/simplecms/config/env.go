package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv applies environment variable overrides declared by the env tags of
// ServerConfig. Variables that are unset keep the value from defaults or
// earlier options.
//
// DATABASE_URL selects the backend on its own: a postgres:// or
// postgresql:// URL switches DATABASE_TYPE to postgres, and "memory" or an
// empty value keeps the in-memory store.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		return applyDatabaseURL(c)
	}
}

func applyDatabaseURL(c *ServerConfig) error {
	switch url := c.DatabaseURL; {
	case url == "" || url == "memory":
		c.DatabaseURL = ""
		if c.DatabaseType == "" {
			c.DatabaseType = "memory"
		}
	case strings.HasPrefix(url, "postgresql://"), strings.HasPrefix(url, "postgres://"):
		c.DatabaseType = "postgres"
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", url)
	}
	return nil
}

// Usage writes the environment variables WithEnv reads, with descriptions.
func Usage(w io.Writer) {
	var cfg ServerConfig
	cleanenv.FUsage(w, &cfg, nil)()
}
