package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate creates the Postgres tables when the service is built
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithLocalLocker serializes guarded changes within this process
func WithLocalLocker(wait time.Duration) Option {
	return func(c *ServerConfig) error {
		c.LockerType = "local"
		if wait > 0 {
			c.LockWait = wait
		}
		return nil
	}
}

// WithRedisLocker serializes guarded changes across processes through redis
func WithRedisLocker(addr, password string, db int, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if addr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
		c.LockerType = "redis"
		c.RedisAddr = addr
		c.RedisPassword = password
		c.RedisDB = db
		if ttl > 0 {
			c.LockTTL = ttl
		}
		return nil
	}
}

// WithoutLocker leaves guarded changes to the repository's own locking
func WithoutLocker() Option {
	return func(c *ServerConfig) error {
		c.LockerType = "none"
		return nil
	}
}

// WithPagination sets the default and maximum page sizes
func WithPagination(defaultPerPage, maxPerPage int) Option {
	return func(c *ServerConfig) error {
		if defaultPerPage < 1 || maxPerPage < defaultPerPage {
			return fmt.Errorf("invalid pagination bounds: default %d, max %d", defaultPerPage, maxPerPage)
		}
		c.DefaultPerPage = defaultPerPage
		c.MaxPerPage = maxPerPage
		return nil
	}
}

// WithRegistryTTL sets how long resolved content types are cached
func WithRegistryTTL(ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if ttl < 0 {
			return fmt.Errorf("registry TTL cannot be negative")
		}
		c.RegistryTTL = ttl
		return nil
	}
}

// WithGuardRetries sets how many times a conflicting guarded change is retried
func WithGuardRetries(n int) Option {
	return func(c *ServerConfig) error {
		if n < 0 {
			return fmt.Errorf("guard retries cannot be negative")
		}
		c.GuardRetries = n
		return nil
	}
}

// WithEventLogging enables or disables event logging
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
