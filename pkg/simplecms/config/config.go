package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/lock"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	repopg "github.com/tendant/simple-cms/pkg/simplecms/repo/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       "memory",
		DBSchema:           "cms",
		LockerType:         "local",
		LockTTL:            lock.DefaultTTL,
		LockWait:           lock.DefaultWait,
		DBLockTimeout:      repopg.DefaultLockTimeout,
		DefaultPerPage:     simplecms.DefaultPerPage,
		MaxPerPage:         simplecms.MaxPerPage,
		RegistryTTL:        simplecms.DefaultRegistryTTL,
		GuardRetries:       simplecms.DefaultGuardRetries,
		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the simple-cms service.
// The env tags are read by WithEnv.
type ServerConfig struct {
	Port        string `env:"PORT" env-description:"HTTP listen port" validate:"required"`
	Environment string `env:"ENVIRONMENT" env-description:"development, production or testing"`

	// Database configuration
	DatabaseURL   string        `env:"DATABASE_URL" env-description:"postgres connection string; empty or 'memory' selects the in-memory store" validate:"required_if=DatabaseType postgres"`
	DatabaseType  string        `env:"DATABASE_TYPE" env-description:"memory or postgres" validate:"oneof=memory postgres"`
	DBSchema      string        `env:"DB_SCHEMA" env-description:"postgres schema used as search_path"`
	AutoMigrate   bool          `env:"DB_AUTO_MIGRATE" env-description:"create the postgres tables on startup"`
	DBLockTimeout time.Duration `env:"DB_LOCK_TIMEOUT" env-description:"postgres lock_timeout of guarded membership changes" validate:"gte=0"`

	// Site locking for guarded membership changes
	LockerType    string        `env:"LOCKER" env-description:"none, local or redis" validate:"oneof=none local redis"`
	RedisAddr     string        `env:"REDIS_ADDR" env-description:"redis address for the redis locker" validate:"required_if=LockerType redis"`
	RedisPassword string        `env:"REDIS_PASSWORD" env-description:"redis password"`
	RedisDB       int           `env:"REDIS_DB" env-description:"redis database number" validate:"gte=0"`
	LockTTL       time.Duration `env:"LOCK_TTL" env-description:"expiry of a redis site lock" validate:"gte=0"`
	LockWait      time.Duration `env:"LOCK_WAIT" env-description:"how long the local locker waits for a busy site" validate:"gte=0"`

	// Service options
	DefaultPerPage     int           `env:"DEFAULT_PER_PAGE" env-description:"page size when per_page is missing" validate:"min=1,ltefield=MaxPerPage"`
	MaxPerPage         int           `env:"MAX_PER_PAGE" env-description:"largest accepted per_page" validate:"min=1"`
	RegistryTTL        time.Duration `env:"REGISTRY_TTL" env-description:"how long resolved content types are cached" validate:"gte=0"`
	GuardRetries       int           `env:"GUARD_RETRIES" env-description:"retries of a guarded change after a conflict" validate:"gte=0"`
	EnableEventLogging bool          `env:"ENABLE_EVENT_LOGGING" env-description:"log entry and account events"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// BuildService creates a Service instance from the server configuration. The
// returned cleanup releases the connections the service holds.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (simplecms.Service, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	options := []simplecms.Option{
		simplecms.WithLogger(logger),
		simplecms.WithPagination(c.DefaultPerPage, c.MaxPerPage),
		simplecms.WithRegistryTTL(c.RegistryTTL),
		simplecms.WithGuardRetries(c.GuardRetries),
	}

	// Set up repository
	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}
	closers = append(closers, closeRepo)
	options = append(options, simplecms.WithRepository(repo))

	// Set up site locker
	locker, closeLocker, err := c.buildLocker(ctx)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to build site locker: %w", err)
	}
	closers = append(closers, closeLocker)
	if locker != nil {
		options = append(options, simplecms.WithSiteLocker(locker))
	}

	// Set up event sink
	if c.EnableEventLogging {
		options = append(options, simplecms.WithEventSink(simplecms.NewLoggingEventSink(logger)))
	} else {
		options = append(options, simplecms.WithEventSink(simplecms.NewNoopEventSink()))
	}

	svc, err := simplecms.New(options...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simplecms.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), func() {}, nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		// Optionally set search_path for the connection
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if c.AutoMigrate {
			if schema != "" {
				if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
					pool.Close()
					return nil, nil, fmt.Errorf("failed to create schema: %w", err)
				}
			}
			if err := repopg.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repopg.NewWithPool(pool).WithLockTimeout(c.DBLockTimeout), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildLocker creates the SiteLocker for guarded membership changes. "none"
// leaves serialization to the repository alone.
func (c *ServerConfig) buildLocker(ctx context.Context) (simplecms.SiteLocker, func(), error) {
	switch c.LockerType {
	case "none":
		return nil, func() {}, nil
	case "local":
		return lock.NewLocalLocker(c.LockWait), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		return lock.NewRedisLocker(client, c.LockTTL), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported locker type: %s", c.LockerType)
	}
}

// PingPostgres verifies connectivity to Postgres. When schema is set it must
// already exist.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if schema == "" {
		return nil
	}
	var exists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`, schema).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up schema %s: %w", schema, err)
	}
	if !exists {
		return fmt.Errorf("schema %s does not exist", schema)
	}
	return nil
}

// CheckDatabase verifies the configured database before the service is
// built. The schema must exist unless AutoMigrate creates it.
func (c *ServerConfig) CheckDatabase(ctx context.Context) error {
	if c.DatabaseType != "postgres" {
		return nil
	}
	schema := c.DBSchema
	if c.AutoMigrate {
		schema = ""
	}
	return PingPostgres(ctx, c.DatabaseURL, schema)
}
