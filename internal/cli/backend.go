package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/thicket/internal/config"
	"github.com/aretw0/thicket/pkg/adapters/file"
	"github.com/aretw0/thicket/pkg/adapters/loam"
	"github.com/aretw0/thicket/pkg/adapters/memory"
	"github.com/aretw0/thicket/pkg/adapters/postgres"
	"github.com/aretw0/thicket/pkg/adapters/redis"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/persistence/middleware"
	"github.com/aretw0/thicket/pkg/ports"
)

// Backend is the tree persistence selected by the configuration.
type Backend struct {
	// Source reads trees. It is always set.
	Source ports.TreeSource
	// Store writes trees. It is nil for read only backends.
	Store ports.TreeStore
	// Locker serialises writers across processes when the backend offers it.
	Locker ports.DistributedLocker

	closers []func() error
}

// Writable returns the store, or domain.ErrReadOnly.
func (b *Backend) Writable() (ports.TreeStore, error) {
	if b.Store == nil {
		return nil, fmt.Errorf("store: %w", domain.ErrReadOnly)
	}
	return b.Store, nil
}

// Close releases connections held by the backend.
func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// OpenBackend connects the configured store and wraps it with the
// encryption and redaction middleware when they are enabled.
func OpenBackend(ctx context.Context, sc config.StoreConfig, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}
	var store ports.TreeStore

	switch sc.Backend {
	case config.BackendMemory:
		store = memory.NewStore()
	case config.BackendFile:
		store = file.New(sc.Dir, file.WithFormat(file.Format(sc.Format)))
	case config.BackendRedis:
		prefix := sc.Redis.Prefix
		if prefix == "" {
			prefix = redis.DefaultPrefix
		}
		rs := redis.New(sc.Redis.Address, sc.Redis.Password, sc.Redis.DB,
			redis.WithPrefix(prefix),
			redis.WithTTL(sc.Redis.TTL),
		)
		b.Locker = redis.NewLocker(rs.Client(), prefix)
		b.closers = append(b.closers, rs.Close)
		store = rs
	case config.BackendPostgres:
		var opts []postgres.Option
		if sc.Postgres.Table != "" {
			opts = append(opts, postgres.WithTable(sc.Postgres.Table))
		}
		ps, err := postgres.Open(ctx, sc.Postgres.DSN, opts...)
		if err != nil {
			return nil, err
		}
		if err := ps.Migrate(ctx); err != nil {
			_ = ps.Close()
			return nil, err
		}
		b.closers = append(b.closers, ps.Close)
		store = ps
	case config.BackendLoam:
		src, err := loam.Open(sc.Loam.Path)
		if err != nil {
			return nil, err
		}
		b.Source = src
		logger.Debug("Opened read only backend", "backend", sc.Backend, "path", sc.Loam.Path)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}

	mws, err := storeMiddleware(sc)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Store = middleware.Chain(store, mws...)
	b.Source = b.Store
	logger.Debug("Opened backend", "backend", sc.Backend, "middleware", len(mws))
	return b, nil
}

// storeMiddleware redacts before it encrypts, so masked values are what
// gets sealed.
func storeMiddleware(sc config.StoreConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(sc.Redact) > 0 {
		mw, err := middleware.NewRedactionMiddleware(sc.Redact)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	key, err := sc.EncryptionKeyBytes()
	if err != nil {
		return nil, err
	}
	if key != nil {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return mws, nil
}
