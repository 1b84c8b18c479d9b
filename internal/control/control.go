package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/aliaswatch/internal/core/config"
	"github.com/vietddude/aliaswatch/internal/indexing/emitter"
	"github.com/vietddude/aliaswatch/internal/indexing/reconcile"
	"github.com/vietddude/aliaswatch/internal/indexing/scanner"
	"github.com/vietddude/aliaswatch/internal/infra/mirror"
	redisclient "github.com/vietddude/aliaswatch/internal/infra/redis"
	"github.com/vietddude/aliaswatch/internal/infra/storage"
	"github.com/vietddude/aliaswatch/internal/infra/storage/memory"
	"github.com/vietddude/aliaswatch/internal/infra/storage/postgres"
)

// stores holds the repositories selected by the storage config, plus the
// connections that back them so they can be closed on shutdown.
type stores struct {
	cursors   storage.CursorRepository
	bindings  storage.BindingRepository
	events    storage.EventRepository
	watchlist storage.WatchlistRepository

	mem   *memory.MemoryStorage
	db    *postgres.DB
	redis *redisclient.Client
}

func openStores(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		s.db = db
		if cfg.Storage.Migrate {
			if err := db.Migrate(ctx); err != nil {
				s.close()
				return nil, err
			}
		}
		s.cursors = postgres.NewCursorRepo(db)
		s.events = postgres.NewEventRepo(db)
		s.watchlist = postgres.NewWatchlistRepo(db, logger)
		logger.Info("Using PostgreSQL storage")
	default:
		s.mem = memory.NewMemoryStorage()
		s.cursors = memory.NewCursorRepo(s.mem)
		s.events = memory.NewEventRepo(s.mem)
		s.watchlist = memory.NewWatchlistRepo(s.mem)
		logger.Info("Using Memory storage")
	}

	if cfg.Storage.Bindings == config.BackendRedis || cfg.Emitters.RedisStream {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			s.close()
			return nil, err
		}
		s.redis = client
	}

	switch cfg.Storage.Bindings {
	case config.BackendPostgres:
		if s.db == nil {
			db, err := postgres.NewDB(ctx, cfg.Database)
			if err != nil {
				s.close()
				return nil, fmt.Errorf("failed to init db: %w", err)
			}
			s.db = db
		}
		s.bindings = postgres.NewBindingRepo(s.db)
	case config.BackendRedis:
		s.bindings = redisclient.NewBindingRepo(s.redis)
	default:
		if s.mem == nil {
			s.mem = memory.NewMemoryStorage()
		}
		s.bindings = memory.NewBindingRepo(s.mem)
	}
	logger.Info("Identity bindings store selected", "backend", cfg.Storage.Bindings)

	return s, nil
}

func (s *stores) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
}

// source is a transaction source that can also resolve aliases.
type source interface {
	scanner.Source
	reconcile.EntityResolver
}

func openSource(ctx context.Context, cfg config.SourceConfig) (source, func(), error) {
	switch cfg.Type {
	case config.SourceDB:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mirror database: %w", err)
		}
		return postgres.NewMirrorSource(db, cfg.Name), func() { _ = db.Close() }, nil
	default:
		client := mirror.NewClient(cfg.Name, cfg.URL, cfg.Timeout, mirror.RetryConfig{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialDelay:    cfg.Retry.InitialDelay,
			MaxDelay:        cfg.Retry.MaxDelay,
			BackoffMultiple: mirror.DefaultRetryConfig.BackoffMultiple,
		})
		return client, func() { _ = client.Close() }, nil
	}
}

func buildEmitter(cfg config.EmitterConfig, s *stores, logger *slog.Logger) emitter.Emitter {
	var sinks []emitter.Emitter
	if cfg.Log {
		sinks = append(sinks, emitter.NewLogEmitter(logger))
	}
	if cfg.Store {
		sinks = append(sinks, emitter.NewStoreEmitter(s.events, logger))
	}
	if cfg.RedisStream && s.redis != nil {
		sinks = append(sinks, redisclient.NewStreamEmitter(s.redis, cfg.StreamMaxLen, 0, logger))
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return emitter.NewMultiEmitter(sinks...)
}
