package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// ErrInvalidConfig is returned when a configuration value fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates YAML configuration.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Storage.Backend == "" {
		if cfg.Database.URL != "" {
			cfg.Storage.Backend = BackendPostgres
		} else {
			cfg.Storage.Backend = BackendMemory
		}
	}
	if cfg.Storage.Bindings == "" {
		cfg.Storage.Bindings = cfg.Storage.Backend
	}

	if cfg.Source.Type == "" {
		cfg.Source.Type = SourceREST
	}
	if cfg.Source.Name == "" {
		cfg.Source.Name = "mirror-" + cfg.Source.Type
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = 10 * time.Second
	}
	if cfg.Source.Retry.MaxAttempts == 0 {
		cfg.Source.Retry.MaxAttempts = 3
	}
	if cfg.Source.Retry.InitialDelay == 0 {
		cfg.Source.Retry.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Source.Retry.MaxDelay == 0 {
		cfg.Source.Retry.MaxDelay = 10 * time.Second
	}

	if cfg.Scanner.BatchSize == 0 {
		cfg.Scanner.BatchSize = 100
	}
	if cfg.Scanner.PollInterval == 0 {
		cfg.Scanner.PollInterval = 5 * time.Second
	}
	if cfg.Scanner.SeenCapacity == 0 {
		cfg.Scanner.SeenCapacity = 10000
	}
	if len(cfg.Scanner.Shards) == 0 {
		cfg.Scanner.Shards = []ShardConfig{{
			Name:  "main",
			Kinds: []domain.TxKind{domain.TxKindCryptoTransfer, domain.TxKindEthereum},
		}}
	}

	if cfg.Reconcile.LookupTimeout == 0 {
		cfg.Reconcile.LookupTimeout = 3 * time.Second
	}
	if cfg.Watchlist.RefreshInterval == 0 {
		cfg.Watchlist.RefreshInterval = time.Minute
	}
	if !cfg.Emitters.Log && !cfg.Emitters.Store && !cfg.Emitters.RedisStream {
		cfg.Emitters.Log = true
	}
}

func validate(cfg *AppConfig) error {
	switch cfg.Storage.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("%w: storage.backend %q", ErrInvalidConfig, cfg.Storage.Backend)
	}
	switch cfg.Storage.Bindings {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("%w: storage.bindings %q", ErrInvalidConfig, cfg.Storage.Bindings)
	}
	if cfg.Storage.Backend == BackendPostgres || cfg.Storage.Bindings == BackendPostgres {
		if cfg.Database.URL == "" {
			return fmt.Errorf("%w: database.url is required for the postgres backend", ErrInvalidConfig)
		}
	}
	if (cfg.Storage.Bindings == BackendRedis || cfg.Emitters.RedisStream) && cfg.Redis.URL == "" {
		return fmt.Errorf("%w: redis.url is required", ErrInvalidConfig)
	}
	if cfg.Emitters.Store && cfg.Storage.Backend != BackendPostgres {
		return fmt.Errorf("%w: emitters.store needs the postgres backend", ErrInvalidConfig)
	}

	switch cfg.Source.Type {
	case SourceREST:
		if cfg.Source.URL == "" {
			return fmt.Errorf("%w: source.url is required for the rest source", ErrInvalidConfig)
		}
	case SourceDB:
		if cfg.Source.Database.URL == "" {
			return fmt.Errorf("%w: source.database.url is required for the db source", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: source.type %q", ErrInvalidConfig, cfg.Source.Type)
	}

	if cfg.Scanner.StartPosition != "" {
		pos, err := domain.ParsePosition(cfg.Scanner.StartPosition)
		if err != nil {
			return fmt.Errorf("%w: scanner.start_position: %v", ErrInvalidConfig, err)
		}
		cfg.Scanner.Start = pos
	}

	names := make(map[string]bool, len(cfg.Scanner.Shards))
	for _, shard := range cfg.Scanner.Shards {
		if shard.Name == "" {
			return fmt.Errorf("%w: scanner shard without a name", ErrInvalidConfig)
		}
		if names[shard.Name] {
			return fmt.Errorf("%w: duplicate scanner shard %q", ErrInvalidConfig, shard.Name)
		}
		names[shard.Name] = true
		if len(shard.Kinds) == 0 {
			return fmt.Errorf("%w: scanner shard %q has no kinds", ErrInvalidConfig, shard.Name)
		}
		for _, k := range shard.Kinds {
			if k.Code() == 0 {
				return fmt.Errorf("%w: scanner shard %q: unknown kind %q", ErrInvalidConfig, shard.Name, k)
			}
		}
	}

	cfg.Reconcile.ExcludeIDs = cfg.Reconcile.ExcludeIDs[:0]
	for _, s := range cfg.Reconcile.Exclude {
		id, err := domain.ParseEntityID(s)
		if err != nil {
			return fmt.Errorf("%w: reconcile.exclude: %v", ErrInvalidConfig, err)
		}
		cfg.Reconcile.ExcludeIDs = append(cfg.Reconcile.ExcludeIDs, id)
	}

	// A bad configured address is fatal; it would otherwise never match.
	cfg.Watchlist.Entries = cfg.Watchlist.Entries[:0]
	for i, w := range cfg.Watchlist.Addresses {
		addr, err := domain.NormalizeAddress(w.Address)
		if err != nil {
			return fmt.Errorf("%w: watchlist.addresses[%d]: %v", ErrInvalidConfig, i, err)
		}
		cfg.Watchlist.Entries = append(cfg.Watchlist.Entries, domain.WatchEntry{
			Address: addr,
			Label:   w.Label,
		})
	}
	return nil
}
