package config

import (
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	redisclient "github.com/vietddude/aliaswatch/internal/infra/redis"
	"github.com/vietddude/aliaswatch/internal/infra/storage/postgres"
)

// Source types.
const (
	SourceREST = "rest"
	SourceDB   = "db"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Storage   StorageConfig      `yaml:"storage"`
	Source    SourceConfig       `yaml:"source"`
	Scanner   ScannerConfig      `yaml:"scanner"`
	Reconcile ReconcileConfig    `yaml:"reconcile"`
	Watchlist WatchlistConfig    `yaml:"watchlist"`
	Emitters  EmitterConfig      `yaml:"emitters"`
}

// ServerConfig holds health endpoint settings. GRPCPort 0 disables gRPC.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StorageConfig selects where state lives.
type StorageConfig struct {
	Backend   string        `yaml:"backend"`  // memory, postgres
	Bindings  string        `yaml:"bindings"` // defaults to Backend; may be redis
	Migrate   bool          `yaml:"migrate"`
	// Retention prunes stored match events older than this. Zero keeps them.
	Retention time.Duration `yaml:"retention"`
}

// SourceConfig selects the transaction source.
type SourceConfig struct {
	Type     string          `yaml:"type"` // rest, db
	Name     string          `yaml:"name"`
	URL      string          `yaml:"url"`
	Database postgres.Config `yaml:"database"`
	Timeout  time.Duration   `yaml:"timeout"`
	Retry    RetryConfig     `yaml:"retry"`
	// Lookup enables entity lookups against the source when the settlement
	// heuristic is ambiguous.
	Lookup bool `yaml:"lookup"`
}

// RetryConfig holds REST retry settings.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// ScannerConfig holds scan loop settings shared by all shards.
type ScannerConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	SeenCapacity  int           `yaml:"seen_capacity"`
	StartPosition string        `yaml:"start_position"` // "seconds.nanos"
	Shards        []ShardConfig `yaml:"shards"`

	Start domain.Position `yaml:"-"`
}

// ShardConfig runs one scanner over a group of transaction kinds.
type ShardConfig struct {
	Name  string          `yaml:"name"`
	Kinds []domain.TxKind `yaml:"kinds"`
}

// ReconcileConfig holds identity resolution settings.
type ReconcileConfig struct {
	SystemAccountMax int64         `yaml:"system_account_max"`
	Exclude          []string      `yaml:"exclude"`
	LookupTimeout    time.Duration `yaml:"lookup_timeout"`

	ExcludeIDs []domain.EntityID `yaml:"-"`
}

// WatchlistConfig holds the static watchlist.
type WatchlistConfig struct {
	RefreshInterval time.Duration    `yaml:"refresh_interval"`
	Addresses       []WatchedAddress `yaml:"addresses"`

	Entries []domain.WatchEntry `yaml:"-"`
}

// WatchedAddress is one configured address.
type WatchedAddress struct {
	Address string `yaml:"address"`
	Label   string `yaml:"label"`
}

// EmitterConfig enables event sinks.
type EmitterConfig struct {
	Log          bool  `yaml:"log"`
	Store        bool  `yaml:"store"`
	RedisStream  bool  `yaml:"redis_stream"`
	StreamMaxLen int64 `yaml:"stream_max_len"`
}
