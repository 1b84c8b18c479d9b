package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/vietddude/aliaswatch/internal/core/config"
	"github.com/vietddude/aliaswatch/internal/infra/storage/postgres"
)

// openDB connects to the state database. Commands that inspect or edit
// persisted state need the postgres backend.
func openDB(ctx context.Context, cfg *config.AppConfig) *postgres.DB {
	if cfg.Database.URL == "" {
		slog.Error("This command needs database.url; the memory backend keeps no state between runs")
		os.Exit(1)
	}
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return db
}
