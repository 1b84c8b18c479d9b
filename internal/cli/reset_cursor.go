package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/aliaswatch/internal/core/cursor"
	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/infra/storage/postgres"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [scanner] [position]",
	Short: "Make a scanner resume after the given consensus position (seconds.nanos)",
	Args:  cobra.ExactArgs(2),
	Run:   runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	name := args[0]
	pos, err := domain.ParsePosition(args[1])
	if err != nil {
		fmt.Printf("Invalid position: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()

	ctx := context.Background()
	db := openDB(ctx, cfg)
	defer func() {
		_ = db.Close()
	}()

	mgr := cursor.NewManager(postgres.NewCursorRepo(db))
	if err := mgr.Reset(ctx, name, pos); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor for %s to %s\n", name, pos)
}
