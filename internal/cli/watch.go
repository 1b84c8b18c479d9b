package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/infra/storage/postgres"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage the stored watchlist",
}

var watchAddCmd = &cobra.Command{
	Use:   "add [address] [label]",
	Short: "Add or relabel a watched address",
	Args:  cobra.RangeArgs(1, 2),
	Run:   runWatchAdd,
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored watched addresses",
	Run:   runWatchList,
}

func init() {
	watchCmd.AddCommand(watchAddCmd, watchListCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatchAdd(cmd *cobra.Command, args []string) {
	addr, err := domain.NormalizeAddress(args[0])
	if err != nil {
		fmt.Printf("Invalid address: %v\n", err)
		os.Exit(1)
	}
	entry := &domain.WatchEntry{Address: addr, CreatedAt: time.Now()}
	if len(args) == 2 {
		entry.Label = args[1]
	}

	cfg := loadConfig()
	ctx := context.Background()
	db := openDB(ctx, cfg)
	defer func() {
		_ = db.Close()
	}()

	if err := postgres.NewWatchlistRepo(db, slog.Default()).Save(ctx, entry); err != nil {
		slog.Error("Failed to save watched address", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Watching %s\n", addr.Hex())
}

func runWatchList(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()
	db := openDB(ctx, cfg)
	defer func() {
		_ = db.Close()
	}()

	entries, err := postgres.NewWatchlistRepo(db, slog.Default()).GetAll(ctx)
	if err != nil {
		slog.Error("Failed to list watched addresses", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ADDRESS\tLABEL\tADDED")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Address.Hex(), e.Label, e.CreatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
