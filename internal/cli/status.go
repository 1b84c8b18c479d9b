package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/aliaswatch/internal/core/cursor"
	"github.com/vietddude/aliaswatch/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted cursor of every scanner",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	db := openDB(ctx, cfg)
	defer func() {
		_ = db.Close()
	}()

	mgr := cursor.NewManager(postgres.NewCursorRepo(db))
	snaps, err := mgr.List(ctx)
	if err != nil {
		slog.Error("Failed to list cursors", "error", err)
		os.Exit(1)
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SCANNER\tWATERMARK\tLAG\tTIES\tUPDATED")
	for _, s := range snaps {
		lag := "-"
		if s.Watermark > 0 {
			lag = now.Sub(s.Watermark.Time()).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			s.Name, s.Watermark, lag, len(s.TieIDs), s.UpdatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
