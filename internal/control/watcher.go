package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vietddude/aliaswatch/internal/core/config"
	"github.com/vietddude/aliaswatch/internal/core/cursor"
	"github.com/vietddude/aliaswatch/internal/core/worker"
	"github.com/vietddude/aliaswatch/internal/indexing/decoder"
	"github.com/vietddude/aliaswatch/internal/indexing/emitter"
	"github.com/vietddude/aliaswatch/internal/indexing/filter"
	"github.com/vietddude/aliaswatch/internal/indexing/health"
	"github.com/vietddude/aliaswatch/internal/indexing/reconcile"
	"github.com/vietddude/aliaswatch/internal/indexing/scanner"
)

// Watcher is the main application struct that manages the scanner lifecycle.
type Watcher struct {
	cfg         *config.AppConfig
	scanners    []*scanner.Scanner
	stores      *stores
	closeSource func()
	emitter     emitter.Emitter
	refresher   *filter.Refresher
	watchlist   *filter.Watchlist
	reconciler  *reconcile.Reconciler
	healthMon   *health.Monitor
	httpServer  *health.Server
	grpcServer  *health.GRPCServer
	pruner      *worker.Pruner
	log         *slog.Logger
	wg          sync.WaitGroup
}

// NewWatcher creates a new Watcher instance with all dependencies initialized.
func NewWatcher(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 1. Storage
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// 2. Transaction source
	src, closeSource, err := openSource(ctx, cfg.Source)
	if err != nil {
		st.close()
		return nil, err
	}
	fail := func(err error) (*Watcher, error) {
		closeSource()
		st.close()
		return nil, err
	}

	// 3. Identity reconciliation
	rec := reconcile.New(st.bindings, logger)
	if err := rec.Load(ctx); err != nil {
		return fail(fmt.Errorf("failed to load bindings: %w", err))
	}
	var lookup reconcile.EntityResolver
	if cfg.Source.Lookup {
		lookup = src
	}
	resolver := reconcile.NewResolver(rec, lookup, reconcile.Config{
		SystemAccountMax: cfg.Reconcile.SystemAccountMax,
		Exclude:          cfg.Reconcile.ExcludeIDs,
		LookupTimeout:    cfg.Reconcile.LookupTimeout,
	}, logger)

	// 4. Watchlist
	watchlist := filter.NewWatchlist(cfg.Watchlist.Entries)
	refresher := filter.NewRefresher(watchlist, cfg.Watchlist.Entries, st.watchlist, cfg.Watchlist.RefreshInterval, logger)
	if err := refresher.ForceRefresh(ctx); err != nil {
		logger.Warn("Failed to load stored watchlist, using configured addresses", "error", err)
	}

	// 5. Scanners, one per shard, each with its own cursor
	cursorMgr := cursor.NewManager(st.cursors)
	dec := decoder.New(decoder.NewEVMDecoder())
	em := buildEmitter(cfg.Emitters, st, logger)

	scanners := make([]*scanner.Scanner, 0, len(cfg.Scanner.Shards))
	providers := make([]health.StatusProvider, 0, len(cfg.Scanner.Shards))
	for _, shard := range cfg.Scanner.Shards {
		sc, err := scanner.New(scanner.Config{
			Name:          shard.Name,
			Source:        src,
			Kinds:         shard.Kinds,
			BatchSize:     cfg.Scanner.BatchSize,
			PollInterval:  cfg.Scanner.PollInterval,
			SeenCapacity:  cfg.Scanner.SeenCapacity,
			StartPosition: cfg.Scanner.Start,
			Cursor:        cursorMgr,
			Decoder:       dec,
			Watchlist:     watchlist,
			Bindings:      rec,
			Resolver:      resolver,
			Emitter:       em,
			Refresher:     refresher,
			Logger:        logger,
		})
		if err != nil {
			return fail(err)
		}
		scanners = append(scanners, sc)
		providers = append(providers, sc)
		logger.Info("Scanner configured", "name", shard.Name, "kinds", shard.Kinds, "source", src.Name())
	}

	// 6. Health
	healthMon := health.NewMonitor(providers, cursorMgr, watchlist.Size, rec.Len, health.DefaultThresholds)
	var grpcServer *health.GRPCServer
	if cfg.Server.GRPCPort > 0 {
		grpcServer = health.NewGRPCServer(healthMon, cfg.Server.GRPCPort)
	}

	var pruner *worker.Pruner
	if cfg.Storage.Retention > 0 {
		pruner = worker.NewPruner(st.events, cfg.Storage.Retention, logger)
	}

	return &Watcher{
		cfg:         cfg,
		scanners:    scanners,
		stores:      st,
		closeSource: closeSource,
		emitter:     em,
		refresher:   refresher,
		watchlist:   watchlist,
		reconciler:  rec,
		healthMon:   healthMon,
		httpServer:  health.NewServer(healthMon, cfg.Server.Port),
		grpcServer:  grpcServer,
		pruner:      pruner,
		log:         logger,
	}, nil
}

// Start starts the health endpoints and every scanner. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	go func() {
		if err := w.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.log.Error("Health server failed", "error", err)
		}
	}()

	if w.grpcServer != nil {
		go func() {
			if err := w.grpcServer.Start(ctx); err != nil {
				w.log.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	if w.stores.db != nil {
		w.stores.db.StartMetricsCollector(ctx)
	}

	if w.pruner != nil {
		w.log.Info("Starting event pruner", "retention", w.cfg.Storage.Retention)
		go w.pruner.Start(ctx)
	}

	for _, sc := range w.scanners {
		w.log.Info("Starting scanner", "name", sc.Name())
		w.wg.Add(1)
		go func(sc *scanner.Scanner) {
			defer w.wg.Done()
			if err := sc.Start(ctx); err != nil {
				w.log.Error("Scanner failed", "name", sc.Name(), "error", err)
			}
		}(sc)
	}
	return nil
}

// Stop stops the scanners after their current cycle, then closes the
// endpoints and connections.
func (w *Watcher) Stop(ctx context.Context) error {
	w.log.Info("Stopping Watcher...")

	for _, sc := range w.scanners {
		_ = sc.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.log.Warn("Scanners did not stop before the shutdown deadline")
	}

	if w.grpcServer != nil {
		w.grpcServer.Stop()
	}
	err := w.httpServer.Stop(ctx)

	if cerr := w.emitter.Close(); cerr != nil {
		w.log.Warn("Failed to close emitter", "error", cerr)
	}
	w.closeSource()
	w.stores.close()
	return err
}

// Scanners returns the configured scanners.
func (w *Watcher) Scanners() []*scanner.Scanner {
	return w.scanners
}

// Health returns the current health report.
func (w *Watcher) Health(ctx context.Context) health.HealthReport {
	return w.healthMon.Report(ctx)
}
