// Package scanner runs the incremental scan loop: fetch a page of
// transactions after the committed watermark, decode and match them, resolve
// unbound aliases, emit the matches and commit the cursor.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/cursor"
	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/indexing/decoder"
	"github.com/vietddude/aliaswatch/internal/indexing/emitter"
	"github.com/vietddude/aliaswatch/internal/indexing/matcher"
	"github.com/vietddude/aliaswatch/internal/indexing/metrics"
	"github.com/vietddude/aliaswatch/internal/indexing/reconcile"
)

const (
	DefaultBatchSize    = 100
	DefaultPollInterval = 5 * time.Second

	maxTransitions = 32
)

// DefaultKinds are the transaction kinds that can carry a value transfer.
var DefaultKinds = []domain.TxKind{domain.TxKindCryptoTransfer, domain.TxKindEthereum}

// Source yields transactions in ascending position order.
type Source interface {
	Name() string
	// Fetch returns at most limit transactions of the given kinds whose
	// position is strictly greater than after.
	Fetch(ctx context.Context, after domain.Position, kinds []domain.TxKind, limit int) ([]domain.SourceTransaction, error)
}

// Refresher reloads the watchlist between cycles.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// TransportError wraps a failure of the transaction source.
type TransportError struct {
	Source string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Config holds scanner configuration.
type Config struct {
	Name          string
	Source        Source
	Kinds         []domain.TxKind
	BatchSize     int
	PollInterval  time.Duration
	SeenCapacity  int
	StartPosition domain.Position

	Cursor    cursor.Manager
	Decoder   *decoder.Decoder
	Watchlist matcher.Watchlist
	Bindings  matcher.Bindings
	Resolver  *reconcile.Resolver // optional
	Emitter   emitter.Emitter
	Refresher Refresher // optional
	Logger    *slog.Logger
}

// CycleResult summarizes one scan cycle.
type CycleResult struct {
	Fetched      int
	Processed    int
	Skipped      int
	DecodeErrors int
	Matches      int
	Watermark    domain.Position
}

// Status is a point-in-time view of a scanner.
type Status struct {
	Name        string
	Running     bool
	Phase       Phase
	Watermark   domain.Position
	Cycles      uint64
	LastCycleAt time.Time
	LastError   string
	Transitions []Transition
}

// Scanner scans one transaction source with its own cursor.
type Scanner struct {
	cfg     Config
	logger  *slog.Logger
	running atomic.Bool
	stop    chan struct{}
	once    sync.Once

	// cycle serializes RunCycle so Start and manual callers never overlap.
	cycle sync.Mutex
	cur   *cursor.ScanCursor

	mu          sync.RWMutex
	phase       Phase
	cycles      uint64
	lastCycleAt time.Time
	lastErr     error
	transitions []Transition
}

type pending struct {
	event      domain.MatchEvent
	settlement []domain.AccountAmount
}

// New creates a scanner, applying defaults for unset options.
func New(cfg Config) (*Scanner, error) {
	if cfg.Name == "" {
		return nil, errors.New("scanner name is required")
	}
	if cfg.Source == nil || cfg.Cursor == nil || cfg.Decoder == nil ||
		cfg.Watchlist == nil || cfg.Bindings == nil || cfg.Emitter == nil {
		return nil, fmt.Errorf("scanner %s: missing dependency", cfg.Name)
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = DefaultKinds
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SeenCapacity <= 0 {
		cfg.SeenCapacity = cursor.DefaultSeenCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		cfg:    cfg,
		logger: logger.With("scanner", cfg.Name),
		stop:   make(chan struct{}),
		phase:  PhaseIdle,
	}, nil
}

// Name returns the scanner name, which is also its cursor name.
func (s *Scanner) Name() string {
	return s.cfg.Name
}

// Start runs cycles until ctx is done or Stop is called. A full page is
// followed immediately by another cycle; otherwise the scanner waits for the
// next tick. Stop takes effect between cycles.
func (s *Scanner) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scanner %s already running", s.cfg.Name)
	}
	defer s.running.Store(false)

	s.logger.Info("Scanner started",
		"source", s.cfg.Source.Name(),
		"kinds", s.cfg.Kinds,
		"batch_size", s.cfg.BatchSize,
		"interval", s.cfg.PollInterval,
	)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		res, err := s.RunCycle(ctx)
		if err != nil {
			s.logger.Warn("Scan cycle failed", "error", err)
		}
		catchingUp := err == nil && res.Fetched >= s.cfg.BatchSize

		if catchingUp {
			select {
			case <-ctx.Done():
				return nil
			case <-s.stop:
				return nil
			default:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop asks the loop to exit after the current cycle.
func (s *Scanner) Stop() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// GetStatus returns the current status.
func (s *Scanner) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Name:        s.cfg.Name,
		Running:     s.running.Load(),
		Phase:       s.phase,
		Cycles:      s.cycles,
		LastCycleAt: s.lastCycleAt,
		Transitions: append([]Transition(nil), s.transitions...),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if c := s.cursor(); c != nil {
		st.Watermark = c.Watermark()
	}
	return st
}

// RunCycle performs one fetch, process, resolve, emit and commit pass.
// A source failure is returned as a *TransportError and leaves the
// watermark untouched; an emit failure leaves the batch uncommitted so the
// next cycle sees it again.
func (s *Scanner) RunCycle(ctx context.Context) (CycleResult, error) {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	start := time.Now()
	res, err := s.runCycle(ctx)
	metrics.CycleDuration.WithLabelValues(s.cfg.Name).Observe(time.Since(start).Seconds())

	s.mu.Lock()
	s.cycles++
	s.lastCycleAt = start
	s.lastErr = err
	s.mu.Unlock()

	return res, err
}

func (s *Scanner) runCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	cur, err := s.loadCursor(ctx)
	if err != nil {
		return res, err
	}
	res.Watermark = cur.Watermark()

	if s.cfg.Refresher != nil {
		if err := s.cfg.Refresher.Refresh(ctx); err != nil {
			s.logger.Warn("Watchlist refresh failed, keeping current list", "error", err)
		}
	}

	// 1. Fetch
	s.transition(PhaseFetching, "cycle start")
	txs, err := s.fetch(ctx, cur.Watermark())
	if err != nil {
		s.transition(PhaseIdle, "fetch failed")
		return res, err
	}
	res.Fetched = len(txs)

	// 2. Decode and match
	s.transition(PhaseProcessing, fmt.Sprintf("%d fetched", len(txs)))
	entries := make([]cursor.Entry, 0, len(txs))
	inBatch := make(map[string]struct{}, len(txs))
	var matches []pending
	for i := range txs {
		src := &txs[i]
		if _, dup := inBatch[src.ID]; dup || cur.Seen(src.ID) {
			s.skip(&res, "seen")
			continue
		}
		inBatch[src.ID] = struct{}{}
		entries = append(entries, cursor.Entry{ID: src.ID, Position: src.Position})

		if !src.Successful() {
			s.skip(&res, "result")
			continue
		}

		decoded, err := s.cfg.Decoder.DecodeSource(src)
		if err != nil {
			layer := "unknown"
			var de *decoder.DecodeError
			if errors.As(err, &de) {
				layer = de.Layer
			}
			metrics.DecodeErrors.WithLabelValues(s.cfg.Name, layer).Inc()
			s.logger.Warn("Failed to decode envelope",
				"tx", src.ID,
				"position", src.Position.String(),
				"layer", layer,
				"error", err,
			)
			res.DecodeErrors++
			continue
		}

		res.Processed++
		for _, ev := range matcher.Match(decoded, s.cfg.Watchlist, s.cfg.Bindings) {
			matches = append(matches, pending{event: ev, settlement: src.Settlement})
		}
	}
	metrics.TransactionsProcessed.WithLabelValues(s.cfg.Name).Add(float64(res.Processed))

	// 3. Resolve in order, so an earlier line's binding serves later ones
	s.transition(PhaseResolving, fmt.Sprintf("%d matches", len(matches)))
	events := make([]domain.MatchEvent, 0, len(matches))
	for i := range matches {
		if s.cfg.Resolver != nil {
			s.cfg.Resolver.Resolve(ctx, &matches[i].event, matches[i].settlement)
		}
		events = append(events, matches[i].event)
	}
	res.Matches = len(events)

	// 4. Emit
	s.transition(PhaseEmitting, "")
	if len(events) > 0 {
		if err := s.cfg.Emitter.EmitBatch(ctx, events); err != nil {
			s.transition(PhaseIdle, "emit failed")
			return res, fmt.Errorf("emit failed: %w", err)
		}
		for _, ev := range events {
			metrics.MatchesEmitted.WithLabelValues(s.cfg.Name, string(ev.Provenance), string(ev.Resolution)).Inc()
		}
	}

	// 5. Commit
	s.transition(PhaseCommitting, "")
	if len(entries) > 0 {
		if err := s.cfg.Cursor.Commit(ctx, cur, entries); err != nil {
			s.logger.Error("Failed to persist cursor", "error", err)
		}
	}
	res.Watermark = cur.Watermark()
	metrics.ScannerWatermark.WithLabelValues(s.cfg.Name).Set(float64(res.Watermark) / float64(time.Second))
	s.transition(PhaseIdle, "cycle complete")

	if res.Matches > 0 || res.DecodeErrors > 0 {
		s.logger.Info("Cycle complete",
			"fetched", res.Fetched,
			"processed", res.Processed,
			"matches", res.Matches,
			"decode_errors", res.DecodeErrors,
			"watermark", res.Watermark.String(),
		)
	}
	return res, nil
}

func (s *Scanner) fetch(ctx context.Context, after domain.Position) ([]domain.SourceTransaction, error) {
	name := s.cfg.Source.Name()
	start := time.Now()
	txs, err := s.cfg.Source.Fetch(ctx, after, s.cfg.Kinds, s.cfg.BatchSize)
	metrics.SourceCallsTotal.WithLabelValues(name, "fetch").Inc()
	metrics.SourceLatency.WithLabelValues(name, "fetch").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceErrorsTotal.WithLabelValues(name, "fetch").Inc()
		return nil, &TransportError{Source: name, Err: err}
	}
	return txs, nil
}

func (s *Scanner) loadCursor(ctx context.Context) (*cursor.ScanCursor, error) {
	if c := s.cursor(); c != nil {
		return c, nil
	}
	c, err := s.cfg.Cursor.Load(ctx, s.cfg.Name, s.cfg.SeenCapacity, s.cfg.StartPosition)
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor: %w", err)
	}
	s.mu.Lock()
	s.cur = c
	s.mu.Unlock()
	s.logger.Info("Cursor loaded", "watermark", c.Watermark().String(), "seen", c.Len())
	return c, nil
}

func (s *Scanner) cursor() *cursor.ScanCursor {
	return s.cur
}

func (s *Scanner) skip(res *CycleResult, reason string) {
	res.Skipped++
	metrics.TransactionsSkipped.WithLabelValues(s.cfg.Name, reason).Inc()
}

func (s *Scanner) transition(to Phase, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := NewTransition(s.phase, to, reason)
	if !t.IsValid() {
		s.logger.Error("Invalid phase transition", "from", t.From, "to", t.To, "error", ErrInvalidTransition)
	}
	s.phase = to
	s.transitions = append(s.transitions, t)
	if len(s.transitions) > maxTransitions {
		s.transitions = s.transitions[len(s.transitions)-maxTransitions:]
	}
}
