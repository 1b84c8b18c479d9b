package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/cursor"
	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/indexing/decoder"
	"github.com/vietddude/aliaswatch/internal/indexing/decoder/envelopetest"
	"github.com/vietddude/aliaswatch/internal/indexing/emitter"
	"github.com/vietddude/aliaswatch/internal/indexing/filter"
	"github.com/vietddude/aliaswatch/internal/indexing/reconcile"
	"github.com/vietddude/aliaswatch/internal/infra/storage/memory"
)

var (
	watched = domain.MustAddress("8f31e9fa14266c5da7f63bfc96811e08b7c09183")
	payer   = domain.EntityID{Num: 1500}
)

// mockSource serves a fixed, ascending list of transactions.
type mockSource struct {
	mu          sync.Mutex
	txs         []domain.SourceTransaction
	err         error
	ignoreAfter bool
	calls       int
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Fetch(ctx context.Context, after domain.Position, kinds []domain.TxKind, limit int) ([]domain.SourceTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.SourceTransaction
	for _, tx := range m.txs {
		if !m.ignoreAfter && tx.Position <= after {
			continue
		}
		if !hasKind(kinds, tx.Kind) {
			continue
		}
		out = append(out, tx)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func hasKind(kinds []domain.TxKind, k domain.TxKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// mockEmitter records batches and can fail a number of times.
type mockEmitter struct {
	mu       sync.Mutex
	failures int
	batches  [][]domain.MatchEvent
}

func (m *mockEmitter) Emit(ctx context.Context, event *domain.MatchEvent) error {
	return m.EmitBatch(ctx, []domain.MatchEvent{*event})
}

func (m *mockEmitter) EmitBatch(ctx context.Context, events []domain.MatchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("sink unavailable")
	}
	m.batches = append(m.batches, append([]domain.MatchEvent(nil), events...))
	return nil
}

func (m *mockEmitter) Close() error { return nil }

func (m *mockEmitter) events() []domain.MatchEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MatchEvent
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func transferTx(t *testing.T, pos domain.Position, credits ...envelopetest.Credit) domain.SourceTransaction {
	t.Helper()
	body := envelopetest.Body{
		Payer:      payer,
		ValidStart: domain.Position(1700000000_000000000) + pos,
		Transfers:  append([]envelopetest.Credit{envelopetest.ToEntity(payer, -1)}, credits...),
	}.Marshal()
	env := envelopetest.Signed(body)
	tx, err := decoder.New(nil).Decode(env)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return domain.SourceTransaction{
		ID:       tx.ID,
		Position: pos,
		Kind:     domain.TxKindCryptoTransfer,
		Result:   domain.TxResultSuccess,
		Envelope: env,
	}
}

type fixture struct {
	source  *mockSource
	emitter *mockEmitter
	manager *cursor.DefaultManager
	rec     *reconcile.Reconciler
	scanner *Scanner
}

func newFixture(t *testing.T, txs ...domain.SourceTransaction) *fixture {
	t.Helper()
	f := &fixture{
		source:  &mockSource{txs: txs},
		emitter: &mockEmitter{},
		manager: cursor.NewManager(memory.NewCursorRepo(memory.NewMemoryStorage())),
		rec:     reconcile.New(nil, nil),
	}
	f.scanner = f.newScanner(t)
	return f
}

func (f *fixture) newScanner(t *testing.T) *Scanner {
	t.Helper()
	s, err := New(Config{
		Name:      "test",
		Source:    f.source,
		BatchSize: 10,
		Cursor:    f.manager,
		Decoder:   decoder.New(nil),
		Watchlist: filter.NewWatchlist([]domain.WatchEntry{{Address: watched, Label: "deposit"}}),
		Bindings:  f.rec,
		Resolver:  reconcile.NewResolver(f.rec, nil, reconcile.Config{}, nil),
		Emitter:   f.emitter,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRunCycle_EmitsAndCommits(t *testing.T) {
	f := newFixture(t,
		transferTx(t, 100, envelopetest.ToEntity(domain.EntityID{Num: 2000}, 1)),
		transferTx(t, 200, envelopetest.ToAlias(watched, 1_000_000)),
	)

	res, err := f.scanner.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Fetched != 2 || res.Processed != 2 || res.Matches != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Watermark != 200 {
		t.Errorf("watermark = %d, want 200", res.Watermark)
	}

	events := f.emitter.events()
	if len(events) != 1 || !events[0].SenderUsedRawAlias || events[0].Amount != 1_000_000 {
		t.Fatalf("unexpected events: %+v", events)
	}

	snap, err := f.manager.Get(context.Background(), "test")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Watermark != 200 {
		t.Errorf("persisted watermark = %d", snap.Watermark)
	}

	// Nothing new: the watermark holds and nothing is emitted again.
	res, err = f.scanner.RunCycle(context.Background())
	if err != nil || res.Fetched != 0 || res.Watermark != 200 {
		t.Errorf("second cycle: %+v %v", res, err)
	}
	if len(f.emitter.events()) != 1 {
		t.Error("event emitted twice")
	}
}

func TestRunCycle_FetchErrorKeepsWatermark(t *testing.T) {
	f := newFixture(t, transferTx(t, 100, envelopetest.ToAlias(watched, 5)))
	f.source.err = errors.New("connection refused")

	_, err := f.scanner.RunCycle(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Source != "mock" {
		t.Errorf("source = %q", te.Source)
	}
	if st := f.scanner.GetStatus(); st.Watermark != 0 || st.Phase != PhaseIdle || st.LastError == "" {
		t.Errorf("unexpected status: %+v", st)
	}

	f.source.err = nil
	res, err := f.scanner.RunCycle(context.Background())
	if err != nil || res.Watermark != 100 || res.Matches != 1 {
		t.Errorf("retry cycle: %+v %v", res, err)
	}
}

func TestRunCycle_EmitErrorLeavesBatchUncommitted(t *testing.T) {
	f := newFixture(t, transferTx(t, 100, envelopetest.ToAlias(watched, 5)))
	f.emitter.failures = 1

	if _, err := f.scanner.RunCycle(context.Background()); err == nil {
		t.Fatal("expected emit error")
	}
	if wm := f.scanner.GetStatus().Watermark; wm != 0 {
		t.Fatalf("watermark advanced to %d after failed emit", wm)
	}

	res, err := f.scanner.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Watermark != 100 || res.Matches != 1 {
		t.Errorf("unexpected retry result: %+v", res)
	}
	if len(f.emitter.events()) != 1 {
		t.Errorf("expected exactly one delivered event, got %d", len(f.emitter.events()))
	}
}

func TestRunCycle_SkipsFailedAndUndecodable(t *testing.T) {
	failed := transferTx(t, 100, envelopetest.ToAlias(watched, 5))
	failed.Result = "INSUFFICIENT_PAYER_BALANCE"
	garbage := domain.SourceTransaction{
		ID:       "0.0.1500-1-000000000",
		Position: 200,
		Kind:     domain.TxKindCryptoTransfer,
		Result:   domain.TxResultSuccess,
		Envelope: []byte{0x2a, 0x05, 0x01},
	}
	f := newFixture(t, failed, garbage)

	res, err := f.scanner.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.DecodeErrors != 1 || res.Matches != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Watermark != 200 {
		t.Errorf("watermark should move past skipped entries, got %d", res.Watermark)
	}
}

func TestRunCycle_ExactlyOnceOnRedelivery(t *testing.T) {
	f := newFixture(t, transferTx(t, 100, envelopetest.ToAlias(watched, 5)))
	f.source.ignoreAfter = true

	for i := 0; i < 3; i++ {
		if _, err := f.scanner.RunCycle(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(f.emitter.events()); n != 1 {
		t.Errorf("expected 1 event across redeliveries, got %d", n)
	}
}

func TestRunCycle_DeduplicatesWithinPage(t *testing.T) {
	tx := transferTx(t, 100, envelopetest.ToAlias(watched, 5))
	f := newFixture(t, tx, tx)

	res, err := f.scanner.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 || res.Skipped != 1 || res.Matches != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if n := len(f.emitter.events()); n != 1 {
		t.Errorf("repeated id in one page emitted %d events, want 1", n)
	}
	if res.Watermark != 100 {
		t.Errorf("watermark = %d, want 100", res.Watermark)
	}
}

func TestRunCycle_PartialSinkFailureDeliversOnce(t *testing.T) {
	f := newFixture(t, transferTx(t, 100, envelopetest.ToAlias(watched, 5)))
	healthy, flaky := &mockEmitter{}, &mockEmitter{failures: 1}
	f.scanner.cfg.Emitter = emitter.NewMultiEmitter(healthy, flaky)

	if _, err := f.scanner.RunCycle(context.Background()); err == nil {
		t.Fatal("expected emit error from the failing sink")
	}
	res, err := f.scanner.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Watermark != 100 {
		t.Errorf("watermark = %d, want 100", res.Watermark)
	}
	if n := len(healthy.events()); n != 1 {
		t.Errorf("healthy sink received %d copies, want 1", n)
	}
	if n := len(flaky.events()); n != 1 {
		t.Errorf("recovered sink received %d copies, want 1", n)
	}
}

func TestRunCycle_ResumesFromPersistedCursor(t *testing.T) {
	first := transferTx(t, 100, envelopetest.ToAlias(watched, 5))
	second := transferTx(t, 100, envelopetest.ToAlias(watched, 6))
	second.ID = first.ID + "-scheduled"
	f := newFixture(t, first, second)
	f.source.ignoreAfter = true
	if _, err := f.scanner.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A fresh scanner over the same store sees the redelivered ties as seen.
	restarted := f.newScanner(t)
	res, err := restarted.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Matches != 0 || res.Skipped != 2 {
		t.Errorf("unexpected result after restart: %+v", res)
	}
	if n := len(f.emitter.events()); n != 2 {
		t.Errorf("expected 2 events total, got %d", n)
	}
}

func TestRunCycle_ResolvesBySettlement(t *testing.T) {
	created := domain.EntityID{Num: 5005}
	tx := transferTx(t, 100, envelopetest.ToAlias(watched, 1_000_000))
	tx.Settlement = []domain.AccountAmount{
		{Account: payer, Amount: -1_010_000},
		{Account: domain.EntityID{Num: 98}, Amount: 10_000},
		{Account: created, Amount: 1_000_000},
	}
	f := newFixture(t, tx)

	if _, err := f.scanner.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	events := f.emitter.events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Resolution != domain.ResolutionHeuristic || events[0].Entity == nil || *events[0].Entity != created {
		t.Errorf("unexpected resolution: %s %v", events[0].Resolution, events[0].Entity)
	}
	if id, ok := f.rec.Lookup(watched); !ok || id != created {
		t.Errorf("binding not recorded: %v %v", id, ok)
	}

	// A later entity-addressed credit now matches via the binding.
	f.source.txs = append(f.source.txs, transferTx(t, 200, envelopetest.ToEntity(created, 7)))
	if _, err := f.scanner.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	events = f.emitter.events()
	if len(events) != 2 || events[1].SenderUsedRawAlias || events[1].Address != watched {
		t.Errorf("unexpected follow-up event: %+v", events)
	}
}

func TestRunCycle_KindFilter(t *testing.T) {
	tx := transferTx(t, 100, envelopetest.ToAlias(watched, 5))
	f := newFixture(t, tx)
	s, err := New(Config{
		Name:      "eth-only",
		Source:    f.source,
		Kinds:     []domain.TxKind{domain.TxKindEthereum},
		Cursor:    f.manager,
		Decoder:   decoder.New(nil),
		Watchlist: filter.NewWatchlist(nil),
		Bindings:  f.rec,
		Emitter:   f.emitter,
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.RunCycle(context.Background())
	if err != nil || res.Fetched != 0 {
		t.Errorf("expected nothing fetched: %+v %v", res, err)
	}
}

func TestPhaseTransitionsRecorded(t *testing.T) {
	f := newFixture(t, transferTx(t, 100, envelopetest.ToAlias(watched, 5)))
	if _, err := f.scanner.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []Phase{PhaseFetching, PhaseProcessing, PhaseResolving, PhaseEmitting, PhaseCommitting, PhaseIdle}
	got := f.scanner.GetStatus().Transitions
	if len(got) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(got))
	}
	for i, tr := range got {
		if tr.To != want[i] || !tr.IsValid() {
			t.Errorf("transition %d: %s -> %s", i, tr.From, tr.To)
		}
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, transferTx(t, 100, envelopetest.ToAlias(watched, 5)))

	done := make(chan error, 1)
	go func() { done <- f.scanner.Start(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for f.scanner.GetStatus().Cycles == 0 {
		select {
		case <-deadline:
			t.Fatal("scanner did not run a cycle")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := f.scanner.Stop(); err != nil {
		t.Fatal(err)
	}
	_ = f.scanner.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(DefaultPollInterval + time.Second):
		t.Fatal("scanner did not stop")
	}
	if f.scanner.GetStatus().Running {
		t.Error("scanner still reports running")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{Name: "x"}); err == nil {
		t.Error("expected error for missing dependencies")
	}
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseFetching, true},
		{PhaseFetching, PhaseIdle, true},
		{PhaseFetching, PhaseEmitting, false},
		{PhaseEmitting, PhaseIdle, true},
		{PhaseEmitting, PhaseCommitting, true},
		{PhaseCommitting, PhaseFetching, false},
		{PhaseIdle, PhaseCommitting, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
