package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/infra/storage/memory"
)

var (
	addrX = domain.MustAddress("8f31e9fa14266c5da7f63bfc96811e08b7c09183")
	addrY = domain.MustAddress("0x1111111111111111111111111111111111111111")
	id42  = domain.EntityID{Num: 4242}
	id99  = domain.EntityID{Num: 9999}
)

type stubResolver struct {
	id    domain.EntityID
	ok    bool
	err   error
	delay time.Duration
	calls int
}

func (s *stubResolver) ResolveAlias(ctx context.Context, addr domain.Address) (domain.EntityID, bool, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return domain.EntityID{}, false, ctx.Err()
		}
	}
	return s.id, s.ok, s.err
}

func TestBindStability(t *testing.T) {
	r := New(nil, nil)
	ctx := context.Background()

	got, created, err := r.Bind(ctx, addrX, id42, domain.BindingSourceManual)
	if err != nil || !created || got != id42 {
		t.Fatalf("first bind: got %v created=%v err=%v", got, created, err)
	}

	got, created, err = r.Bind(ctx, addrX, id99, domain.BindingSourceManual)
	if err != nil {
		t.Fatalf("second bind: %v", err)
	}
	if created {
		t.Error("second bind must not create a binding")
	}
	if got != id42 {
		t.Errorf("second bind returned %v, want %v", got, id42)
	}

	if id, ok := r.Lookup(addrX); !ok || id != id42 {
		t.Errorf("Lookup = %v %v, want %v", id, ok, id42)
	}
	if a, ok := r.ReverseLookup(id42); !ok || a != addrX {
		t.Errorf("ReverseLookup = %v %v", a, ok)
	}
	if _, ok := r.ReverseLookup(id99); ok {
		t.Error("losing entity must not be reverse-mapped")
	}
}

func TestBindRejectsEntityOwnedByAnotherAddress(t *testing.T) {
	r := New(nil, nil)
	ctx := context.Background()

	if _, _, err := r.Bind(ctx, addrX, id42, domain.BindingSourceManual); err != nil {
		t.Fatal(err)
	}
	_, _, err := r.Bind(ctx, addrY, id42, domain.BindingSourceManual)
	if !errors.Is(err, ErrEntityBound) {
		t.Errorf("expected ErrEntityBound, got %v", err)
	}
	if _, ok := r.Lookup(addrY); ok {
		t.Error("rejected bind must not record a binding")
	}
}

func TestBindSharedStoreFirstWriterWins(t *testing.T) {
	store := memory.NewBindingRepo(memory.NewMemoryStorage())
	a := New(store, nil)
	b := New(store, nil)
	ctx := context.Background()

	if _, created, err := a.Bind(ctx, addrX, id42, domain.BindingSourceHeuristic); err != nil || !created {
		t.Fatalf("first writer: created=%v err=%v", created, err)
	}

	// b has never seen the binding locally, the store decides.
	got, created, err := b.Bind(ctx, addrX, id99, domain.BindingSourceHeuristic)
	if err != nil {
		t.Fatal(err)
	}
	if created || got != id42 {
		t.Errorf("second writer got %v created=%v, want %v", got, created, id42)
	}
	if id, _ := b.Lookup(addrX); id != id42 {
		t.Errorf("second reconciler must adopt the winner, got %v", id)
	}
}

func TestBindConcurrent(t *testing.T) {
	store := memory.NewBindingRepo(memory.NewMemoryStorage())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]domain.EntityID, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := New(store, nil)
			id, _, err := r.Bind(ctx, addrX, domain.EntityID{Num: int64(5000 + i)}, domain.BindingSourceHeuristic)
			if err != nil {
				t.Error(err)
			}
			results[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range results[1:] {
		if id != results[0] {
			t.Fatalf("writers disagree: %v", results)
		}
	}
}

func TestLoad(t *testing.T) {
	mem := memory.NewMemoryStorage()
	store := memory.NewBindingRepo(mem)
	ctx := context.Background()
	_, _, _ = store.PutIfAbsent(ctx, &domain.IdentityBinding{Address: addrX, Entity: id42})

	r := New(store, nil)
	if err := r.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if id, ok := r.Lookup(addrX); !ok || id != id42 {
		t.Errorf("Lookup after Load = %v %v", id, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestHeuristic(t *testing.T) {
	fee := domain.EntityID{Num: 98}
	node := domain.EntityID{Num: 3}
	payer := domain.EntityID{Num: 1500}
	newAcct := domain.EntityID{Num: 2001}
	other := domain.EntityID{Num: 2002}

	tests := []struct {
		name       string
		settlement []domain.AccountAmount
		exclude    []domain.EntityID
		want       domain.EntityID
		wantErr    bool
	}{
		{
			name: "single candidate",
			settlement: []domain.AccountAmount{
				{Account: payer, Amount: -1_000_500},
				{Account: newAcct, Amount: 1_000_000},
				{Account: fee, Amount: 400},
				{Account: node, Amount: 100},
			},
			want: newAcct,
		},
		{
			name: "system account with equal amount is ignored",
			settlement: []domain.AccountAmount{
				{Account: newAcct, Amount: 1_000_000},
				{Account: fee, Amount: 1_000_000},
			},
			want: newAcct,
		},
		{
			name: "explicit exclusion",
			settlement: []domain.AccountAmount{
				{Account: newAcct, Amount: 1_000_000},
				{Account: other, Amount: 1_000_000},
			},
			exclude: []domain.EntityID{other},
			want:    newAcct,
		},
		{
			name: "two equal credits are ambiguous",
			settlement: []domain.AccountAmount{
				{Account: newAcct, Amount: 1_000_000},
				{Account: other, Amount: 1_000_000},
			},
			wantErr: true,
		},
		{
			name: "no matching credit",
			settlement: []domain.AccountAmount{
				{Account: newAcct, Amount: 999_999},
			},
			wantErr: true,
		},
		{
			name:       "empty settlement",
			settlement: nil,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewResolver(New(nil, nil), nil, Config{Exclude: tt.exclude}, nil)
			got, err := res.Heuristic(addrX, 1_000_000, tt.settlement)
			if tt.wantErr {
				if !errors.Is(err, ErrAmbiguousReconciliation) {
					t.Fatalf("expected ErrAmbiguousReconciliation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHeuristicSkipsEntitiesBoundElsewhere(t *testing.T) {
	rec := New(nil, nil)
	ctx := context.Background()
	taken := domain.EntityID{Num: 3001}
	fresh := domain.EntityID{Num: 3002}
	if _, _, err := rec.Bind(ctx, addrY, taken, domain.BindingSourceManual); err != nil {
		t.Fatal(err)
	}

	res := NewResolver(rec, nil, Config{}, nil)
	got, err := res.Heuristic(addrX, 10, []domain.AccountAmount{
		{Account: taken, Amount: 10},
		{Account: fresh, Amount: 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != fresh {
		t.Errorf("got %v, want %v", got, fresh)
	}
}

func unresolvedEvent(amount int64) *domain.MatchEvent {
	return &domain.MatchEvent{
		Address:            addrX,
		Amount:             amount,
		TxID:               "0.0.1500-1700000000-000000000",
		SenderUsedRawAlias: true,
		Provenance:         domain.ProvenanceEnvelopeAlias,
		Resolution:         domain.ResolutionUnresolved,
	}
}

func TestResolve(t *testing.T) {
	newAcct := domain.EntityID{Num: 2001}
	single := []domain.AccountAmount{{Account: newAcct, Amount: 1_000_000}}
	ambiguous := []domain.AccountAmount{
		{Account: domain.EntityID{Num: 2001}, Amount: 1_000_000},
		{Account: domain.EntityID{Num: 2002}, Amount: 1_000_000},
	}

	tests := []struct {
		name       string
		settlement []domain.AccountAmount
		lookup     *stubResolver
		timeout    time.Duration
		wantEntity *domain.EntityID
		want       domain.Resolution
	}{
		{
			name:       "heuristic",
			settlement: single,
			lookup:     &stubResolver{id: id99, ok: true},
			wantEntity: &newAcct,
			want:       domain.ResolutionHeuristic,
		},
		{
			name:       "ambiguous falls back to lookup",
			settlement: ambiguous,
			lookup:     &stubResolver{id: id42, ok: true},
			wantEntity: &id42,
			want:       domain.ResolutionLookup,
		},
		{
			name:       "ambiguous without lookup",
			settlement: ambiguous,
			want:       domain.ResolutionUnresolved,
		},
		{
			name:       "lookup finds nothing",
			settlement: ambiguous,
			lookup:     &stubResolver{},
			want:       domain.ResolutionUnresolved,
		},
		{
			name:       "lookup error",
			settlement: ambiguous,
			lookup:     &stubResolver{err: errors.New("503")},
			want:       domain.ResolutionUnresolved,
		},
		{
			name:       "lookup timeout",
			settlement: ambiguous,
			lookup:     &stubResolver{id: id42, ok: true, delay: time.Second},
			timeout:    10 * time.Millisecond,
			want:       domain.ResolutionUnresolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := New(nil, nil)
			var lookup EntityResolver
			if tt.lookup != nil {
				lookup = tt.lookup
			}
			res := NewResolver(rec, lookup, Config{LookupTimeout: tt.timeout}, nil)

			ev := unresolvedEvent(1_000_000)
			res.Resolve(context.Background(), ev, tt.settlement)

			if ev.Resolution != tt.want {
				t.Errorf("resolution = %s, want %s", ev.Resolution, tt.want)
			}
			if tt.wantEntity == nil {
				if ev.Entity != nil {
					t.Errorf("expected no entity, got %v", *ev.Entity)
				}
				return
			}
			if ev.Entity == nil || *ev.Entity != *tt.wantEntity {
				t.Fatalf("entity = %v, want %v", ev.Entity, *tt.wantEntity)
			}
			if id, ok := rec.Lookup(addrX); !ok || id != *tt.wantEntity {
				t.Errorf("binding not recorded: %v %v", id, ok)
			}
		})
	}
}

func TestResolveUsesExistingBinding(t *testing.T) {
	rec := New(nil, nil)
	ctx := context.Background()
	_, _, _ = rec.Bind(ctx, addrX, id42, domain.BindingSourceManual)

	lookup := &stubResolver{id: id99, ok: true}
	res := NewResolver(rec, lookup, Config{}, nil)

	ev := unresolvedEvent(5)
	res.Resolve(ctx, ev, nil)
	if ev.Resolution != domain.ResolutionBound || ev.Entity == nil || *ev.Entity != id42 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if lookup.calls != 0 {
		t.Error("lookup must not be called for bound addresses")
	}
}

func TestResolveIgnoresEntityEvents(t *testing.T) {
	res := NewResolver(New(nil, nil), nil, Config{}, nil)
	ev := &domain.MatchEvent{
		Address:    addrX,
		Entity:     &id42,
		Resolution: domain.ResolutionNotApplicable,
	}
	res.Resolve(context.Background(), ev, nil)
	if ev.Resolution != domain.ResolutionNotApplicable {
		t.Errorf("resolution changed to %s", ev.Resolution)
	}
}
