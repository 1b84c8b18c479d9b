package filter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/infra/storage/memory"
)

type failingRepo struct{}

func (failingRepo) Save(ctx context.Context, e *domain.WatchEntry) error { return nil }

func (failingRepo) GetAll(ctx context.Context) ([]*domain.WatchEntry, error) {
	return nil, errors.New("db down")
}

func TestRefresher_MergesStaticAndStored(t *testing.T) {
	ctx := context.Background()
	a := domain.MustAddress("1111111111111111111111111111111111111111")
	b := domain.MustAddress("2222222222222222222222222222222222222222")

	repo := memory.NewWatchlistRepo(memory.NewMemoryStorage())
	list := NewWatchlist(nil)
	r := NewRefresher(list, []domain.WatchEntry{{Address: a, Label: "static"}}, repo, time.Hour, nil)

	if err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if !list.Contains(a) || list.Contains(b) {
		t.Fatal("expected only the static entry")
	}

	if err := repo.Save(ctx, &domain.WatchEntry{Address: b, Label: "db"}); err != nil {
		t.Fatal(err)
	}

	// Within the interval nothing changes.
	if err := r.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if list.Contains(b) {
		t.Error("refresh ran before the interval elapsed")
	}

	if err := r.ForceRefresh(ctx); err != nil {
		t.Fatal(err)
	}
	if !list.Contains(b) || list.Label(b) != "db" || list.Size() != 2 {
		t.Errorf("stored entry not loaded, size=%d", list.Size())
	}
}

func TestRefresher_KeepsListOnError(t *testing.T) {
	a := domain.MustAddress("1111111111111111111111111111111111111111")
	list := NewWatchlist([]domain.WatchEntry{{Address: a}})
	r := NewRefresher(list, nil, failingRepo{}, 0, nil)

	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !list.Contains(a) {
		t.Error("list was cleared on refresh failure")
	}
}
