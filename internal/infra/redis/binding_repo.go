package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/infra/storage"
)

// BindingRepo implements storage.BindingRepository on Redis. SETNX on the
// per-address key decides the first writer.
type BindingRepo struct {
	c *Client
}

// NewBindingRepo creates a new Redis-backed binding repository.
func NewBindingRepo(client *Client) *BindingRepo {
	return &BindingRepo{c: client}
}

// PutIfAbsent stores b unless the address is already bound.
func (r *BindingRepo) PutIfAbsent(ctx context.Context, b *domain.IdentityBinding) (*domain.IdentityBinding, bool, error) {
	cp := *b
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal binding: %w", err)
	}

	ok, err := r.c.rdb.SetNX(ctx, r.c.bindingKey(b.Address), data, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		existing, err := r.Get(ctx, b.Address)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	if err := r.c.rdb.SAdd(ctx, r.c.bindingIndexKey(), b.Address.String()).Err(); err != nil {
		return nil, false, fmt.Errorf("failed to index binding: %w", err)
	}
	return &cp, true, nil
}

// Get retrieves the binding for an address.
func (r *BindingRepo) Get(ctx context.Context, addr domain.Address) (*domain.IdentityBinding, error) {
	data, err := r.c.rdb.Get(ctx, r.c.bindingKey(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrBindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}
	return decodeBinding(data)
}

// GetAll retrieves all bindings, oldest first.
func (r *BindingRepo) GetAll(ctx context.Context) ([]*domain.IdentityBinding, error) {
	members, err := r.c.rdb.SMembers(ctx, r.c.bindingIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		addr, err := domain.NormalizeAddress(m)
		if err != nil {
			continue
		}
		keys = append(keys, r.c.bindingKey(addr))
	}

	values, err := r.c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget failed: %w", err)
	}

	bindings := make([]*domain.IdentityBinding, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		b, err := decodeBinding([]byte(s))
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].CreatedAt.Before(bindings[j].CreatedAt)
	})
	return bindings, nil
}

func decodeBinding(data []byte) (*domain.IdentityBinding, error) {
	var b domain.IdentityBinding
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal binding: %w", err)
	}
	return &b, nil
}
