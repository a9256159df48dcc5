// Package session tracks logged-out access tokens.
package session

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCapacity = 10000

// MemoryRevoker keeps revoked token ids in a bounded LRU. Under pressure the oldest
// entries are evicted, so it suits a single instance. Use RedisRevoker when several
// instances share sessions.
type MemoryRevoker struct {
	revoked *lru.Cache[string, time.Time]
	now     func() time.Time
}

func NewMemoryRevoker(capacity int) (*MemoryRevoker, error) {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	c, err := lru.New[string, time.Time](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create revocation cache: %w", err)
	}
	return &MemoryRevoker{revoked: c, now: time.Now}, nil
}

func (m *MemoryRevoker) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if tokenID == "" || !until.After(m.now()) {
		return nil
	}
	m.revoked.Add(tokenID, until)
	return nil
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	until, ok := m.revoked.Get(tokenID)
	if !ok {
		return false, nil
	}
	if m.now().After(until) {
		m.revoked.Remove(tokenID)
		return false, nil
	}
	return true, nil
}
