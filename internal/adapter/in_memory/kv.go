package in_memory

import (
	"context"
	"sync"
	"time"

	"github.com/verdantx/carbon-exchange/internal/port"
)

type kvEntry struct {
	value     string
	expiresAt time.Time
}

// KV is an in-process port.KV with TTL support.
type KV struct {
	mu      sync.Mutex
	entries map[string]kvEntry
}

var _ port.KV = (*KV)(nil)

func NewKV() *KV {
	return &KV{entries: make(map[string]kvEntry)}
}

func (k *KV) Get(ctx context.Context, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		return "", nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(k.entries, key)
		return "", nil
	}
	return e.value, nil
}

func (k *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := kvEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	k.entries[key] = e
	return nil
}

func (k *KV) Remove(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, key)
	return nil
}
