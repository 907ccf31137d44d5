package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verdantx/carbon-exchange/internal/port"
)

// Session is the explicit caller context: who is trading, resolved once at
// the edge and passed down. Nothing reads it from ambient state.
type Session struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager persists sessions through an injected key-value store.
type Manager struct {
	kv  port.KV
	ttl time.Duration
}

func NewManager(kv port.KV, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{kv: kv, ttl: ttl}
}

func key(id string) string { return "session:" + id }

// Open creates and stores a session for an account address.
func (m *Manager) Open(ctx context.Context, account string) (*Session, error) {
	if account == "" {
		return nil, fmt.Errorf("session: account is required")
	}
	s := &Session{
		ID:        uuid.NewString(),
		Account:   account,
		CreatedAt: time.Now().UTC(),
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	if err := m.kv.Set(ctx, key(s.ID), string(b), m.ttl); err != nil {
		return nil, fmt.Errorf("session: store: %w", err)
	}
	return s, nil
}

// Get loads a session by id; (nil, nil) when it does not exist or expired.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	v, err := m.kv.Get(ctx, key(id))
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	if v == "" {
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal([]byte(v), &s); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &s, nil
}

// Close removes a session.
func (m *Manager) Close(ctx context.Context, id string) error {
	return m.kv.Remove(ctx, key(id))
}
