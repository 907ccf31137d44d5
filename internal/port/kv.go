package port

import (
	"context"
	"time"
)

// KV is the abstract key-value persistence injected into the session layer.
// Nothing reads it ambiently; callers pass it explicitly.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}
