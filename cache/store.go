package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by a Store when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("cache store is closed")

// IsCacheMiss reports whether err is a cache miss.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Store is the swappable backing key/value store. Implementations must be safe
// for concurrent use and may evict entries at any time.
type Store interface {
	// Get returns the stored bytes or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// SetWithTTL stores value; ttl <= 0 means no store-level expiry.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
	// Name identifies the backend in stats and logs.
	Name() string
	Close() error
}

// StoreInfo is backend specific sizing information.
type StoreInfo struct {
	Entries     int64 `json:"entries"`
	UsedMemory  int64 `json:"used_memory,omitempty"`
	Connections int64 `json:"connected_clients,omitempty"`
	Capacity    int64 `json:"capacity,omitempty"`
}

// Inspector is implemented by stores that can describe their size.
type Inspector interface {
	Info(ctx context.Context) (StoreInfo, error)
}
