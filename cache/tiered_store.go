package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TieredStore layers a local store (L1) over a shared one (L2).
// Reads fall through to L2 and backfill L1; writes go to both.
type TieredStore struct {
	local    Store
	remote   Store
	localTTL time.Duration
	logger   *zap.Logger
}

// NewTieredStore creates a two level store. localTTL bounds how long an L1 copy may
// outlive a change made by another instance.
func NewTieredStore(local, remote Store, localTTL time.Duration, logger *zap.Logger) *TieredStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TieredStore{
		local:    local,
		remote:   remote,
		localTTL: localTTL,
		logger:   logger.With(zap.String("component", "cache_tiered")),
	}
}

// Name implements Store.
func (t *TieredStore) Name() string {
	return fmt.Sprintf("tiered(%s+%s)", t.local.Name(), t.remote.Name())
}

// Get implements Store.
func (t *TieredStore) Get(ctx context.Context, key string) ([]byte, error) {
	if val, err := t.local.Get(ctx, key); err == nil {
		return val, nil
	}

	val, err := t.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := t.local.SetWithTTL(ctx, key, val, t.localTTL); err != nil {
		t.logger.Debug("local backfill failed", zap.Error(err))
	}
	return val, nil
}

// SetWithTTL implements Store. A failing L2 is reported even though L1 kept the value.
func (t *TieredStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	localTTL := t.localTTL
	if ttl > 0 && (localTTL <= 0 || ttl < localTTL) {
		localTTL = ttl
	}
	localErr := t.local.SetWithTTL(ctx, key, value, localTTL)
	remoteErr := t.remote.SetWithTTL(ctx, key, value, ttl)
	if remoteErr != nil {
		return remoteErr
	}
	return localErr
}

// Delete implements Store.
func (t *TieredStore) Delete(ctx context.Context, keys ...string) error {
	return errors.Join(t.local.Delete(ctx, keys...), t.remote.Delete(ctx, keys...))
}

// DeletePrefix implements Store. The count reflects the shared tier.
func (t *TieredStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	_, localErr := t.local.DeletePrefix(ctx, prefix)
	n, remoteErr := t.remote.DeletePrefix(ctx, prefix)
	return n, errors.Join(localErr, remoteErr)
}

// Ping implements Store. Only the shared tier decides reachability.
func (t *TieredStore) Ping(ctx context.Context) error {
	return t.remote.Ping(ctx)
}

// Info implements Inspector by reporting the shared tier.
func (t *TieredStore) Info(ctx context.Context) (StoreInfo, error) {
	if in, ok := t.remote.(Inspector); ok {
		return in.Info(ctx)
	}
	return StoreInfo{}, nil
}

// Close implements Store.
func (t *TieredStore) Close() error {
	return errors.Join(t.local.Close(), t.remote.Close())
}
