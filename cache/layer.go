package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Status values reported in Stats.
const (
	StatusConnected = "connected"
	StatusDegraded  = "degraded"
	StatusDisabled  = "disabled"
)

// entry is the envelope persisted in the backing store.
type entry struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cached_at"`
	TTL      float64         `json:"ttl"`
}

func (e entry) expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.CachedAt.Add(time.Duration(e.TTL * float64(time.Second))))
}

// Stats summarises cache effectiveness.
type Stats struct {
	Backend     string     `json:"backend"`
	Status      string     `json:"status"`
	Hits        uint64     `json:"hits"`
	Misses      uint64     `json:"misses"`
	HitRate     float64    `json:"hit_rate"`
	Sets        uint64     `json:"sets"`
	SetFailures uint64     `json:"set_failures"`
	Errors      uint64     `json:"errors"`
	Store       *StoreInfo `json:"store,omitempty"`
}

// Layer is the namespaced, TTL-checked view of a Store. Every operation is
// best-effort: store failures are logged and reported as misses or false.
type Layer struct {
	store      Store
	keyPrefix  string
	defaultTTL time.Duration
	opTimeout  time.Duration
	logger     *zap.Logger
	now        func() time.Time

	hits        atomic.Uint64
	misses      atomic.Uint64
	sets        atomic.Uint64
	setFailures atomic.Uint64
	errors      atomic.Uint64
}

// NewLayer wraps store. A nil store yields a disabled layer that always misses.
func NewLayer(store Store, cfg Config, logger *zap.Logger) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Layer{
		store:      store,
		keyPrefix:  fmt.Sprintf("%s:%s:", cfg.KeyPrefix, cfg.Environment),
		defaultTTL: cfg.DefaultTTL,
		opTimeout:  cfg.OpTimeout,
		logger:     logger.With(zap.String("component", "cache")),
		now:        time.Now,
	}
}

// Enabled reports whether a backing store is attached.
func (l *Layer) Enabled() bool {
	return l != nil && l.store != nil
}

// Backend names the backing store, or "none" when disabled.
func (l *Layer) Backend() string {
	if !l.Enabled() {
		return "none"
	}
	return l.store.Name()
}

// DefaultTTL returns the TTL used when callers pass zero.
func (l *Layer) DefaultTTL() time.Duration {
	return l.defaultTTL
}

func (l *Layer) namespacePrefix(namespace string) string {
	return l.keyPrefix + namespace + ":"
}

func (l *Layer) storeKey(namespace, key string) string {
	sum := sha256.Sum256([]byte(key))
	return l.namespacePrefix(namespace) + hex.EncodeToString(sum[:16])
}

func (l *Layer) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	// Cache I/O must not be aborted by the caller's cancellation once a result exists.
	ctx = context.WithoutCancel(ctx)
	if l.opTimeout > 0 {
		return context.WithTimeout(ctx, l.opTimeout)
	}
	return context.WithCancel(ctx)
}

// Get returns the cached payload, or false when absent, expired or unreadable.
func (l *Layer) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	if !l.Enabled() {
		return nil, false
	}
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	sk := l.storeKey(namespace, key)
	raw, err := l.store.Get(ctx, sk)
	if err != nil {
		if !IsCacheMiss(err) {
			l.errors.Add(1)
			l.logger.Warn("cache get failed", zap.String("namespace", namespace), zap.Error(err))
		}
		l.misses.Add(1)
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		l.errors.Add(1)
		l.misses.Add(1)
		l.logger.Warn("discarding corrupt cache entry", zap.String("namespace", namespace), zap.Error(err))
		_ = l.store.Delete(ctx, sk)
		return nil, false
	}
	if e.expired(l.now()) {
		l.misses.Add(1)
		_ = l.store.Delete(ctx, sk)
		return nil, false
	}

	l.hits.Add(1)
	return []byte(e.Data), true
}

// Set stores value (which must be valid JSON) for ttl, or the default TTL when ttl <= 0.
// It returns false when nothing was stored.
func (l *Layer) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) bool {
	if !l.Enabled() {
		return false
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	if !json.Valid(value) {
		l.setFailures.Add(1)
		l.logger.Warn("refusing to cache invalid JSON", zap.String("namespace", namespace))
		return false
	}

	data, err := json.Marshal(entry{
		Data:     json.RawMessage(value),
		CachedAt: l.now().UTC(),
		TTL:      ttl.Seconds(),
	})
	if err != nil {
		l.setFailures.Add(1)
		return false
	}

	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if err := l.store.SetWithTTL(ctx, l.storeKey(namespace, key), data, ttl); err != nil {
		l.setFailures.Add(1)
		l.logger.Warn("cache set failed", zap.String("namespace", namespace), zap.Error(err))
		return false
	}
	l.sets.Add(1)
	return true
}

// Delete removes one entry.
func (l *Layer) Delete(ctx context.Context, namespace, key string) bool {
	if !l.Enabled() {
		return false
	}
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if err := l.store.Delete(ctx, l.storeKey(namespace, key)); err != nil {
		l.logger.Warn("cache delete failed", zap.String("namespace", namespace), zap.Error(err))
		return false
	}
	return true
}

// ClearNamespace removes every entry of namespace and returns how many were removed.
func (l *Layer) ClearNamespace(ctx context.Context, namespace string) (int, error) {
	if !l.Enabled() {
		return 0, nil
	}
	n, err := l.store.DeletePrefix(ctx, l.namespacePrefix(namespace))
	if err != nil {
		return n, fmt.Errorf("clear namespace %s: %w", namespace, err)
	}
	l.logger.Info("cache namespace cleared", zap.String("namespace", namespace), zap.Int("removed", n))
	return n, nil
}

// Ping reports whether the backing store is reachable.
func (l *Layer) Ping(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	return l.store.Ping(ctx)
}

// Stats returns counters plus backend information.
func (l *Layer) Stats(ctx context.Context) Stats {
	if !l.Enabled() {
		return Stats{Backend: "none", Status: StatusDisabled}
	}

	hits, misses := l.hits.Load(), l.misses.Load()
	s := Stats{
		Backend:     l.store.Name(),
		Status:      StatusConnected,
		Hits:        hits,
		Misses:      misses,
		Sets:        l.sets.Load(),
		SetFailures: l.setFailures.Load(),
		Errors:      l.errors.Load(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}

	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if err := l.store.Ping(ctx); err != nil {
		s.Status = StatusDegraded
		return s
	}
	if in, ok := l.store.(Inspector); ok {
		if info, err := in.Info(ctx); err == nil {
			s.Store = &info
		}
	}
	return s
}

// Close releases the backing store.
func (l *Layer) Close() error {
	if !l.Enabled() {
		return nil
	}
	return l.store.Close()
}
