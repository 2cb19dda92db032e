package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/internal/tlsutil"
)

// =============================================================================
// 💾 Redis 存储
// =============================================================================

// RedisConfig Redis 连接配置
type RedisConfig struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`

	// 密码
	Password string `yaml:"password" json:"password" env:"PASSWORD"`

	// 数据库编号
	DB int `yaml:"db" json:"db" env:"DB"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns" env:"MIN_IDLE_CONNS"`

	// 单次操作超时
	OpTimeout time.Duration `yaml:"op_timeout" json:"op_timeout" env:"OP_TIMEOUT"`

	// 健康检查间隔（0 表示关闭）
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`

	// 启用 TLS（托管 Redis 通常要求）
	TLS bool `yaml:"tls" json:"tls" env:"TLS"`

	// 启动时连接失败是否继续（降级为旁路模式）
	AllowUnavailable bool `yaml:"allow_unavailable" json:"allow_unavailable" env:"ALLOW_UNAVAILABLE"`
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		MaxRetries:          1,
		PoolSize:            10,
		MinIdleConns:        2,
		OpTimeout:           2 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		AllowUnavailable:    true,
	}
}

// RedisStore 基于 Redis 的共享存储；多实例并发写入遵循 last-write-wins
type RedisStore struct {
	client  *redis.Client
	config  RedisConfig
	logger  *zap.Logger
	healthy atomic.Bool

	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRedisStore 创建 Redis 存储并测试连接
func NewRedisStore(config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	}
	if config.TLS {
		opts.TLSConfig = tlsutil.RedisTLSConfig(config.Addr)
	}
	client := redis.NewClient(opts)

	s := &RedisStore{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache_redis")),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if !config.AllowUnavailable {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.logger.Warn("redis unavailable, cache runs in bypass mode until it recovers",
			zap.String("addr", config.Addr), zap.Error(err))
	} else {
		s.healthy.Store(true)
	}

	if config.HealthCheckInterval > 0 {
		go s.healthCheckLoop()
	} else {
		close(s.doneCh)
	}

	s.logger.Info("redis cache store initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)
	return s, nil
}

// Name implements Store.
func (s *RedisStore) Name() string { return "redis" }

// Healthy reports the outcome of the last health probe.
func (s *RedisStore) Healthy() bool { return s.healthy.Load() }

func (s *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.OpTimeout > 0 {
		return context.WithTimeout(ctx, s.config.OpTimeout)
	}
	return ctx, func() {}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// SetWithTTL implements Store.
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// DeletePrefix implements Store using SCAN so large keyspaces do not block the server.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	removed := 0
	iter := s.client.Scan(ctx, 0, escapeGlob(prefix)+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis delete: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, flush()
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.client.Ping(ctx).Err()
}

// Info implements Inspector.
func (s *RedisStore) Info(ctx context.Context) (StoreInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return StoreInfo{}, ErrStoreClosed
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	size, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return StoreInfo{}, fmt.Errorf("redis dbsize: %w", err)
	}
	info := StoreInfo{Entries: size}

	// INFO is optional; some managed deployments disable it.
	if raw, err := s.client.Info(ctx, "memory", "clients").Result(); err == nil {
		fields := parseRedisInfo(raw)
		info.UsedMemory, _ = strconv.ParseInt(fields["used_memory"], 10, 64)
		info.Connections, _ = strconv.ParseInt(fields["connected_clients"], 10, 64)
	}
	return info, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
	s.logger.Info("closing redis cache store")
	return s.client.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (s *RedisStore) healthCheckLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := s.client.Ping(ctx).Err()
			cancel()

			was := s.healthy.Swap(err == nil)
			switch {
			case err != nil && was:
				s.logger.Error("redis health check failed", zap.Error(err))
			case err == nil && !was:
				s.logger.Info("redis connection recovered")
			}
		}
	}
}

// parseRedisInfo parses "key:value" lines of an INFO reply.
func parseRedisInfo(raw string) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			out[k] = v
		}
	}
	return out
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
