package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/agent"
	"github.com/BaSui01/aiorch/agent/builtin"
	"github.com/BaSui01/aiorch/cache"
	"github.com/BaSui01/aiorch/config"
	"github.com/BaSui01/aiorch/internal/database"
	"github.com/BaSui01/aiorch/internal/journal"
	"github.com/BaSui01/aiorch/internal/metrics"
	"github.com/BaSui01/aiorch/internal/migration"
	"github.com/BaSui01/aiorch/internal/telemetry"
	"github.com/BaSui01/aiorch/llm"
	"github.com/BaSui01/aiorch/llm/anthropic"
	"github.com/BaSui01/aiorch/llm/openai"
	"github.com/BaSui01/aiorch/orchestrator"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// app 持有一次运行所需的全部组件，serve 与 process 命令共用
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	collector *metrics.Collector
	telemetry *telemetry.Providers
	cache     *cache.Layer
	db        *database.PoolManager
	journal   *journal.GormJournal
	registry  *agent.Registry
	orch      *orchestrator.Orchestrator
}

// newApp 按配置装配组件；任一步失败都会释放已创建的资源
func newApp(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, collector: collector}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.telemetry, err = telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		// 遥测失败不阻止启动
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		a.telemetry, err = nil, nil
	}

	a.cache, err = cache.Open(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	client := newLLMClient(cfg.LLM, collector, logger)
	a.registry = agent.NewRegistry(logger)
	counter := llm.NewTiktokenCounter(cfg.LLM.TokenEncoding, logger)
	if err = builtin.Register(a.registry, client, counter, logger, builtin.WithBudget(cfg.LLM.PromptBudget)); err != nil {
		return nil, err
	}

	var opts []orchestrator.Option
	if collector != nil {
		opts = append(opts, orchestrator.WithMetrics(collector))
	}
	if cfg.Database.Enabled {
		if err = a.openJournal(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithJournal(a.journal))
	}

	a.orch, err = orchestrator.New(cfg.Orchestrator, a.registry, a.cache, logger, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newLLMClient 构建 Anthropic（主）→ OpenAI（备）链，未配置 Key 的供应商被跳过。
// 都未配置时返回 nil，内置 Agent 将以 Permanent 错误失败。
func newLLMClient(cfg config.LLMConfig, collector *metrics.Collector, logger *zap.Logger) llm.Client {
	var primary, fallback llm.Client
	if cfg.Anthropic.Enabled() {
		primary = wrapProvider(anthropic.New(cfg.Anthropic, logger), cfg.Anthropic, collector)
	}
	if cfg.OpenAI.Enabled() {
		fallback = wrapProvider(openai.New(cfg.OpenAI, logger), cfg.OpenAI, collector)
	}

	client := llm.NewFallbackClient(primary, fallback, logger)
	if client == nil {
		logger.Warn("no LLM provider configured, builtin agents will fail until an API key is set")
	} else {
		logger.Info("LLM client ready", zap.String("providers", client.Name()))
	}
	return client
}

func wrapProvider(c llm.Client, cfg llm.ProviderConfig, collector *metrics.Collector) llm.Client {
	return llm.NewRateLimited(metrics.InstrumentLLM(c, collector), cfg.RequestsPerSecond, cfg.Burst)
}

// openJournal 打开数据库并确保结果表存在
func (a *app) openJournal(ctx context.Context) error {
	dbCfg := a.cfg.Database
	pool := database.DefaultPoolConfig()
	if dbCfg.MaxOpenConns > 0 {
		pool.MaxOpenConns = dbCfg.MaxOpenConns
	}
	if dbCfg.MaxIdleConns > 0 {
		pool.MaxIdleConns = min(dbCfg.MaxIdleConns, pool.MaxOpenConns)
	}
	if dbCfg.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	}

	db, err := database.Open(dbCfg.Driver, dbCfg.DSN(), pool, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	if a.collector != nil {
		db.SetStatsRecorder(a.collector)
	}

	var recorder journal.QueryRecorder
	if a.collector != nil {
		recorder = a.collector
	}
	a.journal, err = journal.New(db.DB(), recorder, a.logger)
	if err != nil {
		return err
	}

	if !dbCfg.AutoMigrate {
		return nil
	}
	if dbCfg.Driver == database.DriverSQLite {
		return a.journal.AutoMigrate(ctx)
	}
	return migrateUp(ctx, dbCfg, a.logger)
}

// migrateUp 应用全部待执行的 SQL 迁移
func migrateUp(ctx context.Context, dbCfg config.DatabaseConfig, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(dbCfg)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(ctx); err != nil {
		return err
	}
	version, dirty, err := m.Version(ctx)
	if err != nil {
		return err
	}
	logger.Info("journal schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// Close 按依赖逆序释放：编排器 → 缓存 → 数据库 → 遥测
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.orch != nil {
		errs = append(errs, a.orch.Close(ctx))
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
