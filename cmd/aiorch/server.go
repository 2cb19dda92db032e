package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/api/handlers"
	"github.com/BaSui01/aiorch/internal/server"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 把编排器暴露为 HTTP API
type Server struct {
	app    *app
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	// 限流器清理协程的生命周期
	limiterCtx    context.Context
	limiterCancel context.CancelFunc
}

// NewServer 创建服务器，不监听端口
func NewServer(a *app, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		app:           a,
		logger:        logger,
		limiterCtx:    ctx,
		limiterCancel: cancel,
	}
}

// =============================================================================
// 🌐 路由
// =============================================================================

// Handler 构建路由与中间件链
func (s *Server) Handler() http.Handler {
	cfg := s.app.cfg
	orch := s.app.orch

	agentHandler := handlers.NewAgentHandler(orch, orch.Registry().ListTypes, s.logger)
	pipelineHandler := handlers.NewPipelineHandler(orch, s.logger)
	statusHandler := handlers.NewStatusHandler(orch, wsOriginPatterns(cfg.Server.CORSAllowedOrigins), s.logger)
	healthHandler := s.healthHandler()

	mux := http.NewServeMux()

	// 探针与构建信息
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReady)
	mux.HandleFunc("GET /version", healthHandler.HandleVersion(handlers.VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))
	if cfg.Server.MetricsPort == 0 {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Agent 与请求
	mux.HandleFunc("GET /v1/agents", agentHandler.HandleListAgents)
	mux.HandleFunc("POST /v1/agents/{type}/process", agentHandler.HandleProcess)
	mux.HandleFunc("POST /v1/batch", agentHandler.HandleBatch)
	mux.HandleFunc("GET /v1/requests", agentHandler.HandleListRequests)
	mux.HandleFunc("POST /v1/requests/{id}/cancel", agentHandler.HandleCancel)

	// 流水线
	mux.HandleFunc("POST /v1/pipelines/battlecard", pipelineHandler.HandleBattlecard)

	// 状态
	mux.HandleFunc("GET /v1/status", statusHandler.HandleStatus)
	mux.HandleFunc("GET /v1/status/stream", statusHandler.HandleStream)

	// 结果日志（仅在启用数据库时）
	if s.app.journal != nil {
		resultsHandler := handlers.NewResultsHandler(s.app.journal, s.logger)
		mux.HandleFunc("GET /v1/results", resultsHandler.HandleRecent)
		mux.HandleFunc("GET /v1/results/{id}", resultsHandler.HandleByRequest)
	}

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(s.logger),
	}
	if s.app.collector != nil {
		chain = append(chain, MetricsMiddleware(s.app.collector))
	}
	chain = append(chain,
		RequestLogger(s.logger),
		CORS(cfg.Server.CORSAllowedOrigins),
	)
	if auth := Auth(cfg.Auth, s.logger); auth != nil {
		chain = append(chain, auth)
	}
	chain = append(chain,
		capturePrincipal(),
		RateLimiter(s.limiterCtx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, s.logger),
	)
	return Chain(mux, chain...)
}

// healthHandler 注册就绪检查：编排器未关闭、缓存可达、数据库可达
func (s *Server) healthHandler() *handlers.HealthHandler {
	h := handlers.NewHealthHandler(s.logger)
	orch := s.app.orch
	h.RegisterCheck(handlers.NewCheck("orchestrator", func(context.Context) error {
		if orch.Closed() {
			return errors.New("orchestrator closed")
		}
		return nil
	}))
	if layer := orch.Cache(); layer.Enabled() {
		h.RegisterCheck(handlers.NewCheck("cache", layer.Ping))
	}
	if s.app.db != nil {
		h.RegisterCheck(handlers.NewCheck("database", s.app.db.Ping))
	}
	return h
}

// wsOriginPatterns 复用 CORS 来源作为 WebSocket Origin 白名单（按 host 匹配）
func wsOriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		host := o
		if h, ok := strings.CutPrefix(o, "https://"); ok {
			host = h
		} else if h, ok := strings.CutPrefix(o, "http://"); ok {
			host = h
		}
		patterns = append(patterns, host)
	}
	return patterns
}

// =============================================================================
// 🚀 启动与关闭
// =============================================================================

// Start 启动 HTTP 与（可选的）独立 Metrics 服务器
func (s *Server) Start() error {
	cfg := s.app.cfg.Server

	s.httpManager = server.NewManager(s.Handler(), server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.HTTPPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: cfg.ShutdownTimeout,
		MaxConnections:  cfg.MaxConnections,
	}, s.logger)

	var err error
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		err = s.httpManager.StartTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		err = s.httpManager.Start()
	}
	if err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		s.metricsManager = server.NewManager(mux, server.Config{
			Addr:            fmt.Sprintf(":%d", cfg.MetricsPort),
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.ReadTimeout,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}, s.logger)
		if err := s.metricsManager.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	s.logger.Info("aiorch listening",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.Bool("tls", cfg.TLSCertFile != ""),
		zap.String("auth", describeAuth(s.app.cfg.Auth)),
		zap.Strings("agents", s.app.registry.ListTypes()),
	)
	return nil
}

// WaitForShutdown 等待信号后按顺序关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.app.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.Shutdown(ctx)
}

// Shutdown 先停止接收请求，再关闭编排器与其依赖
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("starting graceful shutdown")
	s.limiterCancel()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if err := s.app.Close(ctx); err != nil {
		s.logger.Error("component shutdown error", zap.Error(err))
	}

	s.logger.Info("graceful shutdown completed")
}
