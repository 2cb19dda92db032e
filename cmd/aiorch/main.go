// =============================================================================
// aiorch 主入口
// =============================================================================
// 使用方法:
//
//	aiorch serve                               # 启动服务
//	aiorch serve --config config.yaml          # 指定配置文件
//	aiorch process scorer --input '{"content":"..."}'
//	aiorch agents                              # 列出内置 Agent
//	aiorch migrate up                          # 运行数据库迁移
//	aiorch health --addr http://localhost:8080 # 健康检查
//	aiorch version                             # 显示版本信息
// =============================================================================

// @title aiorch API
// @version 1.0.0
// @description Orchestrates AI agent requests with bounded concurrency, retries, caching and cancellation.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/aiorch/agent/builtin"
	"github.com/BaSui01/aiorch/config"
	"github.com/BaSui01/aiorch/internal/metrics"
	"github.com/BaSui01/aiorch/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// 🌳 命令树
// =============================================================================

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "aiorch",
		Short:         "AI request orchestrator",
		Long:          "aiorch runs AI agents behind a bounded, cancellable, cached and retrying dispatcher.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")

	load := func() (*config.Config, error) { return loadConfig(configPath) }

	root.AddCommand(
		newServeCmd(load),
		newProcessCmd(load),
		newAgentsCmd(),
		newMigrateCmd(load),
		newHealthCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig 默认值 → YAML → AIORCH_* 环境变量，然后校验
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewLoader().
		WithConfigPath(path).
		WithEnvPrefix(config.DefaultEnvPrefix).
		WithValidator(func(c *config.Config) error { return c.Validate() }).
		Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve
// =============================================================================

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := initLogger(cfg.Log)
			defer logger.Sync()

			logger.Info("starting aiorch",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
				zap.String("git_commit", GitCommit),
			)

			collector := metrics.NewCollector("aiorch", logger)
			a, err := newApp(cmd.Context(), cfg, collector, logger)
			if err != nil {
				logger.Error("failed to initialize", zap.Error(err))
				return err
			}

			srv := NewServer(a, logger)
			if err := srv.Start(); err != nil {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				srv.Shutdown(ctx)
				return err
			}
			srv.WaitForShutdown()
			logger.Info("aiorch stopped")
			return nil
		},
	}
}

// =============================================================================
// ⚙️ process：不经 HTTP 直接执行一次请求
// =============================================================================

type processFlags struct {
	input   string
	model   string
	timeout time.Duration
	noCache bool
}

func newProcessCmd(load func() (*config.Config, error)) *cobra.Command {
	var f processFlags
	cmd := &cobra.Command{
		Use:   "process <agent-type>",
		Short: "Run one agent request and print the result as JSON",
		Example: `  aiorch process summarizer --input '{"content":"..."}'
  echo '{"content":"..."}' | aiorch process scorer --input -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			input, err := readInput(f.input, cmd.InOrStdin())
			if err != nil {
				return err
			}

			logger := initLogger(config.LogConfig{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
			defer logger.Sync()

			a, err := newApp(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			req := types.AgentRequest{
				AgentType: args[0],
				Input:     input,
				Options: types.ProcessingOptions{
					ModelPreference: types.ModelPreference(f.model),
					TimeoutOverride: f.timeout.Seconds(),
					CacheBypass:     f.noCache,
				},
			}
			res := a.orch.Process(cmd.Context(), req)
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.OK() {
				return res.Error
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.input, "input", "i", "{}", `input JSON object, or "-" to read stdin`)
	cmd.Flags().StringVar(&f.model, "model", "", "model preference: fast, balanced, quality, auto")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-request timeout (default from config)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "bypass the result cache")
	return cmd
}

func readInput(raw string, stdin io.Reader) (map[string]any, error) {
	data := []byte(raw)
	if raw == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("input must be a JSON object: %w", err)
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// 📋 agents / health / version
// =============================================================================

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List builtin agent types and their required input fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tREQUIRED\tANY OF")
			for _, def := range builtin.Catalog() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", def.Name, listOrDash(def.Required), listOrDash(def.AnyOf))
			}
			return w.Flush()
		},
	}
}

func listOrDash(fields []string) string {
	if len(fields) == 0 {
		return "-"
	}
	return strings.Join(fields, ",")
}

func newHealthCmd() *cobra.Command {
	var (
		addr  string
		ready bool
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/health"
			if ready {
				path = "/ready"
			}
			return probe(cmd.Context(), strings.TrimSuffix(addr, "/")+path, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "server address")
	cmd.Flags().BoolVar(&ready, "ready", false, "check readiness instead of liveness")
	return cmd
}

func probe(ctx context.Context, url string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Fprintln(out, "OK")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "aiorch %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: true,
	}

	opts := []zap.Option{}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
