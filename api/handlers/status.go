package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/types"
)

const (
	defaultStreamInterval = 2 * time.Second
	minStreamInterval     = 500 * time.Millisecond
	streamWriteTimeout    = 5 * time.Second
)

// =============================================================================
// 📡 状态处理器
// =============================================================================

// StatusHandler 提供编排器状态快照与 WebSocket 推送
type StatusHandler struct {
	orch           Orchestrator
	originPatterns []string
	logger         *zap.Logger
}

// NewStatusHandler 创建状态处理器；originPatterns 为空时只接受同源 WebSocket
func NewStatusHandler(orch Orchestrator, originPatterns []string, logger *zap.Logger) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHandler{
		orch:           orch,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("handler", "status")),
	}
}

// HandleStatus 返回负载、已注册 Agent、缓存统计与各 Agent 健康状态
// @Summary Orchestrator status
// @Tags status
// @Produce json
// @Success 200 {object} Response{data=orchestrator.Status}
// @Router /v1/status [get]
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.orch.Status(r.Context()))
}

// HandleStream 升级为 WebSocket，按 interval（秒，默认 2）推送状态快照，直到客户端断开
// @Summary Orchestrator status stream
// @Tags status
// @Param interval query number false "Push interval in seconds"
// @Router /v1/status/stream [get]
func (h *StatusHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	interval, err := parseInterval(r.URL.Query().Get("interval"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		// Accept 已写出响应
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 客户端只接收，CloseRead 在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("status stream opened", zap.Duration("interval", interval))
	if err := h.stream(ctx, conn, interval); err != nil {
		h.logger.Debug("status stream ended", zap.Error(err))
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *StatusHandler) stream(ctx context.Context, conn *websocket.Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := h.push(ctx, conn); err != nil {
			return err
		}
		if h.orch.Closed() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *StatusHandler) push(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, h.orch.Status(ctx))
}

func parseInterval(raw string) (time.Duration, error) {
	if raw == "" {
		return defaultStreamInterval, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return 0, types.NewValidationError("interval must be a positive number of seconds")
	}
	d := time.Duration(secs * float64(time.Second))
	if d < minStreamInterval {
		d = minStreamInterval
	}
	return d, nil
}
