package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/orchestrator"
)

// PipelineHandler 处理多步骤流水线请求
type PipelineHandler struct {
	orch   Orchestrator
	logger *zap.Logger
}

// NewPipelineHandler 创建流水线处理器
func NewPipelineHandler(orch Orchestrator, logger *zap.Logger) *PipelineHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelineHandler{orch: orch, logger: logger.With(zap.String("handler", "pipeline"))}
}

// HandleBattlecard 运行竞品战报流水线：aggregator → battlecard_generation
// @Summary Generate a competitor battlecard
// @Tags pipeline
// @Accept json
// @Produce json
// @Success 200 {object} Response{data=orchestrator.PipelineResult}
// @Failure 400 {object} Response
// @Router /v1/pipelines/battlecard [post]
func (h *PipelineHandler) HandleBattlecard(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req orchestrator.BattlecardRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	res := h.orch.GenerateBattlecard(r.Context(), req)
	if res.OK() {
		WriteSuccess(w, res)
		return
	}

	h.logger.Warn("battlecard pipeline failed",
		zap.String("failed_step", res.FailedStep),
		zap.String("kind", string(res.Error.Kind)),
		zap.Strings("skipped", res.Skipped),
	)
	WriteResult(w, res.Error, res)
}
