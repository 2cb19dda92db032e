package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/orchestrator"
	"github.com/BaSui01/aiorch/types"
)

// maxBatchSize 单次批量请求的上限
const maxBatchSize = 100

// =============================================================================
// 🤖 Agent 处理器
// =============================================================================

// Orchestrator 是处理器依赖的编排器能力
type Orchestrator interface {
	Process(ctx context.Context, req types.AgentRequest) types.AgentResult
	ProcessBatch(ctx context.Context, reqs []types.AgentRequest) []types.AgentResult
	GenerateBattlecard(ctx context.Context, req orchestrator.BattlecardRequest) orchestrator.PipelineResult
	Cancel(id string) bool
	ActiveRequests() []orchestrator.RequestInfo
	Status(ctx context.Context) orchestrator.Status
	Health(agentType string) orchestrator.AgentHealth
	Closed() bool
}

var _ Orchestrator = (*orchestrator.Orchestrator)(nil)

// AgentHandler 处理单个 Agent 请求、批量请求与取消
type AgentHandler struct {
	orch      Orchestrator
	listTypes func() []string
	logger    *zap.Logger
}

// AgentInfo Agent 列表项
type AgentInfo struct {
	Type   string                   `json:"type"`
	Health orchestrator.AgentHealth `json:"health"`
}

// ProcessRequest POST /v1/agents/{type}/process 请求体
type ProcessRequest struct {
	Input   map[string]any          `json:"input"`
	Options types.ProcessingOptions `json:"options"`
}

// BatchRequest POST /v1/batch 请求体
type BatchRequest struct {
	Requests []types.AgentRequest `json:"requests"`
}

// BatchResponse 批量结果，顺序与请求一致
type BatchResponse struct {
	Results   []types.AgentResult `json:"results"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// CancelResponse 取消结果
type CancelResponse struct {
	RequestID string `json:"request_id"`
	Cancelled bool   `json:"cancelled"`
}

// NewAgentHandler 创建 Agent 处理器；listTypes 返回已注册的 Agent 类型
func NewAgentHandler(orch Orchestrator, listTypes func() []string, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		orch:      orch,
		listTypes: listTypes,
		logger:    logger.With(zap.String("handler", "agent")),
	}
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleListAgents 列出已注册 Agent 及其健康状态
// @Summary List agents
// @Tags agent
// @Produce json
// @Success 200 {object} Response{data=[]AgentInfo}
// @Router /v1/agents [get]
func (h *AgentHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	names := h.listTypes()
	out := make([]AgentInfo, 0, len(names))
	for _, name := range names {
		out = append(out, AgentInfo{Type: name, Health: h.orch.Health(name)})
	}
	WriteSuccess(w, out)
}

// HandleProcess 执行一次 Agent 请求
// @Summary Process a request with one agent
// @Tags agent
// @Accept json
// @Produce json
// @Param type path string true "Agent type"
// @Success 200 {object} Response{data=types.AgentResult}
// @Failure 400 {object} Response
// @Failure 504 {object} Response
// @Router /v1/agents/{type}/process [post]
func (h *AgentHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var body ProcessRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	agentType := r.PathValue("type")
	if agentType == "" {
		WriteError(w, types.NewValidationError("agent type is required"), h.logger)
		return
	}
	if body.Input == nil {
		body.Input = map[string]any{}
	}

	res := h.orch.Process(r.Context(), types.AgentRequest{
		AgentType: agentType,
		Input:     body.Input,
		Options:   body.Options,
	})
	h.writeResult(w, res)
}

// HandleBatch 并发执行多个请求，结果顺序与请求一致
// @Summary Process a batch of requests
// @Tags agent
// @Accept json
// @Produce json
// @Success 200 {object} Response{data=BatchResponse}
// @Router /v1/batch [post]
func (h *AgentHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var body BatchRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}
	if len(body.Requests) == 0 {
		WriteError(w, types.NewValidationError("requests must not be empty"), h.logger)
		return
	}
	if len(body.Requests) > maxBatchSize {
		WriteError(w, types.NewValidationError("too many requests in batch"), h.logger)
		return
	}

	results := h.orch.ProcessBatch(r.Context(), body.Requests)
	resp := BatchResponse{Results: results}
	for _, res := range results {
		if res.OK() {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	WriteSuccess(w, resp)
}

// HandleCancel 取消进行中的请求
// @Summary Cancel an in-flight request
// @Tags agent
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} Response{data=CancelResponse}
// @Router /v1/requests/{id}/cancel [post]
func (h *AgentHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewValidationError("request id is required"), h.logger)
		return
	}
	WriteSuccess(w, CancelResponse{RequestID: id, Cancelled: h.orch.Cancel(id)})
}

// HandleListRequests 列出进行中的请求
// @Summary List in-flight requests
// @Tags agent
// @Produce json
// @Success 200 {object} Response{data=[]orchestrator.RequestInfo}
// @Router /v1/requests [get]
func (h *AgentHandler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.orch.ActiveRequests())
}

func (h *AgentHandler) writeResult(w http.ResponseWriter, res types.AgentResult) {
	if res.OK() {
		WriteSuccess(w, res)
		return
	}
	if res.Error.Kind == types.KindInternal {
		h.logger.Error("agent request failed",
			zap.String("agent_type", res.AgentType),
			zap.String("request_id", res.RequestID),
			zap.Error(res.Error.Cause),
		)
	}
	WriteResult(w, res.Error, res)
}
