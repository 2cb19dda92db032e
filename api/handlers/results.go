package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/internal/journal"
	"github.com/BaSui01/aiorch/types"
)

// ResultStore 是结果日志的只读视图
type ResultStore interface {
	Recent(ctx context.Context, f journal.Filter) ([]journal.Entry, error)
	ByRequest(ctx context.Context, requestID string) ([]journal.Entry, error)
}

// ResultsHandler 查询结果日志
type ResultsHandler struct {
	store  ResultStore
	logger *zap.Logger
}

// NewResultsHandler 创建结果日志处理器
func NewResultsHandler(store ResultStore, logger *zap.Logger) *ResultsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultsHandler{store: store, logger: logger.With(zap.String("handler", "results"))}
}

// HandleRecent 按时间倒序返回最近的结果
// @Summary Recent journaled results
// @Tags results
// @Produce json
// @Param agent_type query string false "Agent type"
// @Param status query string false "success or error"
// @Param limit query int false "Page size (max 500)"
// @Success 200 {object} Response{data=[]journal.Entry}
// @Router /v1/results [get]
func (h *ResultsHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := journal.Filter{AgentType: q.Get("agent_type")}

	switch status := types.ResultStatus(q.Get("status")); status {
	case "", types.StatusSuccess, types.StatusError:
		f.Status = status
	default:
		WriteError(w, types.NewValidationError("status must be success or error"), h.logger)
		return
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, types.NewValidationError("limit must be a positive integer"), h.logger)
			return
		}
		f.Limit = n
	}

	entries, err := h.store.Recent(r.Context(), f)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, entries)
}

// HandleByRequest 返回一个请求 ID 下的全部结果
// @Summary Journaled results of one request
// @Tags results
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} Response{data=[]journal.Entry}
// @Failure 404 {object} Response
// @Router /v1/results/{id} [get]
func (h *ResultsHandler) HandleByRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entries, err := h.store.ByRequest(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if len(entries) == 0 {
		WriteErrorMessage(w, http.StatusNotFound, types.KindValidation, "no results for request "+strconv.Quote(id), h.logger)
		return
	}
	WriteSuccess(w, entries)
}
