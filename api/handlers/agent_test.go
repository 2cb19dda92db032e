package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/agent"
	"github.com/BaSui01/aiorch/orchestrator"
	"github.com/BaSui01/aiorch/testutil/mocks"
	"github.com/BaSui01/aiorch/types"
)

// =============================================================================
// 🧪 测试夹具
// =============================================================================

func newTestOrchestrator(t *testing.T, agents map[string]agent.Agent) (*orchestrator.Orchestrator, *agent.Registry) {
	t.Helper()
	reg := agent.NewRegistry(nil)
	for name, a := range agents {
		reg.RegisterAgent(name, a)
	}

	cfg := orchestrator.DefaultConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.DefaultTimeout = 5 * time.Second

	o, err := orchestrator.New(cfg, reg, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, o.Close(ctx))
	})
	return o, reg
}

func newAgentHandler(t *testing.T, agents map[string]agent.Agent) (*AgentHandler, *orchestrator.Orchestrator) {
	o, reg := newTestOrchestrator(t, agents)
	return NewAgentHandler(o, reg.ListTypes, zap.NewNop()), o
}

func jsonRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func processRequest(agentType, body string) *http.Request {
	r := jsonRequest(http.MethodPost, "/v1/agents/"+agentType+"/process", body)
	r.SetPathValue("type", agentType)
	return r
}

// =============================================================================
// 🧪 Process
// =============================================================================

func TestHandleProcess_Success(t *testing.T) {
	h, _ := newAgentHandler(t, map[string]agent.Agent{
		"scorer": mocks.NewStubAgent().WithOutput(map[string]any{"score": 0.9}),
	})

	w := httptest.NewRecorder()
	h.HandleProcess(w, processRequest("scorer", `{"input":{"text":"hello"}}`))

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "success", data["status"])
	assert.Equal(t, "scorer", data["agent_type"])
	assert.NotEmpty(t, data["request_id"])
	assert.Equal(t, 0.9, data["payload"].(map[string]any)["score"])
}

func TestHandleProcess_Failures(t *testing.T) {
	tests := []struct {
		name      string
		agentType string
		agent     agent.Agent
		body      string
		status    int
		kind      types.ErrorKind
		code      types.ErrorCode
	}{
		{
			name:      "unknown agent",
			agentType: "nope",
			body:      `{"input":{}}`,
			status:    http.StatusBadRequest,
			kind:      types.KindValidation,
			code:      types.ErrUnknownAgent,
		},
		{
			name:      "input rejected by agent",
			agentType: "scorer",
			agent:     mocks.NewStubAgent().WithValid(false),
			body:      `{"input":{}}`,
			status:    http.StatusBadRequest,
			kind:      types.KindValidation,
		},
		{
			name:      "invalid options",
			agentType: "scorer",
			agent:     mocks.NewStubAgent(),
			body:      `{"input":{},"options":{"model_preference":"turbo"}}`,
			status:    http.StatusBadRequest,
			kind:      types.KindValidation,
		},
		{
			name:      "permanent provider error",
			agentType: "scorer",
			agent:     mocks.NewStubAgent().WithError(agent.Permanent(errors.New("content policy"))),
			body:      `{"input":{}}`,
			status:    http.StatusUnprocessableEntity,
			kind:      types.KindPermanent,
		},
		{
			name:      "deadline",
			agentType: "scorer",
			agent:     mocks.NewStubAgent().WithDelay(time.Second),
			body:      `{"input":{},"options":{"timeout_override":0.02}}`,
			status:    http.StatusGatewayTimeout,
			kind:      types.KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agents := map[string]agent.Agent{}
			if tt.agent != nil {
				agents[tt.agentType] = tt.agent
			}
			h, _ := newAgentHandler(t, agents)

			w := httptest.NewRecorder()
			h.HandleProcess(w, processRequest(tt.agentType, tt.body))

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.kind), resp.Error.Kind)
			if tt.code != "" {
				assert.Equal(t, string(tt.code), resp.Error.Code)
			}
			assert.NotNil(t, resp.Data, "failed results still carry the result body")
		})
	}
}

func TestHandleProcess_RejectsBadRequests(t *testing.T) {
	h, _ := newAgentHandler(t, map[string]agent.Agent{"scorer": mocks.NewStubAgent()})

	w := httptest.NewRecorder()
	r := processRequest("scorer", `{"input":{}}`)
	r.Header.Set("Content-Type", "text/plain")
	h.HandleProcess(w, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = httptest.NewRecorder()
	h.HandleProcess(w, processRequest("scorer", `{"input":{},"surprise":true}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// 🧪 Cancel / Requests
// =============================================================================

func TestHandleCancel_InFlightRequest(t *testing.T) {
	stub := mocks.NewStubAgent().WithDelay(5 * time.Second)
	h, _ := newAgentHandler(t, map[string]agent.Agent{"summarizer": stub})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		w := httptest.NewRecorder()
		h.HandleProcess(w, processRequest("summarizer", `{"input":{"text":"x"},"options":{"request_id":"req-1"}}`))
		done <- w
	}()
	<-stub.Started()

	w := httptest.NewRecorder()
	h.HandleListRequests(w, httptest.NewRequest(http.MethodGet, "/v1/requests", nil))
	active := decodeResponse(t, w).Data.([]any)
	require.Len(t, active, 1)
	assert.Equal(t, "req-1", active[0].(map[string]any)["id"])

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/requests/req-1/cancel", nil)
	r.SetPathValue("id", "req-1")
	h.HandleCancel(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeResponse(t, w).Data.(map[string]any)["cancelled"])

	select {
	case pw := <-done:
		assert.Equal(t, types.StatusClientClosedRequest, pw.Code)
		resp := decodeResponse(t, pw)
		assert.Equal(t, string(types.KindCancelled), resp.Error.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request did not return")
	}
}

func TestHandleCancel_UnknownRequest(t *testing.T) {
	h, _ := newAgentHandler(t, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/requests/missing/cancel", nil)
	r.SetPathValue("id", "missing")
	h.HandleCancel(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, false, data["cancelled"])
	assert.Equal(t, "missing", data["request_id"])
}

// =============================================================================
// 🧪 Batch / List
// =============================================================================

func TestHandleBatch_PreservesOrder(t *testing.T) {
	h, _ := newAgentHandler(t, map[string]agent.Agent{
		"scorer":     mocks.NewStubAgent(),
		"summarizer": mocks.NewStubAgent().WithError(agent.Permanent(errors.New("refused"))),
	})

	body := `{"requests":[
		{"agent_type":"scorer","input":{"n":1}},
		{"agent_type":"summarizer","input":{"n":2}},
		{"agent_type":"scorer","input":{"n":3}}
	]}`
	w := httptest.NewRecorder()
	h.HandleBatch(w, jsonRequest(http.MethodPost, "/v1/batch", body))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, float64(2), data["succeeded"])
	assert.Equal(t, float64(1), data["failed"])

	results := data["results"].([]any)
	require.Len(t, results, 3)
	for i, want := range []string{"scorer", "summarizer", "scorer"} {
		assert.Equal(t, want, results[i].(map[string]any)["agent_type"])
	}
	assert.Equal(t, float64(3), results[2].(map[string]any)["payload"].(map[string]any)["n"])
}

func TestHandleBatch_Limits(t *testing.T) {
	h, _ := newAgentHandler(t, nil)

	w := httptest.NewRecorder()
	h.HandleBatch(w, jsonRequest(http.MethodPost, "/v1/batch", `{"requests":[]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	items := make([]string, maxBatchSize+1)
	for i := range items {
		items[i] = `{"agent_type":"scorer","input":{}}`
	}
	w = httptest.NewRecorder()
	h.HandleBatch(w, jsonRequest(http.MethodPost, "/v1/batch", `{"requests":[`+strings.Join(items, ",")+`]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeResponse(t, w).Error.Message, "too many")
}

func TestHandleListAgents(t *testing.T) {
	h, o := newAgentHandler(t, map[string]agent.Agent{
		"scorer":     mocks.NewStubAgent(),
		"summarizer": mocks.NewStubAgent(),
	})
	o.Process(context.Background(), types.AgentRequest{AgentType: "scorer", Input: map[string]any{}})

	w := httptest.NewRecorder()
	h.HandleListAgents(w, httptest.NewRequest(http.MethodGet, "/v1/agents", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	list := decodeResponse(t, w).Data.([]any)
	require.Len(t, list, 2)

	byType := map[string]map[string]any{}
	for _, item := range list {
		m := item.(map[string]any)
		byType[m["type"].(string)] = m["health"].(map[string]any)
	}
	assert.Equal(t, float64(1), byType["scorer"]["total_requests"])
	assert.Equal(t, "healthy", byType["summarizer"]["status"])
}
