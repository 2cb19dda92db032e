package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/aiorch/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req-42")

	WriteSuccess(w, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Equal(t, map[string]any{"key": "value"}, resp.Data)
}

func TestWriteError_StatusByKind(t *testing.T) {
	tests := []struct {
		err       error
		status    int
		retryable bool
	}{
		{types.NewValidationError("bad input"), http.StatusBadRequest, false},
		{types.NewTimeoutError("too slow"), http.StatusGatewayTimeout, true},
		{types.NewTransientError("overloaded"), http.StatusServiceUnavailable, true},
		{types.NewPermanentError("refused"), http.StatusUnprocessableEntity, false},
		{types.NewCancelledError("cancelled"), types.StatusClientClosedRequest, false},
		{types.NewInternalError("boom"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		e, _ := types.AsError(tt.err)
		t.Run(string(e.Kind), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(e.Kind), resp.Error.Kind)
			assert.Equal(t, string(e.Code), resp.Error.Code)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
		})
	}
}

func TestWriteError_HidesInternalCause(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	w := httptest.NewRecorder()

	WriteError(w, errors.New("pq: password authentication failed for user admin"), zap.New(core))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	resp := decodeResponse(t, w)
	assert.Equal(t, "internal error", resp.Error.Message)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Contains(t, entry.ContextMap()["error"], "password authentication failed")
}

func TestWriteError_CustomStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorMessage(w, http.StatusNotFound, types.KindValidation, "not here", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "not here", resp.Error.Message)
	assert.Equal(t, string(types.KindValidation), resp.Error.Kind)
}

func TestWriteResult_CarriesData(t *testing.T) {
	w := httptest.NewRecorder()
	res := types.Failure("scorer", types.NewTimeoutError("deadline exceeded"), types.ResultMetrics{AttemptCount: 3})

	WriteResult(w, res.Error, res)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "scorer", data["agent_type"])
	assert.Equal(t, float64(3), data["metrics"].(map[string]any)["attempt_count"])
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
		wantMsg string
	}{
		{name: "valid", body: `{"name":"acme"}`},
		{name: "empty", body: "", wantErr: true, wantMsg: "request body is empty"},
		{name: "malformed", body: `{"name":`, wantErr: true, wantMsg: "invalid JSON body"},
		{name: "unknown field", body: `{"name":"acme","extra":1}`, wantErr: true, wantMsg: "invalid JSON body"},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`, wantErr: true, wantMsg: "request body too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.body != "" {
				body = strings.NewReader(tt.body)
				r = httptest.NewRequest(http.MethodPost, "/", body)
			}
			w := httptest.NewRecorder()

			var dst payload
			err := DecodeJSONBody(w, r, &dst, zap.NewNop())
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "acme", dst.Name)
				return
			}
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantMsg, decodeResponse(t, w).Error.Message)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"Application/JSON", true},
		{"text/plain", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()

			assert.Equal(t, tt.want, ValidateContentType(w, r, zap.NewNop()))
			if !tt.want {
				assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}
