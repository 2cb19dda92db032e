package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/types"
)

// RequestIDHeader 由 RequestID 中间件写入响应头，响应信封从这里取值
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code,omitempty"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// newErrorInfo 把分类错误转换为对外的错误信息；Cause 不外泄
func newErrorInfo(err *types.Error) *ErrorInfo {
	return &ErrorInfo{
		Code:      string(err.Code),
		Kind:      string(err.Kind),
		Message:   err.Message,
		Retryable: err.Retryable,
	}
}

// statusOf 返回错误对应的 HTTP 状态码
func statusOf(err *types.Error) int {
	if err.HTTPStatus != 0 {
		return err.HTTPStatus
	}
	return err.Kind.HTTPStatus()
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 头已写出，编码失败无法再改状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// WriteResult 写入带数据的失败响应，状态码由错误种类决定
func WriteResult(w http.ResponseWriter, err *types.Error, data any) {
	WriteJSON(w, statusOf(err), Response{
		Success:   false,
		Data:      data,
		Error:     newErrorInfo(err),
		Timestamp: time.Now().UTC(),
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// WriteError 写入错误响应。Internal 错误只在日志中保留原因
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	e := types.Translate(err)
	status := statusOf(e)

	if logger != nil {
		fields := []zap.Field{
			zap.String("kind", string(e.Kind)),
			zap.String("code", string(e.Code)),
			zap.Int("status", status),
			zap.String("request_id", w.Header().Get(RequestIDHeader)),
		}
		if e.Cause != nil {
			fields = append(fields, zap.Error(e.Cause))
		}
		if status >= http.StatusInternalServerError {
			logger.Error(e.Message, fields...)
		} else {
			logger.Debug(e.Message, fields...)
		}
	}

	WriteResult(w, e, nil)
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, kind types.ErrorKind, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(kind, message).WithHTTPStatus(status), logger)
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体（1 MB 限制 + 严格模式），失败时已写出 400 响应
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewValidationError("request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		msg := "invalid JSON body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		apiErr := types.NewValidationError(msg).WithCause(err)
		WriteError(w, apiErr, logger)
		return apiErr
	}
	return nil
}

// ValidateContentType 验证 Content-Type 为 application/json，失败时已写出 415 响应
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		WriteErrorMessage(w, http.StatusUnsupportedMediaType, types.KindValidation,
			"Content-Type must be application/json", logger)
		return false
	}
	return true
}
