package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/do-ops885/ai-orchestrator-hub/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code        string             `json:"code"`
	Message     string             `json:"message"`
	FieldErrors []types.FieldError `json:"field_errors,omitempty"`
	Retryable   bool               `json:"retryable,omitempty"`
}

// requestIDKey is the context key for the request ID.
type requestIDKey struct{}

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext extracts the request ID, or "" if absent.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入 200 成功响应
func WriteSuccess(r *http.Request, w http.ResponseWriter, data interface{}) {
	WriteData(r, w, http.StatusOK, data)
}

// WriteData 写入指定状态码的成功响应
func WriteData(r *http.Request, w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// WriteRaw 把已经编码好的 JSON 作为响应体直接写出。
func WriteRaw(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

// WriteError 写入错误响应。*types.Error 携带的 HTTP 状态优先,
// 否则按错误码映射。
func WriteError(r *http.Request, w http.ResponseWriter, err error, logger *zap.Logger) {
	herr, ok := err.(*types.Error)
	if !ok {
		herr = types.NewError(types.ErrInternal, "internal error").WithCause(err)
	}

	status := herr.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(herr.Code)
	}

	if logger != nil {
		logger.Warn("api error",
			zap.String("code", string(herr.Code)),
			zap.String("message", herr.Message),
			zap.Int("status", status),
			zap.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:        string(herr.Code),
			Message:     herr.Message,
			FieldErrors: herr.FieldErrors,
			Retryable:   herr.Retryable,
		},
		Timestamp: time.Now().UTC(),
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrValidation:
		return http.StatusBadRequest
	case types.ErrAgentNotFound, types.ErrTaskNotFound:
		return http.StatusNotFound
	case types.ErrAgentCreation, types.ErrTaskCreation:
		return http.StatusConflict
	case types.ErrResourceExhausted:
		return http.StatusTooManyRequests
	case types.ErrSystemOverloaded, types.ErrCircuitBreakerOpen:
		return http.StatusServiceUnavailable
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 🛡️ 请求解析辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体,拒绝未知字段。
func DecodeJSONBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return types.NewValidationError("request body is empty")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return types.NewValidationError("invalid JSON body").WithCause(err)
	}
	return nil
}

// ClientIP 提取客户端 IP,作为固定窗口限流的客户端标识。
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
