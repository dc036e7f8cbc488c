package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	xerrors "AgentPlane/internal/errors"
	"AgentPlane/internal/observability/metrics"
	"AgentPlane/pkg/logger"
)

// errorBody 是所有错误响应的统一结构。
type errorBody struct {
	Error struct {
		Code     string            `json:"code"`
		Message  string            `json:"message"`
		Metadata map[string]string `json:"metadata,omitempty"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 把统一错误码翻译成 HTTP 状态码。未识别的错误一律
// 按 500 处理并记录日志。
func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := statusOf(code)

	var body errorBody
	body.Error.Code = string(code)
	if e, ok := xerrors.From(err); ok {
		body.Error.Message = e.Message()
		body.Error.Metadata = e.Metadata()
	} else {
		body.Error.Message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.L().Error("请求处理失败",
			slog.String("code", string(code)),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, body)
}

func statusOf(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, xerrors.CodeInvalidTransition:
		return http.StatusConflict
	case xerrors.CodeStorageFailure, xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeInterpretFailure:
		return http.StatusBadGateway
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, xerrors.New(xerrors.CodeInvalidArgument, message))
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, "方法不允许", http.StatusMethodNotAllowed)
}

// decodeBody 解析 JSON 请求体，失败时直接写出 400。
func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		badRequest(w, "请求体解析失败")
		return false
	}
	return true
}

// statusRecorder 捕获处理器写出的状态码，供指标中间件使用。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withMetrics 为每个请求记录时延与状态码。
func withMetrics(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler.ServeHTTP(recorder, r)
		metrics.ObserveHTTPRequest(r.URL.Path, r.Method, recorder.status, time.Since(start))
	})
}
