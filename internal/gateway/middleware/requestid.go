package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader 请求ID的Header名称
	RequestIDHeader = "X-Request-ID"
)

// RequestIDMiddleware 请求ID中间件
// 为每个请求生成唯一的随机UUID (v4)作为请求ID
func RequestIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// 尝试从请求头获取请求ID
		requestID := r.Header.Get(RequestIDHeader)

		// 如果请求头中没有，生成新的随机UUID (v4)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		// 将请求ID添加到响应头
		w.Header().Set(RequestIDHeader, requestID)

		// 将请求ID添加到请求的context中 (供后续处理使用)
		r = r.WithContext(requestIDToContext(r.Context(), requestID))

		// 调用下一个处理器
		next(w, r)
	}
}
