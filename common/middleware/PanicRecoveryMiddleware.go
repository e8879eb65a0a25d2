package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/zeromicro/go-zero/core/logx"
)

// PanicRecoveryMiddleware 捕获处理链中的 panic，返回统一错误结构
func PanicRecoveryMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logx.WithContext(r.Context()).Errorf("请求处理 panic: %s %s, panic=%v\n%s",
					r.Method, r.URL.Path, rec, debug.Stack())
				writeJSONResponse(w, http.StatusInternalServerError, 100001, "服务内部错误", nil)
			}
		}()
		next(w, r)
	}
}
