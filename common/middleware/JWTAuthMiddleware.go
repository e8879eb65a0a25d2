package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/yanshicheng/coop-nova/pkg/jwt"
)

type Response struct {
	Code    int64  `json:"code"`    // 应用自定义状态码
	Data    any    `json:"data"`    // 响应数据
	Message string `json:"message"` // 消息描述
}

// JWTAuthMiddleware 校验令牌并把租户身份写入上下文
type JWTAuthMiddleware struct {
	secret string
}

func NewJWTAuthMiddleware(secret string) *JWTAuthMiddleware {
	return &JWTAuthMiddleware{
		secret: secret,
	}
}

// writeJSONResponse 统一封装JSON响应
func writeJSONResponse(w http.ResponseWriter, status int, code int64, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func (m *JWTAuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			// websocket 握手无法带请求头，从 url 中获取 token
			if urlToken := r.URL.Query().Get("token"); urlToken != "" {
				token = "Bearer " + urlToken
			}
		}

		claims, err := jwt.VerifyToken(token, m.secret)
		if err != nil {
			writeJSONResponse(w, http.StatusUnauthorized, 100002, "Token验证失败: "+err.Error(), nil)
			return
		}
		if claims.Account.CooperativeId == 0 {
			writeJSONResponse(w, http.StatusForbidden, 100003, "Token缺少合作社信息", nil)
			return
		}

		ctx := ctxdata.WithIdentity(r.Context(), ctxdata.Identity{
			UserId:        claims.Account.UserId,
			UserName:      claims.Account.UserName,
			CooperativeId: claims.Account.CooperativeId,
			Roles:         claims.Account.Roles,
		})
		next(w, r.WithContext(ctx))
	}
}
