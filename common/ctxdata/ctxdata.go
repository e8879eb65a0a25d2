package ctxdata

import "context"

type ctxKey string

const (
	keyUserId        ctxKey = "userId"
	keyUserName      ctxKey = "username"
	keyCooperativeId ctxKey = "cooperativeId"
	keyRoles         ctxKey = "roles"
)

// Identity 认证中间件写入上下文的调用方身份
type Identity struct {
	UserId        uint64
	UserName      string
	CooperativeId uint64
	Roles         []string
}

// WithIdentity 把身份信息写入上下文
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, keyUserId, id.UserId)
	ctx = context.WithValue(ctx, keyUserName, id.UserName)
	ctx = context.WithValue(ctx, keyCooperativeId, id.CooperativeId)
	ctx = context.WithValue(ctx, keyRoles, id.Roles)
	return ctx
}

func GetUserId(ctx context.Context) uint64 {
	v, _ := ctx.Value(keyUserId).(uint64)
	return v
}

// GetUserName 未认证时返回 system
func GetUserName(ctx context.Context) string {
	v, ok := ctx.Value(keyUserName).(string)
	if !ok || v == "" {
		return "system"
	}
	return v
}

func GetCooperativeId(ctx context.Context) uint64 {
	v, _ := ctx.Value(keyCooperativeId).(uint64)
	return v
}

func GetRoles(ctx context.Context) []string {
	v, _ := ctx.Value(keyRoles).([]string)
	return v
}

// HasRole 判断调用方是否拥有指定角色
func HasRole(ctx context.Context, role string) bool {
	for _, r := range GetRoles(ctx) {
		if r == role {
			return true
		}
	}
	return false
}
