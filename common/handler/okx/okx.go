package okx

import (
	"context"

	"github.com/yanshicheng/coop-nova/common/handler/errorx/types"
)

const (
	SuccessCode    = 0
	SuccessMessage = "success"
)

// OkHandler 注册到 httpx.SetOkHandler，包装统一响应结构
func OkHandler(_ context.Context, v any) any {
	return types.Response{
		Code:    SuccessCode,
		Message: SuccessMessage,
		Data:    v,
	}
}
