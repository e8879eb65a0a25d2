package errorx

import (
	"github.com/yanshicheng/coop-nova/common/handler/errorx/types"
)

// ErrHandler 注册到 httpx.SetErrorHandler，业务错误携带各自的 HTTP 状态码
func ErrHandler(err error) (int, any) {
	code := CodeFromError(err)
	return code.HTTPStatus(), types.Status{
		Code:    int32(code.Code()),
		Message: code.Message(),
		Data:    code.Data(),
	}
}
