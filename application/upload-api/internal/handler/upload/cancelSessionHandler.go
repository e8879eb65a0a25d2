package upload

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mcuadros/go-defaults"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/code"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/logic/upload"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/common/verify"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// 取消上传会话
func CancelSessionHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SessionIdRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, code.ValidationError.WithMessage(err.Error()))
			return
		}
		// 设置默认值
		defaults.SetDefaults(&req)
		// validator验证
		if err := svcCtx.Validator.Validate.StructCtx(r.Context(), &req); err != nil {
			strErr := verify.RemoveTopSaStr(err.(validator.ValidationErrors), svcCtx.Validator.Translator)
			httpx.ErrorCtx(r.Context(), w, code.ValidationError.WithMessage(strErr))
			return
		}
		l := upload.NewCancelSessionLogic(r.Context(), svcCtx)
		resp, err := l.CancelSession(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
