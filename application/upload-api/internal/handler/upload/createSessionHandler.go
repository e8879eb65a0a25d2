package upload

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mcuadros/go-defaults"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/code"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/logic/upload"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/common/handler/okx"
	"github.com/yanshicheng/coop-nova/common/verify"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// 创建上传会话
func CreateSessionHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateSessionRequest
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
		l := upload.NewCreateSessionLogic(r.Context(), svcCtx)
		resp, err := l.CreateSession(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		// 创建成功返回 201，响应体沿用统一结构
		httpx.WriteJsonCtx(r.Context(), w, http.StatusCreated, okx.OkHandler(r.Context(), resp))
	}
}
