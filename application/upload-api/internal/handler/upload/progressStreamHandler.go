package upload

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/code"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/logic/upload"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/common/verify"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// 进度推送 WebSocket
func ProgressStreamHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ProgressStreamRequest
		if err := httpx.Parse(r, &req); err != nil {
			logx.WithContext(r.Context()).Errorf("解析请求失败: %v", err)
			httpx.ErrorCtx(r.Context(), w, code.ValidationError.WithMessage(err.Error()))
			return
		}
		if err := svcCtx.Validator.Validate.StructCtx(r.Context(), &req); err != nil {
			strErr := verify.RemoveTopSaStr(err.(validator.ValidationErrors), svcCtx.Validator.Translator)
			httpx.ErrorCtx(r.Context(), w, code.ValidationError.WithMessage(strErr))
			return
		}

		l := upload.NewProgressStreamLogic(r.Context(), svcCtx)
		snapshot, err := l.Snapshot(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		// 升级失败时 upgrader 已写回 HTTP 错误
		if err := l.Stream(w, r, snapshot.UploadId); err != nil {
			logx.WithContext(r.Context()).Errorf("[进度推送] 连接处理失败: uploadId=%s, error=%v", req.Id, err)
		}
	}
}
