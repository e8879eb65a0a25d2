package upload

import (
	"fmt"
	"io"
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

// 上传分片，请求体为分片原始字节
func UploadChunkHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// 1. 解析路径与请求头，请求体不是 JSON，不能走 httpx.Parse
		var req types.UploadChunkRequest
		if err := httpx.ParsePath(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, code.ValidationError.WithMessage(err.Error()))
			return
		}
		if err := httpx.ParseHeaders(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, code.ValidationError.WithMessage(err.Error()))
			return
		}

		// 2. 设置默认值并验证
		defaults.SetDefaults(&req)
		if err := svcCtx.Validator.Validate.StructCtx(r.Context(), &req); err != nil {
			strErr := verify.RemoveTopSaStr(err.(validator.ValidationErrors), svcCtx.Validator.Translator)
			httpx.ErrorCtx(r.Context(), w, code.ValidationError.WithMessage(strErr))
			return
		}

		// 3. 读取分片，多读一个字节用于识别超长请求体
		limit := svcCtx.Config.Upload.MaxChunkSize
		if r.ContentLength > limit {
			httpx.ErrorCtx(r.Context(), w, code.ChunkSizeMismatch.WithMessage(
				fmt.Sprintf("分片大小超过上限: %d > %d", r.ContentLength, limit)))
			return
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, code.ValidationError.WithMessage("读取分片内容失败: "+err.Error()))
			return
		}
		if int64(len(data)) > limit {
			httpx.ErrorCtx(r.Context(), w, code.ChunkSizeMismatch.WithMessage(
				fmt.Sprintf("分片大小超过上限: %d", limit)))
			return
		}

		// 4. 调用 Logic
		l := upload.NewUploadChunkLogic(r.Context(), svcCtx)
		resp, err := l.UploadChunk(&req, data)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
