package upload

import (
	"net/http"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/logic/upload"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// 手动回收过期会话
func CleanupSessionsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := upload.NewCleanupSessionsLogic(r.Context(), svcCtx)
		resp, err := l.CleanupSessions()
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
