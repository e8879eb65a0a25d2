package handler

import (
	"net/http"
	"time"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/handler/upload"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/zeromicro/go-zero/rest"
)

// chunkOverhead 请求体上限在分片上限之外预留的余量
const chunkOverhead = 64 * 1024

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		rest.WithMiddlewares(
			[]rest.Middleware{serverCtx.JWTAuthMiddleware},
			[]rest.Route{
				{
					// 创建上传会话
					Method:  http.MethodPost,
					Path:    "/sessions",
					Handler: upload.CreateSessionHandler(serverCtx),
				},
				{
					// 手动回收过期会话
					Method:  http.MethodPost,
					Path:    "/sessions/cleanup",
					Handler: upload.CleanupSessionsHandler(serverCtx),
				},
				{
					// 取消上传会话
					Method:  http.MethodDelete,
					Path:    "/sessions/:id",
					Handler: upload.CancelSessionHandler(serverCtx),
				},
				{
					// 查询分片状态
					Method:  http.MethodGet,
					Path:    "/sessions/:id/chunks/:n",
					Handler: upload.GetChunkHandler(serverCtx),
				},
				{
					// 申请重试分片
					Method:  http.MethodDelete,
					Path:    "/sessions/:id/chunks/:n",
					Handler: upload.RetryChunkHandler(serverCtx),
				},
				{
					// 查询会话进度
					Method:  http.MethodGet,
					Path:    "/sessions/:id/progress",
					Handler: upload.GetProgressHandler(serverCtx),
				},
				{
					// 进度推送
					Method:  http.MethodGet,
					Path:    "/sessions/:id/progress/ws",
					Handler: upload.ProgressStreamHandler(serverCtx),
				},
				{
					// 断点续传信息
					Method:  http.MethodGet,
					Path:    "/sessions/:id/resume",
					Handler: upload.ResumeSessionHandler(serverCtx),
				},
			}...,
		),
		rest.WithPrefix("/upload/v1"),
	)

	server.AddRoutes(
		rest.WithMiddlewares(
			[]rest.Middleware{serverCtx.JWTAuthMiddleware},
			[]rest.Route{
				{
					// 上传分片
					Method:  http.MethodPut,
					Path:    "/sessions/:id/chunks/:n",
					Handler: upload.UploadChunkHandler(serverCtx),
				},
			}...,
		),
		rest.WithPrefix("/upload/v1"),
		rest.WithMaxBytes(serverCtx.Config.Upload.MaxChunkSize+chunkOverhead),
		rest.WithTimeout(120*time.Second),
	)
}
