package upload

import (
	"context"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/uploadcore"
	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/zeromicro/go-zero/core/logx"
)

type CreateSessionLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 创建上传会话
func NewCreateSessionLogic(ctx context.Context, svcCtx *svc.ServiceContext) *CreateSessionLogic {
	return &CreateSessionLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *CreateSessionLogic) CreateSession(req *types.CreateSessionRequest) (resp *types.CreateSessionResponse, err error) {
	res, err := l.svcCtx.Upload.CreateSession(l.ctx, uploadcore.CreateSessionSpec{
		CooperativeId:           ctxdata.GetCooperativeId(l.ctx),
		UploadedBy:              ctxdata.GetUserName(l.ctx),
		Filename:                req.Filename,
		FileSize:                req.FileSize,
		ChunkSize:               req.ChunkSize,
		FileHash:                req.FileHash,
		MaxRetriesPerChunk:      req.MaxRetriesPerChunk,
		ConcurrentChunksAllowed: req.ConcurrentChunksAllowed,
	})
	if err != nil {
		l.Errorf("创建上传会话失败: file=%s, size=%d, error=%v", req.Filename, req.FileSize, err)
		return nil, err
	}

	return &types.CreateSessionResponse{
		SessionId:   res.SessionId,
		UploadId:    res.UploadId,
		ChunkSize:   res.ChunkSize,
		TotalChunks: res.TotalChunks,
		ExpiresAt:   res.ExpiresAt.Unix(),
	}, nil
}
