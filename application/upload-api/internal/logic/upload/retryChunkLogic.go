package upload

import (
	"context"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/zeromicro/go-zero/core/logx"
)

type RetryChunkLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 申请重试分片
func NewRetryChunkLogic(ctx context.Context, svcCtx *svc.ServiceContext) *RetryChunkLogic {
	return &RetryChunkLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *RetryChunkLogic) RetryChunk(req *types.ChunkIdRequest) (resp *types.RetryChunkResponse, err error) {
	res, err := l.svcCtx.Upload.RetryChunk(l.ctx, ctxdata.GetCooperativeId(l.ctx), req.Id, req.ChunkNumber)
	if err != nil {
		l.Errorf("申请分片重试失败: uploadId=%s, chunk=%d, error=%v", req.Id, req.ChunkNumber, err)
		return nil, err
	}
	return &types.RetryChunkResponse{
		CanRetry:    res.CanRetry,
		RetriesLeft: res.RetriesLeft,
	}, nil
}
