package upload

import (
	"context"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/zeromicro/go-zero/core/logx"
)

type GetChunkLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 查询分片状态
func NewGetChunkLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetChunkLogic {
	return &GetChunkLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetChunkLogic) GetChunk(req *types.ChunkIdRequest) (resp *types.ChunkInfoResponse, err error) {
	info, err := l.svcCtx.Upload.GetChunk(l.ctx, ctxdata.GetCooperativeId(l.ctx), req.Id, req.ChunkNumber)
	if err != nil {
		return nil, err
	}
	return convertChunkInfo(info), nil
}
