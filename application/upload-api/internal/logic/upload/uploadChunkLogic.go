package upload

import (
	"context"
	"strconv"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/uploadcore"
	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/zeromicro/go-zero/core/logx"
)

type UploadChunkLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 上传分片
func NewUploadChunkLogic(ctx context.Context, svcCtx *svc.ServiceContext) *UploadChunkLogic {
	return &UploadChunkLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *UploadChunkLogic) UploadChunk(req *types.UploadChunkRequest, data []byte) (resp *types.UploadChunkResponse, err error) {
	isLast, _ := strconv.ParseBool(req.IsLastChunk)

	res, err := l.svcCtx.Upload.UploadChunk(l.ctx, uploadcore.UploadChunkRequest{
		CooperativeId: ctxdata.GetCooperativeId(l.ctx),
		UploadId:      req.Id,
		ChunkNumber:   req.ChunkNumber,
		Data:          data,
		Hash:          req.ChunkHash,
		IsLastChunk:   isLast,
		FileSize:      req.FileSize,
	})
	if err != nil {
		l.Infof("上传分片失败: uploadId=%s, chunk=%d, error=%v", req.Id, req.ChunkNumber, err)
		return nil, err
	}

	return &types.UploadChunkResponse{
		ChunkId:         res.ChunkId,
		ChunkHash:       res.ChunkHash,
		NextChunkNumber: res.NextChunkNumber,
		Progress:        convertProgress(res.Progress),
	}, nil
}
