package upload

import (
	"context"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/zeromicro/go-zero/core/logx"
)

type GetProgressLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 查询会话进度
func NewGetProgressLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetProgressLogic {
	return &GetProgressLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetProgressLogic) GetProgress(req *types.SessionIdRequest) (resp *types.ProgressResponse, err error) {
	p, err := l.svcCtx.Upload.GetProgress(l.ctx, ctxdata.GetCooperativeId(l.ctx), req.Id)
	if err != nil {
		return nil, err
	}
	out := convertProgress(p)
	return &out, nil
}
