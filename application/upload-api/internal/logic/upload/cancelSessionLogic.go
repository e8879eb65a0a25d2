package upload

import (
	"context"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/zeromicro/go-zero/core/logx"
)

type CancelSessionLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 取消上传会话
func NewCancelSessionLogic(ctx context.Context, svcCtx *svc.ServiceContext) *CancelSessionLogic {
	return &CancelSessionLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *CancelSessionLogic) CancelSession(req *types.SessionIdRequest) (resp *types.ProgressResponse, err error) {
	p, err := l.svcCtx.Upload.CancelSession(l.ctx, ctxdata.GetCooperativeId(l.ctx), req.Id)
	if err != nil {
		l.Errorf("取消上传会话失败: uploadId=%s, operator=%s, error=%v", req.Id, ctxdata.GetUserName(l.ctx), err)
		return nil, err
	}
	out := convertProgress(p)
	return &out, nil
}
