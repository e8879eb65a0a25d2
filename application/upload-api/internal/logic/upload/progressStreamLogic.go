package upload

import (
	"context"
	"net/http"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/zeromicro/go-zero/core/logx"
)

type ProgressStreamLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 进度推送，连接建立后先下发当前快照，之后转发生命周期事件直到会话结束
func NewProgressStreamLogic(ctx context.Context, svcCtx *svc.ServiceContext) *ProgressStreamLogic {
	return &ProgressStreamLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Snapshot 升级前查询，会话不存在时直接返回 HTTP 错误
func (l *ProgressStreamLogic) Snapshot(req *types.ProgressStreamRequest) (*types.ProgressResponse, error) {
	p, err := l.svcCtx.Upload.GetProgress(l.ctx, ctxdata.GetCooperativeId(l.ctx), req.Id)
	if err != nil {
		return nil, err
	}
	out := convertProgress(p)
	return &out, nil
}

// Stream 登记订阅后重新读取快照，升级前后发生的状态变化都不会遗漏
func (l *ProgressStreamLogic) Stream(w http.ResponseWriter, r *http.Request, uploadId string) error {
	cooperativeId := ctxdata.GetCooperativeId(l.ctx)
	return l.svcCtx.Hub.Serve(w, r, cooperativeId, uploadId, func() (any, bool, error) {
		p, err := l.svcCtx.Upload.GetProgress(l.ctx, cooperativeId, uploadId)
		if err != nil {
			return nil, false, err
		}
		out := convertProgress(p)
		return &out, isTerminalStatus(out.Status), nil
	})
}
