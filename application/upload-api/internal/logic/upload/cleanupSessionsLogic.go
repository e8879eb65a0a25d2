package upload

import (
	"context"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/code"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/yanshicheng/coop-nova/common/vars"
	"github.com/zeromicro/go-zero/core/logx"
)

type CleanupSessionsLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 手动回收过期会话（管理员）
func NewCleanupSessionsLogic(ctx context.Context, svcCtx *svc.ServiceContext) *CleanupSessionsLogic {
	return &CleanupSessionsLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *CleanupSessionsLogic) CleanupSessions() (resp *types.CleanupSessionsResponse, err error) {
	if !ctxdata.HasRole(l.ctx, vars.RoleAdmin) {
		return nil, code.Forbidden
	}

	res, err := l.svcCtx.Upload.CleanupExpiredSessions(l.ctx)
	if err != nil {
		l.Errorf("手动回收过期会话失败: operator=%s, error=%v", ctxdata.GetUserName(l.ctx), err)
		return nil, err
	}
	l.Infof("手动回收过期会话完成: operator=%s, expired=%d, cleaned=%d, reassembled=%d",
		ctxdata.GetUserName(l.ctx), res.Expired, res.Cleaned, res.Reassembled)

	return &types.CleanupSessionsResponse{
		Expired:     res.Expired,
		Cleaned:     res.Cleaned,
		Reassembled: res.Reassembled,
	}, nil
}
