package upload

import (
	"context"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/common/ctxdata"
	"github.com/zeromicro/go-zero/core/logx"
)

type ResumeSessionLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

// 断点续传信息
func NewResumeSessionLogic(ctx context.Context, svcCtx *svc.ServiceContext) *ResumeSessionLogic {
	return &ResumeSessionLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *ResumeSessionLogic) ResumeSession(req *types.SessionIdRequest) (resp *types.ResumeSessionResponse, err error) {
	info, err := l.svcCtx.Upload.ResumeSession(l.ctx, ctxdata.GetCooperativeId(l.ctx), req.Id)
	if err != nil {
		return nil, err
	}
	l.Infof("断点续传查询: uploadId=%s, missing=%d, failed=%d", req.Id, len(info.MissingChunks), len(info.FailedChunks))
	return convertResume(info), nil
}
