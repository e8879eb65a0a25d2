package crontab

import (
	"context"
	"time"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/uploadcore"
	"github.com/zeromicro/go-zero/core/logx"
)

const SessionCleanupJobName = "upload-session-cleanup"

// SessionCleaner 过期会话回收
type SessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context) (*uploadcore.CleanupResult, error)
}

// SessionCleanupJob 定期回收过期会话并补偿停滞的合并
type SessionCleanupJob struct {
	cleaner SessionCleaner
	spec    string
	timeout time.Duration
}

func NewSessionCleanupJob(cleaner SessionCleaner, spec string, timeout time.Duration) *SessionCleanupJob {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &SessionCleanupJob{cleaner: cleaner, spec: spec, timeout: timeout}
}

func (j *SessionCleanupJob) Name() string           { return SessionCleanupJobName }
func (j *SessionCleanupJob) Spec() string           { return j.spec }
func (j *SessionCleanupJob) Timeout() time.Duration { return j.timeout }

func (j *SessionCleanupJob) Execute(ctx context.Context) error {
	res, err := j.cleaner.CleanupExpiredSessions(ctx)
	if err != nil {
		return err
	}
	logx.WithContext(ctx).Infof("[会话清理] 定时任务完成, expired=%d, cleaned=%d, reassembled=%d",
		res.Expired, res.Cleaned, res.Reassembled)
	return nil
}
