package uploadcore

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"
)

var expirableStatuses = []SessionStatus{SessionPending, SessionUploading, SessionAssembling}

// CleanupExpiredSessions 回收过期会话：非终态迁移为 expired，删除分片与合并中间文件。
// 已清理的会话不会再次被选中，重复执行是幂等的
func (s *Service) CleanupExpiredSessions(ctx context.Context) (*CleanupResult, error) {
	logger := logx.WithContext(ctx)
	now := s.now()
	result := &CleanupResult{}

	for round := 0; round < cleanupMaxBatchRounds; round++ {
		batch, err := s.store.FindExpiredSessions(ctx, now, s.opts.CleanupBatchSize)
		if err != nil {
			return result, fmt.Errorf("查询过期会话失败: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		var cleaned int64
		for _, sess := range batch {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if s.expireSession(ctx, sess) {
				result.Expired++
			}
			if s.cleanupFiles(ctx, sess) {
				cleaned++
			}
		}
		result.Cleaned += cleaned

		// 本轮没有任何进展时停止，避免清理失败的会话被反复选中
		if cleaned == 0 || int64(len(batch)) < s.opts.CleanupBatchSize {
			break
		}
	}

	reassembled, err := s.reconcileStalled(ctx)
	if err != nil {
		logger.Errorf("[会话清理] 补偿合并失败: %v", err)
	}
	result.Reassembled = reassembled

	if result.Expired > 0 || result.Cleaned > 0 || result.Reassembled > 0 {
		logger.Infof("[会话清理] 完成, expired=%d, cleaned=%d, reassembled=%d",
			result.Expired, result.Cleaned, result.Reassembled)
	}
	return result, nil
}

func (s *Service) expireSession(ctx context.Context, sess *Session) bool {
	if !containsStatus(expirableStatuses, sess.Status) {
		return false
	}
	ok, err := s.store.TransitionStatus(ctx, sess.Id, expirableStatuses, SessionExpired, StatusChange{
		ErrorMessage: "会话已过期",
	})
	if err != nil {
		logx.WithContext(ctx).Errorf("[会话清理] 标记过期失败, uploadId=%s, error=%v", sess.UploadId, err)
		return false
	}
	if ok {
		sess.Status = SessionExpired
		s.emit(ctx, newEvent(EventSessionExpired, sess, -1, ""))
	}
	return ok
}

// reconcileStalled 分片已齐但未进入合并的会话重新提交合并
func (s *Service) reconcileStalled(ctx context.Context) (int64, error) {
	stalled, err := s.store.FindStalledSessions(ctx, s.opts.CleanupBatchSize)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, sess := range stalled {
		if sess.IsExpiredAt(s.now()) {
			continue
		}
		if s.assembler.Submit(sess) {
			n++
		}
	}
	return n, nil
}
