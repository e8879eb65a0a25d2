package uploadcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/code"
	"github.com/zeromicro/go-zero/core/logx"
)

// RetryChunk 申请重试失败的分片。重置在存储层以单条条件更新完成
func (s *Service) RetryChunk(ctx context.Context, cooperativeId uint64, uploadId string, chunkNumber int64) (*RetryResult, error) {
	sess, err := s.loadSession(ctx, cooperativeId, uploadId)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.checkWritable(sess, now); err != nil {
		return nil, err
	}
	if _, ok := sess.ExpectedChunkSize(chunkNumber); !ok {
		return nil, code.ValidationError.WithMessage(fmt.Sprintf("分片序号 %d 超出范围 [0, %d)", chunkNumber, sess.TotalChunks))
	}

	reset, err := s.store.ResetForRetry(ctx, sess.Id, chunkNumber, sess.MaxRetriesPerChunk, now)
	if err != nil {
		return nil, fmt.Errorf("重置分片失败: %w", err)
	}

	chunk, err := s.store.FindChunk(ctx, sess.Id, chunkNumber)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, fmt.Errorf("查询分片失败: %w", err)
		}
		chunk = &Chunk{ChunkNumber: chunkNumber, Status: ChunkPending}
	}

	left := retriesLeft(sess, chunk)
	if !reset {
		logx.WithContext(ctx).Infof("[分片重试] 不可重试, uploadId=%s, chunk=%d, status=%s, retryCount=%d/%d",
			sess.UploadId, chunkNumber, chunk.Status, chunk.RetryCount, sess.MaxRetriesPerChunk)
		return &RetryResult{CanRetry: false, RetriesLeft: left}, nil
	}

	logx.WithContext(ctx).Infof("[分片重试] 已重置, uploadId=%s, chunk=%d, retryCount=%d/%d",
		sess.UploadId, chunkNumber, chunk.RetryCount, sess.MaxRetriesPerChunk)
	s.emit(ctx, newEvent(EventChunkRetry, sess, chunkNumber, ""))
	return &RetryResult{CanRetry: true, RetriesLeft: left}, nil
}
