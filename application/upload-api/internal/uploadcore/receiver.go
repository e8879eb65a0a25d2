package uploadcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/code"
	"github.com/zeromicro/go-zero/core/logx"
)

// ChunkRetryGuidance 分片校验失败时返回给客户端的重试指引
type ChunkRetryGuidance struct {
	ChunkNumber int64 `json:"chunkNumber"`
	RetryCount  int64 `json:"retryCount"`
	RetriesLeft int64 `json:"retriesLeft"`
	CanRetry    bool  `json:"canRetry"`
}

// UploadChunk 接收单个分片。同一序号重复上传以最后一次为准（至少一次投递语义）
func (s *Service) UploadChunk(ctx context.Context, req UploadChunkRequest) (*UploadChunkResult, error) {
	start := s.now()
	logger := logx.WithContext(ctx)

	sess, err := s.loadSession(ctx, req.CooperativeId, req.UploadId)
	if err != nil {
		return nil, err
	}
	if err := s.checkWritable(sess, start); err != nil {
		return nil, err
	}
	if req.FileSize > 0 && req.FileSize != sess.FileSize {
		return nil, code.ValidationError.WithMessage(fmt.Sprintf("文件大小与会话声明不一致: %d != %d", req.FileSize, sess.FileSize))
	}

	expected, ok := sess.ExpectedChunkSize(req.ChunkNumber)
	if !ok {
		return nil, code.ValidationError.WithMessage(fmt.Sprintf("分片序号 %d 超出范围 [0, %d)", req.ChunkNumber, sess.TotalChunks))
	}
	if req.IsLastChunk && req.ChunkNumber != sess.TotalChunks-1 {
		return nil, code.ValidationError.WithMessage(fmt.Sprintf("分片 %d 不是最后一个分片", req.ChunkNumber))
	}
	if size := int64(len(req.Data)); size != expected {
		return nil, code.ChunkSizeMismatch.WithMessage(fmt.Sprintf("分片 %d 大小不匹配: 期望 %d, 实际 %d", req.ChunkNumber, expected, size))
	}

	sum := sha256.Sum256(req.Data)
	chunkHash := hex.EncodeToString(sum[:])
	if req.Hash != "" {
		declared, err := normalizeHash(req.Hash)
		if err != nil {
			return nil, err
		}
		if declared != chunkHash {
			return nil, s.rejectCorruptChunk(ctx, sess, req.ChunkNumber, expected, declared, chunkHash)
		}
	}

	existing, err := s.store.FindChunk(ctx, sess.Id, req.ChunkNumber)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("查询分片失败: %w", err)
	}
	if existing != nil && existing.Status == ChunkFailed && existing.RetryCount >= sess.MaxRetriesPerChunk {
		return nil, code.ChunkRetryExhausted.WithMessage(fmt.Sprintf("分片 %d 已重试 %d 次，请重新创建上传会话", req.ChunkNumber, existing.RetryCount))
	}

	release, ok, err := s.governor.TryAcquire(ctx, sess.UploadId, sess.ConcurrentChunksAllowed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, code.Busy
	}
	defer release()

	chunk, err := s.store.BeginAttempt(ctx, sess.Id, req.ChunkNumber, expected, start)
	if err != nil {
		return nil, fmt.Errorf("记录分片上传失败: %w", err)
	}

	path, err := s.chunks.WriteChunk(sess.UploadId, req.ChunkNumber, req.Data)
	if err != nil {
		logger.Errorf("[分片上传] 写入失败, uploadId=%s, chunk=%d, error=%+v", sess.UploadId, req.ChunkNumber, err)
		s.abortChunk(ctx, sess, chunk, err.Error())
		return nil, code.StorageIOError
	}

	// 落盘后复核会话，过期或取消的会话不保留分片
	fresh, err := s.store.GetSession(ctx, sess.Id)
	if err != nil {
		return nil, fmt.Errorf("查询上传会话失败: %w", err)
	}
	if err := s.checkWritable(fresh, s.now()); err != nil {
		if !errors.Is(err, code.SessionAssembling) {
			if rmErr := s.chunks.Remove(path); rmErr != nil {
				logger.Errorf("[分片上传] 清理分片失败, path=%s, error=%v", path, rmErr)
			}
		}
		s.abortChunk(ctx, fresh, chunk, err.Error())
		return nil, err
	}

	completedAt := s.now()
	// 只有首次完成才计数，重复上传不重复累加；失败时分片与计数一起回滚，客户端重传即可
	if _, err := s.store.CompleteAttempt(ctx, chunk, ChunkReceipt{
		ChunkHash:      chunkHash,
		StoragePath:    path,
		UploadSpeedBps: throughput(expected, completedAt.Sub(start)),
		CompletedAt:    completedAt,
	}); err != nil {
		logger.Errorf("[分片上传] 提交分片失败, uploadId=%s, chunk=%d, error=%v", sess.UploadId, req.ChunkNumber, err)
		s.abortChunk(ctx, sess, chunk, err.Error())
		return nil, fmt.Errorf("更新分片状态失败: %w", err)
	}
	release()

	if fresh, err = s.store.GetSession(ctx, sess.Id); err != nil {
		return nil, fmt.Errorf("查询上传会话失败: %w", err)
	}
	s.emit(ctx, newEvent(EventChunkUploaded, fresh, req.ChunkNumber, ""))

	if fresh.ChunksUploaded >= fresh.TotalChunks &&
		(fresh.Status == SessionPending || fresh.Status == SessionUploading) {
		s.assembler.Submit(fresh)
	}

	next, err := s.nextMissingChunk(ctx, fresh, req.ChunkNumber)
	if err != nil {
		return nil, err
	}

	return &UploadChunkResult{
		ChunkId:         chunk.Id,
		ChunkHash:       chunkHash,
		NextChunkNumber: next,
		Progress:        s.buildProgress(ctx, fresh),
	}, nil
}

// rejectCorruptChunk 记录校验失败的尝试，attempts 增加而 retryCount 不变
func (s *Service) rejectCorruptChunk(ctx context.Context, sess *Session, chunkNumber, expected int64, declared, actual string) error {
	msg := fmt.Sprintf("分片校验失败: 声明 %s, 实际 %s", declared, actual)
	chunk, err := s.store.RecordFailure(ctx, sess.Id, chunkNumber, expected, msg, s.now())
	if err != nil {
		return fmt.Errorf("记录分片失败: %w", err)
	}
	logx.WithContext(ctx).Infof("[分片上传] 校验失败, uploadId=%s, chunk=%d, attempts=%d", sess.UploadId, chunkNumber, chunk.UploadAttempts)
	s.emit(ctx, newEvent(EventChunkFailed, sess, chunkNumber, msg))

	left := retriesLeft(sess, chunk)
	return code.ChunkIntegrityMismatch.WithData(ChunkRetryGuidance{
		ChunkNumber: chunkNumber,
		RetryCount:  chunk.RetryCount,
		RetriesLeft: left,
		CanRetry:    chunk.Status == ChunkFailed && left > 0,
	})
}

func (s *Service) abortChunk(ctx context.Context, sess *Session, chunk *Chunk, msg string) {
	if err := s.store.AbortAttempt(ctx, chunk.Id, msg); err != nil {
		logx.WithContext(ctx).Errorf("[分片上传] 标记分片失败出错, uploadId=%s, chunk=%d, error=%v", sess.UploadId, chunk.ChunkNumber, err)
	}
	s.emit(ctx, newEvent(EventChunkFailed, sess, chunk.ChunkNumber, msg))
}

// nextMissingChunk 从当前序号之后循环查找第一个未上传的分片，全部完成返回 -1
func (s *Service) nextMissingChunk(ctx context.Context, sess *Session, current int64) (int64, error) {
	if sess.ChunksUploaded >= sess.TotalChunks {
		return -1, nil
	}
	chunks, err := s.store.ListChunks(ctx, sess.Id)
	if err != nil {
		return 0, fmt.Errorf("查询分片列表失败: %w", err)
	}
	uploaded := make(map[int64]struct{}, len(chunks))
	for _, c := range chunks {
		if c.Status == ChunkUploaded {
			uploaded[c.ChunkNumber] = struct{}{}
		}
	}
	for i := int64(1); i <= sess.TotalChunks; i++ {
		n := (current + i) % sess.TotalChunks
		if _, ok := uploaded[n]; !ok {
			return n, nil
		}
	}
	return -1, nil
}

// GetChunk 分片状态与重试资格
func (s *Service) GetChunk(ctx context.Context, cooperativeId uint64, uploadId string, chunkNumber int64) (*ChunkInfo, error) {
	sess, err := s.loadSession(ctx, cooperativeId, uploadId)
	if err != nil {
		return nil, err
	}
	// 过期会话的分片一律不可见，已完成的会话仍可查询
	if sess.Status == SessionExpired || (!sess.Status.IsTerminal() && sess.IsExpiredAt(s.now())) {
		return nil, code.SessionExpired
	}
	expected, ok := sess.ExpectedChunkSize(chunkNumber)
	if !ok {
		return nil, code.ValidationError.WithMessage(fmt.Sprintf("分片序号 %d 超出范围 [0, %d)", chunkNumber, sess.TotalChunks))
	}

	chunk, err := s.store.FindChunk(ctx, sess.Id, chunkNumber)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, fmt.Errorf("查询分片失败: %w", err)
		}
		// 尚未尝试过的分片视为 pending
		chunk = &Chunk{ChunkNumber: chunkNumber, ExpectedSize: expected, Status: ChunkPending}
	}

	left := retriesLeft(sess, chunk)
	return &ChunkInfo{
		ChunkNumber:    chunk.ChunkNumber,
		ExpectedSize:   expected,
		Status:         chunk.Status,
		ChunkHash:      chunk.ChunkHash,
		UploadAttempts: chunk.UploadAttempts,
		RetryCount:     chunk.RetryCount,
		RetriesLeft:    left,
		CanRetry:       chunk.Status == ChunkFailed && left > 0 && s.checkWritable(sess, s.now()) == nil,
		UploadSpeedBps: chunk.UploadSpeedBps,
		ErrorMessage:   chunk.ErrorMessage,
		CompletedAt:    chunk.CompletedAt,
	}, nil
}

func retriesLeft(sess *Session, chunk *Chunk) int64 {
	if left := sess.MaxRetriesPerChunk - chunk.RetryCount; left > 0 {
		return left
	}
	return 0
}

// throughput 字节每秒，耗时过短时按 1ms 计算
func throughput(bytes int64, elapsed time.Duration) int64 {
	if elapsed < time.Millisecond {
		elapsed = time.Millisecond
	}
	return int64(float64(bytes) / elapsed.Seconds())
}
