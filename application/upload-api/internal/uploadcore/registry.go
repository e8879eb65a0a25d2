package uploadcore

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/code"
	"github.com/zeromicro/go-zero/core/logx"
)

const maxFilenameLength = 255

// CreateSession 校验文件规划并创建 pending 会话
func (s *Service) CreateSession(ctx context.Context, spec CreateSessionSpec) (*CreateSessionResult, error) {
	if spec.FileSize <= 0 {
		return nil, code.FileEmpty
	}
	if spec.FileSize > s.opts.MaxFileSize {
		return nil, code.FileTooLarge.WithMessage(fmt.Sprintf("文件大小超过限制: %d > %d", spec.FileSize, s.opts.MaxFileSize))
	}

	filename, err := normalizeFilename(spec.Filename)
	if err != nil {
		return nil, err
	}

	chunkSize, err := s.resolveChunkSize(spec.ChunkSize)
	if err != nil {
		return nil, err
	}
	totalChunks := TotalChunks(spec.FileSize, chunkSize)
	if s.opts.MaxTotalChunks > 0 && totalChunks > s.opts.MaxTotalChunks {
		return nil, code.InvalidChunkSize.WithMessage(fmt.Sprintf("分片数量 %d 超过上限 %d，请增大分片大小", totalChunks, s.opts.MaxTotalChunks))
	}

	fileHash, err := normalizeHash(spec.FileHash)
	if err != nil {
		return nil, err
	}

	maxRetries := s.opts.DefaultMaxRetries
	if spec.MaxRetriesPerChunk != nil {
		maxRetries = *spec.MaxRetriesPerChunk
	}
	if maxRetries < 0 || maxRetries > MaxRetriesLimit {
		return nil, code.ValidationError.WithMessage(fmt.Sprintf("maxRetriesPerChunk 取值范围为 0-%d", MaxRetriesLimit))
	}

	concurrent := spec.ConcurrentChunksAllowed
	if concurrent == 0 {
		concurrent = s.opts.DefaultConcurrentChunks
	}
	if concurrent < 1 || concurrent > MaxConcurrentChunks {
		return nil, code.ValidationError.WithMessage(fmt.Sprintf("concurrentChunksAllowed 取值范围为 1-%d", MaxConcurrentChunks))
	}

	now := s.now()
	sess := &Session{
		UploadId:                uuid.NewString(),
		CooperativeId:           spec.CooperativeId,
		UploadedBy:              spec.UploadedBy,
		Filename:                filename,
		FileSize:                spec.FileSize,
		ChunkSize:               chunkSize,
		TotalChunks:             totalChunks,
		FileHash:                fileHash,
		Status:                  SessionPending,
		MaxRetriesPerChunk:      maxRetries,
		ConcurrentChunksAllowed: concurrent,
		CreatedAt:               now,
		UpdatedAt:               now,
		ExpiresAt:               now.Add(s.opts.SessionExpiration),
	}

	id, err := s.store.InsertSession(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("保存上传会话失败: %w", err)
	}
	sess.Id = id

	logx.WithContext(ctx).Infof("[上传会话] 创建成功, uploadId=%s, cooperativeId=%d, file=%s, size=%d, chunkSize=%d, chunks=%d",
		sess.UploadId, sess.CooperativeId, sess.Filename, sess.FileSize, sess.ChunkSize, sess.TotalChunks)
	s.emit(ctx, newEvent(EventSessionCreated, sess, -1, ""))

	return &CreateSessionResult{
		SessionId:   sess.Id,
		UploadId:    sess.UploadId,
		ChunkSize:   sess.ChunkSize,
		TotalChunks: sess.TotalChunks,
		ExpiresAt:   sess.ExpiresAt,
	}, nil
}

// resolveChunkSize 未指定使用默认值，指定值收敛到 [min, max]
func (s *Service) resolveChunkSize(requested int64) (int64, error) {
	if requested < 0 {
		return 0, code.InvalidChunkSize.WithMessage(fmt.Sprintf("分片大小不能为负数: %d", requested))
	}
	size := requested
	if size == 0 {
		size = s.opts.DefaultChunkSize
	}
	if size < s.opts.MinChunkSize {
		size = s.opts.MinChunkSize
	}
	if size > s.opts.MaxChunkSize {
		size = s.opts.MaxChunkSize
	}
	return size, nil
}

// GetProgress 会话进度快照
func (s *Service) GetProgress(ctx context.Context, cooperativeId uint64, uploadId string) (*Progress, error) {
	sess, err := s.loadSession(ctx, cooperativeId, uploadId)
	if err != nil {
		return nil, err
	}
	return s.buildProgress(ctx, sess), nil
}

func (s *Service) buildProgress(ctx context.Context, sess *Session) *Progress {
	p := &Progress{
		UploadId:       sess.UploadId,
		Status:         sess.Status,
		ChunksUploaded: sess.ChunksUploaded,
		TotalChunks:    sess.TotalChunks,
		BytesUploaded:  sess.BytesUploaded,
		FileSize:       sess.FileSize,
		Percentage:     sess.Percentage(),
		ErrorCode:      sess.ErrorCode,
		ErrorMessage:   sess.ErrorMessage,
		StoragePath:    sess.StoragePath,
	}
	if sess.Status.IsTerminal() {
		return p
	}

	recent, err := s.store.RecentUploaded(ctx, sess.Id, speedWindowChunks)
	if err != nil {
		// 速度估算失败不影响进度查询
		logx.WithContext(ctx).Errorf("[上传会话] 查询最近分片失败, uploadId=%s, error=%v", sess.UploadId, err)
		return p
	}
	p.UploadSpeedBps = estimateSpeed(recent)
	if remaining := sess.FileSize - sess.BytesUploaded; p.UploadSpeedBps > 0 && remaining > 0 {
		p.EtaSeconds = (remaining + p.UploadSpeedBps - 1) / p.UploadSpeedBps
	}
	return p
}

// estimateSpeed 按最近完成分片的时间窗口估算速度，recent 按完成时间倒序
func estimateSpeed(recent []*Chunk) int64 {
	switch len(recent) {
	case 0:
		return 0
	case 1:
		return recent[0].UploadSpeedBps
	}

	window := recent[0].CompletedAt.Sub(recent[len(recent)-1].CompletedAt)
	if window <= 0 {
		var total int64
		for _, c := range recent {
			total += c.UploadSpeedBps
		}
		return total / int64(len(recent))
	}

	// 最早一个分片是窗口起点，其字节不计入
	var bytes int64
	for _, c := range recent[:len(recent)-1] {
		bytes += c.ExpectedSize
	}
	return int64(float64(bytes) / window.Seconds())
}

// CancelSession 用户取消会话，已取消时幂等返回
func (s *Service) CancelSession(ctx context.Context, cooperativeId uint64, uploadId string) (*Progress, error) {
	sess, err := s.loadSession(ctx, cooperativeId, uploadId)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 3; attempt++ {
		switch {
		case sess.Status == SessionCancelled:
			return s.buildProgress(ctx, sess), nil
		case sess.Status == SessionExpired:
			return nil, code.SessionExpired
		case sess.Status.IsTerminal():
			return nil, code.SessionFinalized
		case sess.Status != SessionAssembling && sess.IsExpiredAt(s.now()):
			// 已过期但尚未被清理任务标记，交给清理任务处理
			return nil, code.SessionExpired
		}

		prev := sess.Status
		ok, err := s.store.TransitionStatus(ctx, sess.Id, []SessionStatus{prev}, SessionCancelled, StatusChange{
			ErrorMessage: "用户取消",
		})
		if err != nil {
			return nil, fmt.Errorf("取消上传会话失败: %w", err)
		}
		if ok {
			sess.Status = SessionCancelled
			logx.WithContext(ctx).Infof("[上传会话] 已取消, uploadId=%s, prevStatus=%s", sess.UploadId, prev)
			// 合并中的会话由合并任务丢弃产物并清理
			if prev != SessionAssembling {
				s.cleanupFiles(ctx, sess)
			}
			s.emit(ctx, newEvent(EventSessionCancelled, sess, -1, ""))
			return s.buildProgress(ctx, sess), nil
		}

		// 状态已被并发修改，重新读取后再判断
		if sess, err = s.store.GetSession(ctx, sess.Id); err != nil {
			return nil, fmt.Errorf("查询上传会话失败: %w", err)
		}
	}
	return nil, code.SessionAssembling.WithMessage("会话状态变更频繁，请稍后重试")
}

func normalizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "", name == ".", name == "..":
		return "", code.ValidationError.WithMessage("文件名无效")
	case len(name) > maxFilenameLength:
		return "", code.ValidationError.WithMessage(fmt.Sprintf("文件名长度不能超过 %d", maxFilenameLength))
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return "", code.ValidationError.WithMessage("文件名不能包含路径分隔符")
	}
	return name, nil
}

// normalizeHash 统一为小写十六进制 SHA-256
func normalizeHash(h string) (string, error) {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "sha256:")
	if h == "" {
		return "", nil
	}
	if len(h) != 64 {
		return "", code.ValidationError.WithMessage("哈希必须是 64 位十六进制 SHA-256")
	}
	if _, err := hex.DecodeString(h); err != nil {
		return "", code.ValidationError.WithMessage("哈希必须是 64 位十六进制 SHA-256")
	}
	return h, nil
}
