package uploadcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/code"
	"github.com/zeromicro/go-zero/core/logx"
)

const (
	DefaultMaxFileSize      = 10 * 1024 * 1024 * 1024 // 10GB
	DefaultMinChunkSize     = 1024
	DefaultMaxChunkSize     = 10 * 1024 * 1024 // 10MB
	DefaultChunkSize        = 1024 * 1024      // 1MB
	DefaultMaxTotalChunks   = 100000
	DefaultMaxRetries       = 3
	DefaultConcurrentChunks = 3
	DefaultSessionTimeout   = 24 * time.Hour
	DefaultAssemblyWorkers  = 4
	DefaultCleanupBatchSize = 200

	MaxRetriesLimit       = 10
	MaxConcurrentChunks   = 10
	speedWindowChunks     = 10
	cleanupMaxBatchRounds = 10
)

// ArtifactStore 最终产物的持久化存储
type ArtifactStore interface {
	// Commit 把校验通过的暂存文件发布到 key，返回最终位置
	Commit(ctx context.Context, stagedPath, key string) (string, error)
	Remove(ctx context.Context, location string) error
}

// Options 上传核心配置
type Options struct {
	DataDir                 string
	MaxFileSize             int64
	MinChunkSize            int64
	MaxChunkSize            int64
	DefaultChunkSize        int64
	MaxTotalChunks          int64
	DefaultMaxRetries       int64
	DefaultConcurrentChunks int64
	SessionExpiration       time.Duration
	AssemblyWorkers         int64
	CleanupBatchSize        int64
}

// DefaultOptions 返回默认配置，DataDir 需要调用方指定
func DefaultOptions() Options {
	return Options{
		MaxFileSize:             DefaultMaxFileSize,
		MinChunkSize:            DefaultMinChunkSize,
		MaxChunkSize:            DefaultMaxChunkSize,
		DefaultChunkSize:        DefaultChunkSize,
		MaxTotalChunks:          DefaultMaxTotalChunks,
		DefaultMaxRetries:       DefaultMaxRetries,
		DefaultConcurrentChunks: DefaultConcurrentChunks,
		SessionExpiration:       DefaultSessionTimeout,
		AssemblyWorkers:         DefaultAssemblyWorkers,
		CleanupBatchSize:        DefaultCleanupBatchSize,
	}
}

// Service 分片上传服务，显式构造并注入到调用方
type Service struct {
	opts      Options
	store     Store
	governor  Governor
	artifacts ArtifactStore
	events    EventPublisher
	chunks    *ChunkFS
	assembler *Assembler
	now       func() time.Time
}

type Option func(*Service)

func WithGovernor(g Governor) Option {
	return func(s *Service) { s.governor = g }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(opts Options, store Store, artifacts ArtifactStore, options ...Option) (*Service, error) {
	if store == nil || artifacts == nil {
		return nil, errors.New("uploadcore: store 与 artifacts 不能为空")
	}
	if opts.DataDir == "" {
		return nil, errors.New("uploadcore: DataDir 不能为空")
	}
	if opts.MinChunkSize <= 0 || opts.MaxChunkSize < opts.MinChunkSize {
		return nil, fmt.Errorf("uploadcore: 分片大小范围无效 [%d, %d]", opts.MinChunkSize, opts.MaxChunkSize)
	}
	if opts.AssemblyWorkers <= 0 {
		opts.AssemblyWorkers = DefaultAssemblyWorkers
	}
	if opts.CleanupBatchSize <= 0 {
		opts.CleanupBatchSize = DefaultCleanupBatchSize
	}

	chunks, err := NewChunkFS(opts.DataDir)
	if err != nil {
		return nil, err
	}

	s := &Service{
		opts:      opts,
		store:     store,
		governor:  NewMemoryGovernor(),
		artifacts: artifacts,
		events:    noopPublisher{},
		chunks:    chunks,
		now:       time.Now,
	}
	for _, o := range options {
		o(s)
	}
	s.assembler = newAssembler(s, opts.AssemblyWorkers)

	logx.Infof("[上传会话] 服务初始化完成, dataDir=%s, maxFileSize=%d, chunkSize=[%d,%d], workers=%d",
		opts.DataDir, opts.MaxFileSize, opts.MinChunkSize, opts.MaxChunkSize, opts.AssemblyWorkers)
	return s, nil
}

// Assembler 合并任务执行器
func (s *Service) Assembler() *Assembler {
	return s.assembler
}

// Close 等待进行中的合并任务结束
func (s *Service) Close(ctx context.Context) error {
	return s.assembler.Close(ctx)
}

// loadSession 按租户加载会话，不存在统一返回 SessionNotFound
func (s *Service) loadSession(ctx context.Context, cooperativeId uint64, uploadId string) (*Session, error) {
	if uploadId == "" {
		return nil, code.SessionNotFound
	}
	sess, err := s.store.FindSession(ctx, cooperativeId, uploadId)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, code.SessionNotFound
		}
		return nil, fmt.Errorf("查询上传会话失败: %w", err)
	}
	return sess, nil
}

// checkWritable 会话是否还能接受分片相关操作
func (s *Service) checkWritable(sess *Session, now time.Time) error {
	switch {
	case sess.Status == SessionCancelled:
		return code.SessionCancelled
	case sess.Status == SessionExpired, sess.IsExpiredAt(now):
		return code.SessionExpired
	case sess.Status == SessionCompleted, sess.Status == SessionFailed:
		return code.SessionFinalized
	case sess.Status == SessionAssembling:
		return code.SessionAssembling
	}
	return nil
}

// emit 记录审计日志并发布事件
func (s *Service) emit(ctx context.Context, evt Event) {
	logx.WithContext(ctx).Infof("[上传审计] event=%s, uploadId=%s, cooperativeId=%d, status=%s, chunk=%d, progress=%d/%d",
		evt.Type, evt.UploadId, evt.CooperativeId, evt.Status, evt.ChunkNumber, evt.ChunksUploaded, evt.TotalChunks)
	if err := s.events.Publish(ctx, evt); err != nil {
		logx.WithContext(ctx).Errorf("[上传审计] 事件发布失败, event=%s, uploadId=%s, error=%v", evt.Type, evt.UploadId, err)
	}
}

// cleanupFiles 删除会话临时文件并记录清理时间
func (s *Service) cleanupFiles(ctx context.Context, sess *Session) bool {
	if err := s.chunks.RemoveSession(sess.UploadId); err != nil {
		logx.WithContext(ctx).Errorf("[会话清理] 删除临时文件失败, uploadId=%s, error=%+v", sess.UploadId, err)
		return false
	}
	if err := s.store.MarkCleaned(ctx, sess.Id, s.now()); err != nil {
		logx.WithContext(ctx).Errorf("[会话清理] 记录清理时间失败, uploadId=%s, error=%v", sess.UploadId, err)
		return false
	}
	return true
}
