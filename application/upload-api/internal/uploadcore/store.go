package uploadcore

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound 存储层未找到记录
var ErrRecordNotFound = errors.New("upload record not found")

// StatusChange 状态迁移时一并写入的字段，零值不写
type StatusChange struct {
	ErrorCode    string
	ErrorMessage string
	StoragePath  string
	ComputedHash string
	CompletedAt  time.Time
}

// SessionStore 会话存储。计数与状态迁移都必须在存储层原子完成
type SessionStore interface {
	InsertSession(ctx context.Context, s *Session) (uint64, error)
	// FindSession 按租户与公开 uploadId 查询，可走缓存
	FindSession(ctx context.Context, cooperativeId uint64, uploadId string) (*Session, error)
	// GetSession 按主键读取最新状态，不走缓存
	GetSession(ctx context.Context, id uint64) (*Session, error)
	// TransitionStatus 状态 CAS，当前状态不在 from 中时返回 false
	TransitionStatus(ctx context.Context, id uint64, from []SessionStatus, to SessionStatus, change StatusChange) (bool, error)
	// BeginAssembly 仅当全部分片已上传且状态为 pending/uploading 时迁移为 assembling
	BeginAssembly(ctx context.Context, id uint64) (bool, error)
	MarkCleaned(ctx context.Context, id uint64, at time.Time) error
	// FindExpiredSessions 过期、未完成且尚未清理的会话
	FindExpiredSessions(ctx context.Context, now time.Time, limit int64) ([]*Session, error)
	// FindStalledSessions 分片已齐但仍停留在 uploading 的会话
	FindStalledSessions(ctx context.Context, limit int64) ([]*Session, error)
}

// ChunkStore 分片存储
type ChunkStore interface {
	FindChunk(ctx context.Context, sessionId uint64, chunkNumber int64) (*Chunk, error)
	// ListChunks 按 chunk_number 升序
	ListChunks(ctx context.Context, sessionId uint64) ([]*Chunk, error)
	// RecentUploaded 最近完成的分片，按完成时间倒序
	RecentUploaded(ctx context.Context, sessionId uint64, limit int64) ([]*Chunk, error)
	// BeginAttempt 记录一次上传尝试，不存在则创建；已上传的分片保持 uploaded
	BeginAttempt(ctx context.Context, sessionId uint64, chunkNumber, expectedSize int64, at time.Time) (*Chunk, error)
	// RecordFailure 记录一次失败尝试，已上传的分片只记录错误不降级
	RecordFailure(ctx context.Context, sessionId uint64, chunkNumber, expectedSize int64, msg string, at time.Time) (*Chunk, error)
	// CompleteAttempt 迁移为 uploaded，首次完成返回 true。
	// 首次完成时会话 chunks_uploaded+1、bytes_uploaded+ExpectedSize，pending 迁移为 uploading，
	// 分片状态与会话计数必须在同一个原子操作内提交
	CompleteAttempt(ctx context.Context, chunk *Chunk, receipt ChunkReceipt) (bool, error)
	// AbortAttempt 写入失败时把未完成的分片标记为 failed
	AbortAttempt(ctx context.Context, chunkId uint64, msg string) error
	// ResetForRetry failed 且 retry_count < maxRetries 时重置为 pending
	ResetForRetry(ctx context.Context, sessionId uint64, chunkNumber, maxRetries int64, at time.Time) (bool, error)
}

// ChunkReceipt 分片落盘后的回执
type ChunkReceipt struct {
	ChunkHash      string
	StoragePath    string
	UploadSpeedBps int64
	CompletedAt    time.Time
}

// Store 会话与分片存储的组合
type Store interface {
	SessionStore
	ChunkStore
}
