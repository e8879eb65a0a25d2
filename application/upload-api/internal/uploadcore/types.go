package uploadcore

import (
	"fmt"
	"math"
	"time"
)

// SessionStatus 上传会话状态
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionUploading  SessionStatus = "uploading"
	SessionAssembling SessionStatus = "assembling"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionExpired    SessionStatus = "expired"
	SessionCancelled  SessionStatus = "cancelled"
)

// IsTerminal 终态会话不再接受任何变更
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionExpired, SessionCancelled:
		return true
	}
	return false
}

// ParseSessionStatus 解析数据库中的状态值
func ParseSessionStatus(v string) (SessionStatus, error) {
	switch s := SessionStatus(v); s {
	case SessionPending, SessionUploading, SessionAssembling, SessionCompleted,
		SessionFailed, SessionExpired, SessionCancelled:
		return s, nil
	}
	return "", fmt.Errorf("未知的会话状态: %q", v)
}

// ChunkStatus 分片状态
type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "pending"
	ChunkUploading ChunkStatus = "uploading"
	ChunkUploaded  ChunkStatus = "uploaded"
	ChunkFailed    ChunkStatus = "failed"
)

func ParseChunkStatus(v string) (ChunkStatus, error) {
	switch s := ChunkStatus(v); s {
	case ChunkPending, ChunkUploading, ChunkUploaded, ChunkFailed:
		return s, nil
	}
	return "", fmt.Errorf("未知的分片状态: %q", v)
}

// Session 上传会话
type Session struct {
	Id                      uint64
	UploadId                string
	CooperativeId           uint64
	UploadedBy              string
	Filename                string
	FileSize                int64
	ChunkSize               int64
	TotalChunks             int64
	FileHash                string // 客户端声明的整体 SHA-256，可为空
	ComputedHash            string
	Status                  SessionStatus
	ChunksUploaded          int64
	BytesUploaded           int64
	MaxRetriesPerChunk      int64
	ConcurrentChunksAllowed int64
	StoragePath             string
	ErrorCode               string
	ErrorMessage            string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	ExpiresAt               time.Time
	CompletedAt             time.Time
	CleanedAt               time.Time
}

// IsExpiredAt 到达 expiresAt 即视为过期
func (s *Session) IsExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ExpectedChunkSize 返回指定序号分片的应有大小，序号越界时 ok 为 false
func (s *Session) ExpectedChunkSize(chunkNumber int64) (size int64, ok bool) {
	if chunkNumber < 0 || chunkNumber >= s.TotalChunks {
		return 0, false
	}
	if chunkNumber == s.TotalChunks-1 {
		return s.FileSize - s.ChunkSize*(s.TotalChunks-1), true
	}
	return s.ChunkSize, true
}

// Percentage 按字节计算的进度，保留两位小数
func (s *Session) Percentage() float64 {
	if s.FileSize <= 0 {
		return 0
	}
	p := float64(s.BytesUploaded) * 100 / float64(s.FileSize)
	return math.Round(p*100) / 100
}

// Chunk 分片记录
type Chunk struct {
	Id             uint64
	SessionId      uint64
	ChunkNumber    int64
	ExpectedSize   int64
	ChunkHash      string
	Status         ChunkStatus
	UploadAttempts int64
	RetryCount     int64
	UploadSpeedBps int64
	StoragePath    string
	ErrorMessage   string
	StartedAt      time.Time
	CompletedAt    time.Time
	LastRetryAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TotalChunks 计算分片总数 ceil(fileSize/chunkSize)
func TotalChunks(fileSize, chunkSize int64) int64 {
	if fileSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return (fileSize + chunkSize - 1) / chunkSize
}

// CreateSessionSpec 创建会话的入参，零值字段使用配置默认值
type CreateSessionSpec struct {
	CooperativeId           uint64
	UploadedBy              string
	Filename                string
	FileSize                int64
	ChunkSize               int64
	FileHash                string
	MaxRetriesPerChunk      *int64
	ConcurrentChunksAllowed int64
}

// CreateSessionResult 创建会话结果
type CreateSessionResult struct {
	SessionId   uint64
	UploadId    string
	ChunkSize   int64
	TotalChunks int64
	ExpiresAt   time.Time
}

// Progress 会话进度快照
type Progress struct {
	UploadId       string
	Status         SessionStatus
	ChunksUploaded int64
	TotalChunks    int64
	BytesUploaded  int64
	FileSize       int64
	Percentage     float64
	UploadSpeedBps int64
	EtaSeconds     int64
	ErrorCode      string
	ErrorMessage   string
	StoragePath    string
}

// UploadChunkRequest 分片上传请求
type UploadChunkRequest struct {
	CooperativeId uint64
	UploadId      string
	ChunkNumber   int64
	Data          []byte
	Hash          string // 客户端声明的分片 SHA-256，可为空
	IsLastChunk   bool
	FileSize      int64 // 客户端回传的文件大小，0 表示未回传
}

// UploadChunkResult 分片上传结果
type UploadChunkResult struct {
	ChunkId         uint64
	ChunkHash       string
	NextChunkNumber int64 // 全部分片已上传时为 -1
	Progress        *Progress
}

// ChunkInfo 分片状态及重试资格
type ChunkInfo struct {
	ChunkNumber    int64
	ExpectedSize   int64
	Status         ChunkStatus
	ChunkHash      string
	UploadAttempts int64
	RetryCount     int64
	RetriesLeft    int64
	CanRetry       bool
	UploadSpeedBps int64
	ErrorMessage   string
	CompletedAt    time.Time
}

// RetryResult 重试申请结果
type RetryResult struct {
	CanRetry    bool
	RetriesLeft int64
}

// ResumeInfo 断点续传信息
type ResumeInfo struct {
	UploadId        string
	Status          SessionStatus
	CanResume       bool
	ChunkSize       int64
	TotalChunks     int64
	CompletedChunks []int64
	MissingChunks   []int64
	FailedChunks    []int64
}

// CleanupResult 过期清理结果
type CleanupResult struct {
	Expired     int64
	Cleaned     int64
	Reassembled int64
}
