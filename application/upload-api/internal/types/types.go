package types

type CreateSessionRequest struct {
	Filename                string `json:"filename" validate:"required,max=255"`                          // 原始文件名
	FileSize                int64  `json:"fileSize"`                                                       // 文件总大小（字节）
	ChunkSize               int64  `json:"chunkSize,optional" validate:"gte=0"`                           // 期望分片大小，0 使用默认值
	FileHash                string `json:"fileHash,optional" validate:"omitempty,max=71"`                 // 整体 SHA-256，十六进制
	MaxRetriesPerChunk      *int64 `json:"maxRetriesPerChunk,optional" validate:"omitempty,gte=0,lte=10"` // 单分片最大重试次数
	ConcurrentChunksAllowed int64  `json:"concurrentChunksAllowed,optional" validate:"gte=0,lte=10"`     // 会话内并发分片数
}

type CreateSessionResponse struct {
	SessionId   uint64 `json:"sessionId"`
	UploadId    string `json:"uploadId"`
	ChunkSize   int64  `json:"chunkSize"`
	TotalChunks int64  `json:"totalChunks"`
	ExpiresAt   int64  `json:"expiresAt"`
}

type SessionIdRequest struct {
	Id string `path:"id" validate:"required,max=64"` // 会话 uploadId
}

type ChunkIdRequest struct {
	Id          string `path:"id" validate:"required,max=64"`
	ChunkNumber int64  `path:"n" validate:"gte=0"`
}

// UploadChunkRequest 分片内容通过请求体原样传输，元数据放在请求头
type UploadChunkRequest struct {
	Id          string `path:"id" validate:"required,max=64"`
	ChunkNumber int64  `path:"n" validate:"gte=0"`
	ChunkHash   string `header:"X-Chunk-Hash,optional" validate:"omitempty,max=71"`
	IsLastChunk string `header:"X-Is-Last-Chunk,optional" default:"false" validate:"omitempty,oneof=true false 1 0"`
	FileSize    int64  `header:"X-File-Size,optional" validate:"gte=0"`
}

type UploadChunkResponse struct {
	ChunkId         uint64           `json:"chunkId"`
	ChunkHash       string           `json:"chunkHash"`
	NextChunkNumber int64            `json:"nextChunkNumber"`
	Progress        ProgressResponse `json:"progress"`
}

type ProgressResponse struct {
	UploadId       string  `json:"uploadId"`
	Status         string  `json:"status"`
	ChunksUploaded int64   `json:"chunksUploaded"`
	TotalChunks    int64   `json:"totalChunks"`
	BytesUploaded  int64   `json:"bytesUploaded"`
	FileSize       int64   `json:"fileSize"`
	Percentage     float64 `json:"percentage"`
	UploadSpeedBps int64   `json:"uploadSpeedBps"`
	EtaSeconds     int64   `json:"etaSeconds"`
	ErrorCode      string  `json:"errorCode,omitempty"`
	ErrorMessage   string  `json:"errorMessage,omitempty"`
	StoragePath    string  `json:"storagePath,omitempty"`
}

type ChunkInfoResponse struct {
	ChunkNumber    int64  `json:"chunkNumber"`
	ExpectedSize   int64  `json:"expectedSize"`
	Status         string `json:"status"`
	ChunkHash      string `json:"chunkHash"`
	UploadAttempts int64  `json:"uploadAttempts"`
	RetryCount     int64  `json:"retryCount"`
	RetriesLeft    int64  `json:"retriesLeft"`
	CanRetry       bool   `json:"canRetry"`
	UploadSpeedBps int64  `json:"uploadSpeedBps"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	CompletedAt    int64  `json:"completedAt"`
}

type RetryChunkResponse struct {
	CanRetry    bool  `json:"canRetry"`
	RetriesLeft int64 `json:"retriesLeft"`
}

type ResumeSessionResponse struct {
	UploadId        string  `json:"uploadId"`
	Status          string  `json:"status"`
	CanResume       bool    `json:"canResume"`
	ChunkSize       int64   `json:"chunkSize"`
	TotalChunks     int64   `json:"totalChunks"`
	CompletedChunks []int64 `json:"completedChunks"`
	MissingChunks   []int64 `json:"missingChunks"`
	FailedChunks    []int64 `json:"failedChunks"`
}

type CleanupSessionsResponse struct {
	Expired     int64 `json:"expired"`
	Cleaned     int64 `json:"cleaned"`
	Reassembled int64 `json:"reassembled"`
}

type ProgressStreamRequest struct {
	Id    string `path:"id" validate:"required,max=64"`
	Token string `form:"token,optional"`
}
