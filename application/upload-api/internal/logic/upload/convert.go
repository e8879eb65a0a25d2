package upload

import (
	"time"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/types"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/uploadcore"
)

func convertProgress(p *uploadcore.Progress) types.ProgressResponse {
	if p == nil {
		return types.ProgressResponse{}
	}
	return types.ProgressResponse{
		UploadId:       p.UploadId,
		Status:         string(p.Status),
		ChunksUploaded: p.ChunksUploaded,
		TotalChunks:    p.TotalChunks,
		BytesUploaded:  p.BytesUploaded,
		FileSize:       p.FileSize,
		Percentage:     p.Percentage,
		UploadSpeedBps: p.UploadSpeedBps,
		EtaSeconds:     p.EtaSeconds,
		ErrorCode:      p.ErrorCode,
		ErrorMessage:   p.ErrorMessage,
		StoragePath:    p.StoragePath,
	}
}

func convertChunkInfo(c *uploadcore.ChunkInfo) *types.ChunkInfoResponse {
	return &types.ChunkInfoResponse{
		ChunkNumber:    c.ChunkNumber,
		ExpectedSize:   c.ExpectedSize,
		Status:         string(c.Status),
		ChunkHash:      c.ChunkHash,
		UploadAttempts: c.UploadAttempts,
		RetryCount:     c.RetryCount,
		RetriesLeft:    c.RetriesLeft,
		CanRetry:       c.CanRetry,
		UploadSpeedBps: c.UploadSpeedBps,
		ErrorMessage:   c.ErrorMessage,
		CompletedAt:    unixOrZero(c.CompletedAt),
	}
}

func convertResume(r *uploadcore.ResumeInfo) *types.ResumeSessionResponse {
	return &types.ResumeSessionResponse{
		UploadId:        r.UploadId,
		Status:          string(r.Status),
		CanResume:       r.CanResume,
		ChunkSize:       r.ChunkSize,
		TotalChunks:     r.TotalChunks,
		CompletedChunks: r.CompletedChunks,
		MissingChunks:   r.MissingChunks,
		FailedChunks:    r.FailedChunks,
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func isTerminalStatus(status string) bool {
	return uploadcore.SessionStatus(status).IsTerminal()
}
