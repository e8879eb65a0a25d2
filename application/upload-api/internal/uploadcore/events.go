package uploadcore

import (
	"context"
	"time"
)

// EventType 生命周期事件类型
type EventType string

const (
	EventSessionCreated    EventType = "session.created"
	EventChunkUploaded     EventType = "chunk.uploaded"
	EventChunkFailed       EventType = "chunk.failed"
	EventChunkRetry        EventType = "chunk.retry"
	EventSessionAssembling EventType = "session.assembling"
	EventSessionCompleted  EventType = "session.completed"
	EventSessionFailed     EventType = "session.failed"
	EventSessionCancelled  EventType = "session.cancelled"
	EventSessionExpired    EventType = "session.expired"
)

// Event 生命周期事件，用于审计与进度推送
type Event struct {
	Type           EventType     `json:"type"`
	UploadId       string        `json:"uploadId"`
	CooperativeId  uint64        `json:"cooperativeId"`
	Status         SessionStatus `json:"status"`
	ChunkNumber    int64         `json:"chunkNumber"`
	ChunksUploaded int64         `json:"chunksUploaded"`
	TotalChunks    int64         `json:"totalChunks"`
	BytesUploaded  int64         `json:"bytesUploaded"`
	FileSize       int64         `json:"fileSize"`
	Message        string        `json:"message,omitempty"`
	At             int64         `json:"at"`
}

// IsFinal 会话进入终态的事件
func (e Event) IsFinal() bool {
	switch e.Type {
	case EventSessionCompleted, EventSessionFailed, EventSessionCancelled, EventSessionExpired:
		return true
	}
	return false
}

// EventPublisher 事件发布，发布失败只记录日志不影响主流程
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }

func newEvent(t EventType, s *Session, chunkNumber int64, msg string) Event {
	return Event{
		Type:           t,
		UploadId:       s.UploadId,
		CooperativeId:  s.CooperativeId,
		Status:         s.Status,
		ChunkNumber:    chunkNumber,
		ChunksUploaded: s.ChunksUploaded,
		TotalChunks:    s.TotalChunks,
		BytesUploaded:  s.BytesUploaded,
		FileSize:       s.FileSize,
		Message:        msg,
		At:             time.Now().UnixMilli(),
	}
}
