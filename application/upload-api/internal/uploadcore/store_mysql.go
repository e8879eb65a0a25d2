package uploadcore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/model"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

const mysqlErrDuplicateEntry = 1062

var _ Store = (*MysqlStore)(nil)

// MysqlStore 基于 goctl 模型的持久化存储，计数与状态迁移都是单条条件 UPDATE
type MysqlStore struct {
	sessions model.UploadSessionsModel
	chunks   model.UploadChunksModel
}

func NewMysqlStore(sessions model.UploadSessionsModel, chunks model.UploadChunksModel) *MysqlStore {
	return &MysqlStore{sessions: sessions, chunks: chunks}
}

func (m *MysqlStore) InsertSession(ctx context.Context, s *Session) (uint64, error) {
	res, err := m.sessions.Insert(ctx, &model.UploadSessions{
		UploadId:                s.UploadId,
		CooperativeId:           s.CooperativeId,
		UploadedBy:              s.UploadedBy,
		Filename:                s.Filename,
		FileSize:                s.FileSize,
		ChunkSize:               s.ChunkSize,
		TotalChunks:             s.TotalChunks,
		FileHash:                s.FileHash,
		Status:                  string(s.Status),
		MaxRetriesPerChunk:      s.MaxRetriesPerChunk,
		ConcurrentChunksAllowed: s.ConcurrentChunksAllowed,
		ExpiresAt:               s.ExpiresAt,
	})
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry {
			return 0, fmt.Errorf("uploadId 冲突 %s: %w", s.UploadId, err)
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (m *MysqlStore) FindSession(ctx context.Context, cooperativeId uint64, uploadId string) (*Session, error) {
	row, err := m.sessions.FindOneByUploadId(ctx, uploadId)
	if err != nil {
		return nil, notFound(err)
	}
	// 其他租户的会话等同于不存在
	if row.CooperativeId != cooperativeId {
		return nil, ErrRecordNotFound
	}
	return sessionFromRow(row)
}

func (m *MysqlStore) GetSession(ctx context.Context, id uint64) (*Session, error) {
	row, err := m.sessions.FindOneNoCache(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return sessionFromRow(row)
}

func (m *MysqlStore) TransitionStatus(ctx context.Context, id uint64, from []SessionStatus, to SessionStatus, change StatusChange) (bool, error) {
	list := make([]string, 0, len(from))
	for _, s := range from {
		list = append(list, string(s))
	}
	return m.sessions.TransitionStatus(ctx, id, list, string(to), model.SessionStatusUpdate{
		ErrorCode:    change.ErrorCode,
		ErrorMessage: change.ErrorMessage,
		StoragePath:  change.StoragePath,
		ComputedHash: change.ComputedHash,
		CompletedAt:  change.CompletedAt,
	})
}

func (m *MysqlStore) BeginAssembly(ctx context.Context, id uint64) (bool, error) {
	return m.sessions.BeginAssembly(ctx, id)
}

func (m *MysqlStore) MarkCleaned(ctx context.Context, id uint64, at time.Time) error {
	return m.sessions.MarkCleaned(ctx, id, at)
}

func (m *MysqlStore) FindExpiredSessions(ctx context.Context, now time.Time, limit int64) ([]*Session, error) {
	rows, err := m.sessions.FindExpired(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	return sessionsFromRows(rows)
}

func (m *MysqlStore) FindStalledSessions(ctx context.Context, limit int64) ([]*Session, error) {
	rows, err := m.sessions.FindStalled(ctx, limit)
	if err != nil {
		return nil, err
	}
	return sessionsFromRows(rows)
}

func (m *MysqlStore) FindChunk(ctx context.Context, sessionId uint64, chunkNumber int64) (*Chunk, error) {
	row, err := m.chunks.FindOneBySessionIdChunkNumber(ctx, sessionId, chunkNumber)
	if err != nil {
		return nil, notFound(err)
	}
	return chunkFromRow(row)
}

func (m *MysqlStore) ListChunks(ctx context.Context, sessionId uint64) ([]*Chunk, error) {
	rows, err := m.chunks.ListBySession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	return chunksFromRows(rows)
}

func (m *MysqlStore) RecentUploaded(ctx context.Context, sessionId uint64, limit int64) ([]*Chunk, error) {
	rows, err := m.chunks.RecentUploaded(ctx, sessionId, limit)
	if err != nil {
		return nil, err
	}
	return chunksFromRows(rows)
}

func (m *MysqlStore) BeginAttempt(ctx context.Context, sessionId uint64, chunkNumber, expectedSize int64, at time.Time) (*Chunk, error) {
	row, err := m.chunks.UpsertAttempt(ctx, sessionId, chunkNumber, expectedSize, at)
	if err != nil {
		return nil, err
	}
	return chunkFromRow(row)
}

func (m *MysqlStore) RecordFailure(ctx context.Context, sessionId uint64, chunkNumber, expectedSize int64, msg string, at time.Time) (*Chunk, error) {
	row, err := m.chunks.UpsertFailure(ctx, sessionId, chunkNumber, expectedSize, msg, at)
	if err != nil {
		return nil, err
	}
	return chunkFromRow(row)
}

// CompleteAttempt 分片状态与会话计数在同一事务内提交，任一失败整体回滚
func (m *MysqlStore) CompleteAttempt(ctx context.Context, chunk *Chunk, receipt ChunkReceipt) (bool, error) {
	var first bool
	err := m.sessions.TransCtx(ctx, chunk.SessionId, func(ctx context.Context, session sqlx.Session) error {
		var err error
		first, err = m.chunks.WithSession(session).Complete(ctx, chunk.Id,
			receipt.ChunkHash, receipt.StoragePath, receipt.UploadSpeedBps, receipt.CompletedAt)
		if err != nil || !first {
			return err
		}
		return m.sessions.AddProgress(ctx, session, chunk.SessionId, chunk.ExpectedSize)
	})
	if err != nil {
		return false, notFound(err)
	}
	return first, nil
}

func (m *MysqlStore) AbortAttempt(ctx context.Context, chunkId uint64, msg string) error {
	return m.chunks.Abort(ctx, chunkId, msg)
}

func (m *MysqlStore) ResetForRetry(ctx context.Context, sessionId uint64, chunkNumber, maxRetries int64, at time.Time) (bool, error) {
	return m.chunks.ResetForRetry(ctx, sessionId, chunkNumber, maxRetries, at)
}

func notFound(err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return ErrRecordNotFound
	}
	return err
}

func nullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

func sessionFromRow(row *model.UploadSessions) (*Session, error) {
	status, err := ParseSessionStatus(row.Status)
	if err != nil {
		return nil, err
	}
	return &Session{
		Id:                      row.Id,
		UploadId:                row.UploadId,
		CooperativeId:           row.CooperativeId,
		UploadedBy:              row.UploadedBy,
		Filename:                row.Filename,
		FileSize:                row.FileSize,
		ChunkSize:               row.ChunkSize,
		TotalChunks:             row.TotalChunks,
		FileHash:                row.FileHash,
		ComputedHash:            row.ComputedHash,
		Status:                  status,
		ChunksUploaded:          row.ChunksUploaded,
		BytesUploaded:           row.BytesUploaded,
		MaxRetriesPerChunk:      row.MaxRetriesPerChunk,
		ConcurrentChunksAllowed: row.ConcurrentChunksAllowed,
		StoragePath:             row.StoragePath,
		ErrorCode:               row.ErrorCode,
		ErrorMessage:            row.ErrorMessage,
		CreatedAt:               row.CreatedAt,
		UpdatedAt:               row.UpdatedAt,
		ExpiresAt:               row.ExpiresAt,
		CompletedAt:             nullTime(row.CompletedAt),
		CleanedAt:               nullTime(row.CleanedAt),
	}, nil
}

func sessionsFromRows(rows []*model.UploadSessions) ([]*Session, error) {
	list := make([]*Session, 0, len(rows))
	for _, row := range rows {
		s, err := sessionFromRow(row)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, nil
}

func chunkFromRow(row *model.UploadChunks) (*Chunk, error) {
	status, err := ParseChunkStatus(row.Status)
	if err != nil {
		return nil, err
	}
	return &Chunk{
		Id:             row.Id,
		SessionId:      row.SessionId,
		ChunkNumber:    row.ChunkNumber,
		ExpectedSize:   row.ExpectedSize,
		ChunkHash:      row.ChunkHash,
		Status:         status,
		UploadAttempts: row.UploadAttempts,
		RetryCount:     row.RetryCount,
		UploadSpeedBps: row.UploadSpeedBps,
		StoragePath:    row.StoragePath,
		ErrorMessage:   row.ErrorMessage,
		StartedAt:      nullTime(row.StartedAt),
		CompletedAt:    nullTime(row.CompletedAt),
		LastRetryAt:    nullTime(row.LastRetryAt),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

func chunksFromRows(rows []*model.UploadChunks) ([]*Chunk, error) {
	list := make([]*Chunk, 0, len(rows))
	for _, row := range rows {
		c, err := chunkFromRow(row)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, nil
}
