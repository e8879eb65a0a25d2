package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ UploadChunksModel = (*customUploadChunksModel)(nil)

type (
	// UploadChunksModel is an interface to be customized, add more methods here,
	// and implement the added methods in customUploadChunksModel.
	UploadChunksModel interface {
		uploadChunksModel
		// WithSession 绑定到事务
		WithSession(session sqlx.Session) UploadChunksModel
		ListBySession(ctx context.Context, sessionId uint64) ([]*UploadChunks, error)
		// RecentUploaded 最近完成的分片，按完成时间倒序
		RecentUploaded(ctx context.Context, sessionId uint64, limit int64) ([]*UploadChunks, error)
		// UpsertAttempt 记录一次上传尝试，已上传的分片保持 uploaded
		UpsertAttempt(ctx context.Context, sessionId uint64, chunkNumber, expectedSize int64, at time.Time) (*UploadChunks, error)
		// UpsertFailure 记录一次失败尝试
		UpsertFailure(ctx context.Context, sessionId uint64, chunkNumber, expectedSize int64, msg string, at time.Time) (*UploadChunks, error)
		// Complete 迁移为 uploaded，首次完成返回 true
		Complete(ctx context.Context, id uint64, hash, path string, speed int64, at time.Time) (bool, error)
		Abort(ctx context.Context, id uint64, msg string) error
		ResetForRetry(ctx context.Context, sessionId uint64, chunkNumber, maxRetries int64, at time.Time) (bool, error)
	}

	customUploadChunksModel struct {
		*defaultUploadChunksModel
	}
)

// NewUploadChunksModel returns a model for the database table.
// 分片行更新频繁，不走缓存
func NewUploadChunksModel(conn sqlx.SqlConn) UploadChunksModel {
	return &customUploadChunksModel{
		defaultUploadChunksModel: newUploadChunksModel(conn),
	}
}

func (m *customUploadChunksModel) WithSession(session sqlx.Session) UploadChunksModel {
	return NewUploadChunksModel(sqlx.NewSqlConnFromSession(session))
}

func (m *customUploadChunksModel) ListBySession(ctx context.Context, sessionId uint64) ([]*UploadChunks, error) {
	query := fmt.Sprintf("select %s from %s where `session_id` = ? order by `chunk_number` asc", uploadChunksRows, m.table)
	var list []*UploadChunks
	if err := m.conn.QueryRowsCtx(ctx, &list, query, sessionId); err != nil && !errors.Is(err, sqlx.ErrNotFound) {
		return nil, err
	}
	return list, nil
}

func (m *customUploadChunksModel) RecentUploaded(ctx context.Context, sessionId uint64, limit int64) ([]*UploadChunks, error) {
	query := fmt.Sprintf("select %s from %s where `session_id` = ? and `status` = 'uploaded' "+
		"order by `completed_at` desc limit ?", uploadChunksRows, m.table)
	var list []*UploadChunks
	if err := m.conn.QueryRowsCtx(ctx, &list, query, sessionId, limit); err != nil && !errors.Is(err, sqlx.ErrNotFound) {
		return nil, err
	}
	return list, nil
}

func (m *customUploadChunksModel) UpsertAttempt(ctx context.Context, sessionId uint64, chunkNumber, expectedSize int64, at time.Time) (*UploadChunks, error) {
	query := fmt.Sprintf("insert into %s (`session_id`, `chunk_number`, `expected_size`, `status`, `upload_attempts`, `started_at`) "+
		"values (?, ?, ?, 'uploading', 1, ?) on duplicate key update `upload_attempts` = `upload_attempts` + 1, "+
		"`status` = IF(`status` = 'uploaded', `status`, 'uploading'), `started_at` = VALUES(`started_at`), `error_message` = ''", m.table)
	if _, err := m.conn.ExecCtx(ctx, query, sessionId, chunkNumber, expectedSize, at); err != nil {
		return nil, err
	}
	return m.FindOneBySessionIdChunkNumber(ctx, sessionId, chunkNumber)
}

func (m *customUploadChunksModel) UpsertFailure(ctx context.Context, sessionId uint64, chunkNumber, expectedSize int64, msg string, at time.Time) (*UploadChunks, error) {
	query := fmt.Sprintf("insert into %s (`session_id`, `chunk_number`, `expected_size`, `status`, `upload_attempts`, `error_message`, `started_at`) "+
		"values (?, ?, ?, 'failed', 1, ?, ?) on duplicate key update `upload_attempts` = `upload_attempts` + 1, "+
		"`status` = IF(`status` = 'uploaded', `status`, 'failed'), `error_message` = VALUES(`error_message`)", m.table)
	if _, err := m.conn.ExecCtx(ctx, query, sessionId, chunkNumber, expectedSize, msg, at); err != nil {
		return nil, err
	}
	return m.FindOneBySessionIdChunkNumber(ctx, sessionId, chunkNumber)
}

func (m *customUploadChunksModel) Complete(ctx context.Context, id uint64, hash, path string, speed int64, at time.Time) (bool, error) {
	query := fmt.Sprintf("update %s set `status` = 'uploaded', `chunk_hash` = ?, `storage_path` = ?, `upload_speed_bps` = ?, "+
		"`completed_at` = ?, `error_message` = '' where `id` = ? and `status` <> 'uploaded'", m.table)
	res, err := m.conn.ExecCtx(ctx, query, hash, path, speed, at, id)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n > 0 {
		return true, nil
	}

	// 重复上传覆盖同一文件，只刷新回执
	query = fmt.Sprintf("update %s set `chunk_hash` = ?, `storage_path` = ?, `upload_speed_bps` = ?, `completed_at` = ? where `id` = ?", m.table)
	if _, err := m.conn.ExecCtx(ctx, query, hash, path, speed, at, id); err != nil {
		return false, err
	}
	return false, nil
}

func (m *customUploadChunksModel) Abort(ctx context.Context, id uint64, msg string) error {
	query := fmt.Sprintf("update %s set `status` = IF(`status` = 'uploaded', `status`, 'failed'), `error_message` = ? where `id` = ?", m.table)
	_, err := m.conn.ExecCtx(ctx, query, msg, id)
	return err
}

func (m *customUploadChunksModel) ResetForRetry(ctx context.Context, sessionId uint64, chunkNumber, maxRetries int64, at time.Time) (bool, error) {
	query := fmt.Sprintf("update %s set `status` = 'pending', `retry_count` = `retry_count` + 1, `last_retry_at` = ?, `error_message` = '' "+
		"where `session_id` = ? and `chunk_number` = ? and `status` = 'failed' and `retry_count` < ?", m.table)
	res, err := m.conn.ExecCtx(ctx, query, at, sessionId, chunkNumber, maxRetries)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
