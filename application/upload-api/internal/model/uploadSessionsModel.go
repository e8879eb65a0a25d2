package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ UploadSessionsModel = (*customUploadSessionsModel)(nil)

// SessionStatusUpdate 状态迁移时一并写入的列，零值不写
type SessionStatusUpdate struct {
	ErrorCode    string
	ErrorMessage string
	StoragePath  string
	ComputedHash string
	CompletedAt  time.Time
}

type (
	// UploadSessionsModel is an interface to be customized, add more methods here,
	// and implement the added methods in customUploadSessionsModel.
	UploadSessionsModel interface {
		uploadSessionsModel
		// FindOneNoCache 读取最新状态，不走缓存
		FindOneNoCache(ctx context.Context, id uint64) (*UploadSessions, error)
		// TransCtx 事务执行，提交后删除会话主键缓存
		TransCtx(ctx context.Context, id uint64, fn func(ctx context.Context, session sqlx.Session) error) error
		// AddProgress 事务内累加计数，pending 同时迁移为 uploading
		AddProgress(ctx context.Context, session sqlx.Session, id uint64, bytes int64) error
		// TransitionStatus 当前状态在 from 中才迁移，返回是否迁移成功
		TransitionStatus(ctx context.Context, id uint64, from []string, to string, upd SessionStatusUpdate) (bool, error)
		// BeginAssembly 分片已齐且状态为 pending/uploading 时迁移为 assembling
		BeginAssembly(ctx context.Context, id uint64) (bool, error)
		MarkCleaned(ctx context.Context, id uint64, at time.Time) error
		FindExpired(ctx context.Context, now time.Time, limit int64) ([]*UploadSessions, error)
		FindStalled(ctx context.Context, limit int64) ([]*UploadSessions, error)
	}

	customUploadSessionsModel struct {
		*defaultUploadSessionsModel
	}
)

// NewUploadSessionsModel returns a model for the database table.
func NewUploadSessionsModel(conn sqlx.SqlConn, c cache.CacheConf, opts ...cache.Option) UploadSessionsModel {
	return &customUploadSessionsModel{
		defaultUploadSessionsModel: newUploadSessionsModel(conn, c, opts...),
	}
}

// idKey uploadId 索引缓存只保存主键，更新时删除主键缓存即可
func (m *customUploadSessionsModel) idKey(id uint64) string {
	return fmt.Sprintf("%s%v", cacheCoopNovaUploadSessionsIdPrefix, id)
}

func (m *customUploadSessionsModel) FindOneNoCache(ctx context.Context, id uint64) (*UploadSessions, error) {
	var resp UploadSessions
	query := fmt.Sprintf("select %s from %s where `id` = ? limit 1", uploadSessionsRows, m.table)
	if err := m.QueryRowNoCacheCtx(ctx, &resp, query, id); err != nil {
		if errors.Is(err, sqlx.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &resp, nil
}

func (m *customUploadSessionsModel) TransCtx(ctx context.Context, id uint64, fn func(ctx context.Context, session sqlx.Session) error) error {
	if err := m.TransactCtx(ctx, fn); err != nil {
		return err
	}
	return m.DelCacheCtx(ctx, m.idKey(id))
}

func (m *customUploadSessionsModel) AddProgress(ctx context.Context, session sqlx.Session, id uint64, bytes int64) error {
	query := fmt.Sprintf("update %s set `chunks_uploaded` = `chunks_uploaded` + 1, `bytes_uploaded` = `bytes_uploaded` + ?, "+
		"`status` = IF(`status` = 'pending', 'uploading', `status`) where `id` = ?", m.table)
	res, err := session.ExecCtx(ctx, query, bytes, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *customUploadSessionsModel) TransitionStatus(ctx context.Context, id uint64, from []string, to string, upd SessionStatusUpdate) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	sets := []string{"`status` = ?"}
	args := []any{to}
	if upd.ErrorCode != "" {
		sets = append(sets, "`error_code` = ?")
		args = append(args, upd.ErrorCode)
	}
	if upd.ErrorMessage != "" {
		sets = append(sets, "`error_message` = ?")
		args = append(args, upd.ErrorMessage)
	}
	if upd.StoragePath != "" {
		sets = append(sets, "`storage_path` = ?")
		args = append(args, upd.StoragePath)
	}
	if upd.ComputedHash != "" {
		sets = append(sets, "`computed_hash` = ?")
		args = append(args, upd.ComputedHash)
	}
	if !upd.CompletedAt.IsZero() {
		sets = append(sets, "`completed_at` = ?")
		args = append(args, upd.CompletedAt)
	}
	args = append(args, id)
	for _, s := range from {
		args = append(args, s)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := fmt.Sprintf("update %s set %s where `id` = ? and `status` in (%s)", m.table, strings.Join(sets, ", "), placeholders)
	res, err := m.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		return conn.ExecCtx(ctx, query, args...)
	}, m.idKey(id))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *customUploadSessionsModel) BeginAssembly(ctx context.Context, id uint64) (bool, error) {
	query := fmt.Sprintf("update %s set `status` = 'assembling' where `id` = ? "+
		"and `status` in ('pending', 'uploading') and `chunks_uploaded` >= `total_chunks`", m.table)
	res, err := m.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		return conn.ExecCtx(ctx, query, id)
	}, m.idKey(id))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *customUploadSessionsModel) MarkCleaned(ctx context.Context, id uint64, at time.Time) error {
	query := fmt.Sprintf("update %s set `cleaned_at` = ? where `id` = ?", m.table)
	_, err := m.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
		return conn.ExecCtx(ctx, query, at, id)
	}, m.idKey(id))
	return err
}

// FindExpired 已到期、未完成且尚未清理的会话，按主键升序
func (m *customUploadSessionsModel) FindExpired(ctx context.Context, now time.Time, limit int64) ([]*UploadSessions, error) {
	query := fmt.Sprintf("select %s from %s where `expires_at` <= ? and `status` <> 'completed' "+
		"and `cleaned_at` is null order by `id` asc limit ?", uploadSessionsRows, m.table)
	var list []*UploadSessions
	if err := m.QueryRowsNoCacheCtx(ctx, &list, query, now, limit); err != nil && !errors.Is(err, sqlx.ErrNotFound) {
		return nil, err
	}
	return list, nil
}

// FindStalled 分片已齐但仍停留在 uploading 的会话
func (m *customUploadSessionsModel) FindStalled(ctx context.Context, limit int64) ([]*UploadSessions, error) {
	query := fmt.Sprintf("select %s from %s where `status` = 'uploading' "+
		"and `chunks_uploaded` >= `total_chunks` order by `id` asc limit ?", uploadSessionsRows, m.table)
	var list []*UploadSessions
	if err := m.QueryRowsNoCacheCtx(ctx, &list, query, limit); err != nil && !errors.Is(err, sqlx.ErrNotFound) {
		return nil, err
	}
	return list, nil
}
