package uploadcore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/model"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

func newMysqlStore(t *testing.T) (*MysqlStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rds := redistest.CreateRedis(t)
	conn := sqlx.NewSqlConnFromDB(db)
	cacheConf := cache.CacheConf{{
		RedisConf: redis.RedisConf{Host: rds.Addr, Type: redis.NodeType},
		Weight:    100,
	}}
	return NewMysqlStore(model.NewUploadSessionsModel(conn, cacheConf), model.NewUploadChunksModel(conn)), mock
}

var (
	completeChunkStmt = regexp.QuoteMeta("update `upload_chunks` set `status` = 'uploaded'")
	addProgressStmt   = regexp.QuoteMeta("set `chunks_uploaded` = `chunks_uploaded` + 1")
)

func TestMysqlCompleteAttemptCommitsTogether(t *testing.T) {
	s, mock := newMysqlStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(completeChunkStmt).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(addProgressStmt).WithArgs(int64(1024), uint64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	first, err := s.CompleteAttempt(context.Background(),
		&Chunk{Id: 11, SessionId: 5, ChunkNumber: 2, ExpectedSize: 1024},
		ChunkReceipt{ChunkHash: "abc", StoragePath: "/tmp/c", CompletedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, first)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMysqlCompleteAttemptRepeatSkipsCounters(t *testing.T) {
	s, mock := newMysqlStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(completeChunkStmt).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("update `upload_chunks` set `chunk_hash` = ?")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	first, err := s.CompleteAttempt(context.Background(),
		&Chunk{Id: 11, SessionId: 5, ChunkNumber: 2, ExpectedSize: 1024},
		ChunkReceipt{ChunkHash: "abc", StoragePath: "/tmp/c", CompletedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, first)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMysqlCompleteAttemptRollsBackChunk(t *testing.T) {
	s, mock := newMysqlStore(t)
	deadlock := errors.New("Error 1213: Deadlock found when trying to get lock")
	mock.ExpectBegin()
	mock.ExpectExec(completeChunkStmt).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(addProgressStmt).WithArgs(int64(1024), uint64(5)).WillReturnError(deadlock)
	mock.ExpectRollback()

	first, err := s.CompleteAttempt(context.Background(),
		&Chunk{Id: 11, SessionId: 5, ChunkNumber: 2, ExpectedSize: 1024},
		ChunkReceipt{ChunkHash: "abc", StoragePath: "/tmp/c", CompletedAt: time.Now()})
	assert.ErrorIs(t, err, deadlock)
	assert.False(t, first)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMysqlCompleteAttemptMissingSession(t *testing.T) {
	s, mock := newMysqlStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(completeChunkStmt).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(addProgressStmt).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.CompleteAttempt(context.Background(),
		&Chunk{Id: 11, SessionId: 5, ChunkNumber: 2, ExpectedSize: 1024},
		ChunkReceipt{CompletedAt: time.Now()})
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
