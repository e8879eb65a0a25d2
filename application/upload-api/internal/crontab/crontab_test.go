package crontab

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/uploadcore"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"
)

type fakeCleaner struct {
	calls int32
	err   error
}

func (f *fakeCleaner) CleanupExpiredSessions(context.Context) (*uploadcore.CleanupResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &uploadcore.CleanupResult{Expired: 2, Cleaned: 2}, nil
}

func TestSchedulerTriggerCleanup(t *testing.T) {
	s := NewScheduler(SchedulerConfig{NodeID: "node-a"})
	cleaner := &fakeCleaner{}
	require.NoError(t, s.AddJob(NewSessionCleanupJob(cleaner, "@every 5m", time.Minute)))
	assert.Error(t, s.AddJob(NewSessionCleanupJob(cleaner, "@every 5m", time.Minute)))

	res, err := s.Trigger(context.Background(), SessionCleanupJobName)
	require.NoError(t, err)
	assert.Equal(t, JobStatusSuccess, res.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&cleaner.calls))

	sum, ok := s.Summary(SessionCleanupJobName)
	require.True(t, ok)
	assert.Equal(t, int64(1), sum.RunCount)
	assert.Equal(t, "success", sum.LastStatus)

	_, err = s.Trigger(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSchedulerRecordsFailureAndPanic(t *testing.T) {
	s := NewScheduler(SchedulerConfig{NodeID: "node-a"})

	res := s.Run(context.Background(), NewSessionCleanupJob(&fakeCleaner{err: errors.New("db down")}, "@every 5m", time.Minute))
	assert.Equal(t, JobStatusFailed, res.Status)
	assert.Equal(t, "db down", res.Error)

	res = s.Run(context.Background(), FuncJob("boom", "@every 1m", 0, func(context.Context) error {
		panic("boom")
	}))
	assert.Equal(t, JobStatusFailed, res.Status)
	assert.Contains(t, res.Error, "panic")

	sum, ok := s.Summary(SessionCleanupJobName)
	require.True(t, ok)
	assert.Equal(t, int64(1), sum.FailCount)
}

func TestSchedulerTimeout(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	res := s.Run(context.Background(), FuncJob("slow", "@every 1m", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	assert.Equal(t, JobStatusFailed, res.Status)
}

func TestSchedulerInvalidSpec(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	assert.Error(t, s.AddJob(FuncJob("bad", "not a spec", 0, func(context.Context) error { return nil })))
}

func TestRedisLockerSkipsWhenHeld(t *testing.T) {
	rds := redistest.CreateRedis(t)
	a := NewScheduler(SchedulerConfig{NodeID: "node-a", Redis: rds, EnableDistributedLock: true})
	b := NewScheduler(SchedulerConfig{NodeID: "node-b", Redis: rds, EnableDistributedLock: true})

	started := make(chan struct{})
	finish := make(chan struct{})
	slow := FuncJob(SessionCleanupJobName, "@every 5m", time.Minute, func(context.Context) error {
		close(started)
		<-finish
		return nil
	})

	done := make(chan *JobResult)
	go func() { done <- a.Run(context.Background(), slow) }()
	<-started

	res := b.Run(context.Background(), FuncJob(SessionCleanupJobName, "@every 5m", time.Minute, func(context.Context) error {
		return nil
	}))
	assert.Equal(t, JobStatusSkipped, res.Status)

	close(finish)
	assert.Equal(t, JobStatusSuccess, (<-done).Status)

	// 锁释放后其他节点可以执行
	res = b.Run(context.Background(), FuncJob(SessionCleanupJobName, "@every 5m", time.Minute, func(context.Context) error {
		return nil
	}))
	assert.Equal(t, JobStatusSuccess, res.Status)
}
