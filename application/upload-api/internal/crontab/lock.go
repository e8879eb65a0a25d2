package crontab

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

const (
	lockKeyPrefix     = "upload:crontab:lock:"
	defaultLockExpire = 60 // 秒
)

// Locker 多副本部署时保证同一任务同一时刻只有一个节点执行
type Locker interface {
	TryLock(ctx context.Context, jobName string, ttl time.Duration) (acquired bool, release func(), err error)
}

// RedisLocker 基于 go-zero RedisLock 的分布式锁
type RedisLocker struct {
	client *redis.Redis
	nodeID string
}

func NewRedisLocker(client *redis.Redis, nodeID string) *RedisLocker {
	return &RedisLocker{client: client, nodeID: nodeID}
}

func (l *RedisLocker) TryLock(ctx context.Context, jobName string, ttl time.Duration) (bool, func(), error) {
	expire := int(ttl.Seconds())
	if expire < 1 {
		expire = defaultLockExpire
	}

	lock := redis.NewRedisLock(l.client, lockKeyPrefix+jobName)
	// 必须在 Acquire 之前设置
	lock.SetExpire(expire)

	acquired, err := lock.AcquireCtx(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("获取分布式锁失败: %w", err)
	}
	if !acquired {
		return false, nil, nil
	}

	release := func() {
		// 原 ctx 可能已超时
		if _, err := lock.ReleaseCtx(context.Background()); err != nil {
			logx.Errorf("Crontab 释放分布式锁失败, job=%s, node=%s, error=%v", jobName, l.nodeID, err)
		}
	}
	return true, release, nil
}

// NoopLocker 单机模式，总是成功
type NoopLocker struct{}

func (NoopLocker) TryLock(context.Context, string, time.Duration) (bool, func(), error) {
	return true, func() {}, nil
}
