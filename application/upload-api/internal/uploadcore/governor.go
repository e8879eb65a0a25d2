package uploadcore

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"golang.org/x/sync/semaphore"
)

// Governor 会话级并发准入控制，超限立即拒绝，不排队
type Governor interface {
	// TryAcquire 获取一个在途名额，ok 为 false 表示已达上限
	TryAcquire(ctx context.Context, key string, limit int64) (release func(), ok bool, err error)
}

type governorSlot struct {
	sem  *semaphore.Weighted
	refs int
}

// MemoryGovernor 进程内信号量实现，适用于单副本部署
type MemoryGovernor struct {
	mu    sync.Mutex
	slots map[string]*governorSlot
}

func NewMemoryGovernor() *MemoryGovernor {
	return &MemoryGovernor{slots: make(map[string]*governorSlot)}
}

func (g *MemoryGovernor) TryAcquire(_ context.Context, key string, limit int64) (func(), bool, error) {
	if limit <= 0 {
		limit = 1
	}

	g.mu.Lock()
	slot, ok := g.slots[key]
	if !ok {
		slot = &governorSlot{sem: semaphore.NewWeighted(limit)}
		g.slots[key] = slot
	}
	slot.refs++
	g.mu.Unlock()

	if !slot.sem.TryAcquire(1) {
		g.unref(key, slot)
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			slot.sem.Release(1)
			g.unref(key, slot)
		})
	}
	return release, true, nil
}

// unref 最后一个持有者离开时回收信号量
func (g *MemoryGovernor) unref(key string, slot *governorSlot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot.refs--
	if slot.refs == 0 && g.slots[key] == slot {
		delete(g.slots, key)
	}
}

// InFlight 当前持有名额的数量，仅用于观测
func (g *MemoryGovernor) InFlight(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if slot, ok := g.slots[key]; ok {
		return slot.refs
	}
	return 0
}

const (
	governorKeyPrefix = "upload:inflight:"
	// 单个持有者的租约，异常退出未归还的名额到期后不再计数
	defaultGovernorTTL = 5 * time.Minute
)

// 持有者以 token 为成员、租约截止时间为分值存入有序集合，
// 申请前先剔除已过期的持有者，每个名额独立过期
const acquireScript = `
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`

// RedisGovernor 基于 Redis 有序集合的跨副本实现
type RedisGovernor struct {
	rds *redis.Redis
	ttl time.Duration
	now func() time.Time
}

func NewRedisGovernor(rds *redis.Redis) *RedisGovernor {
	return &RedisGovernor{rds: rds, ttl: defaultGovernorTTL, now: time.Now}
}

func (g *RedisGovernor) TryAcquire(ctx context.Context, key string, limit int64) (func(), bool, error) {
	if limit <= 0 {
		limit = 1
	}
	redisKey := governorKeyPrefix + key
	token := uuid.NewString()
	now := g.now().UnixMilli()

	res, err := g.rds.EvalCtx(ctx, acquireScript, []string{redisKey},
		now, limit, now+g.ttl.Milliseconds(), token, g.ttl.Milliseconds())
	if err != nil {
		return nil, false, fmt.Errorf("并发名额申请失败: %w", err)
	}
	if n, _ := res.(int64); n != 1 {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// 使用新的 context，避免请求 ctx 已取消导致名额泄漏
			if _, err := g.rds.ZremCtx(context.Background(), redisKey, token); err != nil {
				logx.Errorf("[并发控制] 归还名额失败, key=%s, error=%v", redisKey, err)
			}
		})
	}
	return release, true, nil
}

// InFlight 当前未过期的持有者数量，仅用于观测
func (g *RedisGovernor) InFlight(ctx context.Context, key string) (int, error) {
	return g.rds.ZcountCtx(ctx, governorKeyPrefix+key, g.now().UnixMilli()+1, math.MaxInt64)
}
