package uploadcore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"
)

func TestMemoryGovernor(t *testing.T) {
	g := NewMemoryGovernor()
	ctx := context.Background()

	r1, ok, err := g.TryAcquire(ctx, "u1", 2)
	require.NoError(t, err)
	require.True(t, ok)
	r2, ok, err := g.TryAcquire(ctx, "u1", 2)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = g.TryAcquire(ctx, "u1", 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, g.InFlight("u1"))

	// 不同会话互不影响
	r3, ok, err := g.TryAcquire(ctx, "u2", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	r3()

	r1()
	r1()
	assert.Equal(t, 1, g.InFlight("u1"))

	r4, ok, err := g.TryAcquire(ctx, "u1", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	r2()
	r4()
	assert.Zero(t, g.InFlight("u1"))
}

func TestMemoryGovernorConcurrent(t *testing.T) {
	g := NewMemoryGovernor()
	const limit = 3

	var (
		wg      sync.WaitGroup
		granted int32
		start   = make(chan struct{})
		hold    = make(chan struct{})
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			release, ok, err := g.TryAcquire(context.Background(), "u", limit)
			if err != nil || !ok {
				return
			}
			atomic.AddInt32(&granted, 1)
			<-hold
			release()
		}()
	}
	close(start)

	// 等待所有 goroutine 完成申请：被拒绝的立即返回，获准的阻塞在 hold
	require.Eventually(t, func() bool {
		return g.InFlight("u") == int(atomic.LoadInt32(&granted)) && atomic.LoadInt32(&granted) == limit
	}, time.Second, 10*time.Millisecond)
	close(hold)
	wg.Wait()

	assert.Equal(t, int32(limit), atomic.LoadInt32(&granted))
	assert.Zero(t, g.InFlight("u"))
}

func TestRedisGovernor(t *testing.T) {
	rds := redistest.CreateRedis(t)
	g := NewRedisGovernor(rds)
	ctx := context.Background()

	r1, ok, err := g.TryAcquire(ctx, "u1", 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = g.TryAcquire(ctx, "u1", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = g.TryAcquire(ctx, "u2", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	r1()
	r1()
	n, err := g.InFlight(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	r5, ok, err := g.TryAcquire(ctx, "u1", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	r5()
}

func TestRedisGovernorLeakedSlotExpires(t *testing.T) {
	rds := redistest.CreateRedis(t)
	clock := newFakeClock()
	g := NewRedisGovernor(rds)
	g.now = clock.Now
	ctx := context.Background()

	// 持有者异常退出，从不归还
	_, ok, err := g.TryAcquire(ctx, "u1", 1)
	require.NoError(t, err)
	require.True(t, ok)

	// 租约期内持续重试既拿不到名额，也不会延长泄漏名额的租约
	for i := 0; i < 4; i++ {
		clock.Advance(time.Minute)
		_, ok, err = g.TryAcquire(ctx, "u1", 1)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	clock.Advance(time.Minute + time.Second)
	n, err := g.InFlight(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	release, ok, err := g.TryAcquire(ctx, "u1", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestRedisGovernorReleaseOnlyOwnSlot(t *testing.T) {
	rds := redistest.CreateRedis(t)
	g := NewRedisGovernor(rds)
	ctx := context.Background()

	r1, ok, err := g.TryAcquire(ctx, "u1", 2)
	require.NoError(t, err)
	require.True(t, ok)
	r2, ok, err := g.TryAcquire(ctx, "u1", 2)
	require.NoError(t, err)
	require.True(t, ok)

	r1()
	r1()
	n, err := g.InFlight(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r2()
	n, err = g.InFlight(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
