package uploadcore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/artifact"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/code"
)

const testCoop uint64 = 7

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		list = append(list, e.Type)
	}
	return list
}

type fixture struct {
	svc         *Service
	store       *MemoryStore
	gov         *MemoryGovernor
	clock       *fakeClock
	events      *recordingPublisher
	dataDir     string
	artifactDir string
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	return newFixtureWithArtifacts(t, nil, mutate...)
}

// newFixtureWithArtifacts wrap 为空时直接使用本地产物存储
func newFixtureWithArtifacts(t *testing.T, wrap func(ArtifactStore) ArtifactStore, mutate ...func(*Options)) *fixture {
	t.Helper()
	return newFixtureWith(t, nil, wrap, mutate...)
}

// newFixtureWithStore 在内存存储外包一层，用于注入存储故障
func newFixtureWithStore(t *testing.T, wrap func(Store) Store, mutate ...func(*Options)) *fixture {
	t.Helper()
	return newFixtureWith(t, wrap, nil, mutate...)
}

func newFixtureWith(t *testing.T, wrapStore func(Store) Store, wrapArtifacts func(ArtifactStore) ArtifactStore, mutate ...func(*Options)) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		store:       NewMemoryStore(),
		gov:         NewMemoryGovernor(),
		clock:       newFakeClock(),
		events:      &recordingPublisher{},
		dataDir:     filepath.Join(root, "chunks"),
		artifactDir: filepath.Join(root, "artifacts"),
	}

	local, err := artifact.NewLocalStore(f.artifactDir)
	require.NoError(t, err)
	var artifacts ArtifactStore = local
	if wrapArtifacts != nil {
		artifacts = wrapArtifacts(local)
	}
	var store Store = f.store
	if wrapStore != nil {
		store = wrapStore(f.store)
	}

	opts := DefaultOptions()
	opts.DataDir = f.dataDir
	for _, m := range mutate {
		m(&opts)
	}

	f.svc, err = NewService(opts, store, artifacts,
		WithGovernor(f.gov), WithPublisher(f.events), WithClock(f.clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = f.svc.Close(context.Background())
	})
	return f
}

func (f *fixture) create(t *testing.T, spec CreateSessionSpec) *CreateSessionResult {
	t.Helper()
	if spec.CooperativeId == 0 {
		spec.CooperativeId = testCoop
	}
	if spec.Filename == "" {
		spec.Filename = "minutes.pdf"
	}
	res, err := f.svc.CreateSession(context.Background(), spec)
	require.NoError(t, err)
	return res
}

func (f *fixture) upload(uploadId string, n int64, data []byte, hash string) (*UploadChunkResult, error) {
	return f.svc.UploadChunk(context.Background(), UploadChunkRequest{
		CooperativeId: testCoop,
		UploadId:      uploadId,
		ChunkNumber:   n,
		Data:          data,
		Hash:          hash,
	})
}

func (f *fixture) artifactFiles(t *testing.T) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(f.artifactDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func chunkOf(data []byte, size, n int64) []byte {
	end := (n + 1) * size
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[n*size : end]
}

func assertCode(t *testing.T, want, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, want), "期望 %v, 实际 %v", want, err)
}

func TestTotalChunksPlan(t *testing.T) {
	cases := []struct {
		fileSize, chunkSize, want int64
	}{
		{4096, 1024, 4},
		{4097, 1024, 5},
		{1, 1024, 1},
		{1024, 1024, 1},
		{10*1024*1024 + 3, 1024 * 1024, 11},
	}
	for _, tc := range cases {
		total := TotalChunks(tc.fileSize, tc.chunkSize)
		assert.Equal(t, tc.want, total, "fileSize=%d chunkSize=%d", tc.fileSize, tc.chunkSize)

		sess := &Session{FileSize: tc.fileSize, ChunkSize: tc.chunkSize, TotalChunks: total}
		var sum int64
		for n := int64(0); n < total; n++ {
			size, ok := sess.ExpectedChunkSize(n)
			require.True(t, ok)
			assert.Positive(t, size)
			sum += size
		}
		assert.Equal(t, tc.fileSize, sum)

		_, ok := sess.ExpectedChunkSize(total)
		assert.False(t, ok)
		_, ok = sess.ExpectedChunkSize(-1)
		assert.False(t, ok)
	}
	assert.Zero(t, TotalChunks(0, 1024))
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.MaxFileSize = 1 << 20
		o.MaxTotalChunks = 16
	})
	ctx := context.Background()

	_, err := f.svc.CreateSession(ctx, CreateSessionSpec{CooperativeId: testCoop, Filename: "a.bin", FileSize: 0})
	assertCode(t, code.FileEmpty, err)

	_, err = f.svc.CreateSession(ctx, CreateSessionSpec{CooperativeId: testCoop, Filename: "a.bin", FileSize: 2 << 20})
	assertCode(t, code.FileTooLarge, err)

	_, err = f.svc.CreateSession(ctx, CreateSessionSpec{CooperativeId: testCoop, Filename: "../a.bin", FileSize: 10})
	assertCode(t, code.ValidationError, err)

	_, err = f.svc.CreateSession(ctx, CreateSessionSpec{CooperativeId: testCoop, Filename: "a.bin", FileSize: 10, FileHash: "abc"})
	assertCode(t, code.ValidationError, err)

	_, err = f.svc.CreateSession(ctx, CreateSessionSpec{CooperativeId: testCoop, Filename: "a.bin", FileSize: 10, ChunkSize: -1})
	assertCode(t, code.InvalidChunkSize, err)

	// 1MB / 1KB = 1024 片，超过 16 片上限
	_, err = f.svc.CreateSession(ctx, CreateSessionSpec{CooperativeId: testCoop, Filename: "a.bin", FileSize: 1 << 20, ChunkSize: 1024})
	assertCode(t, code.InvalidChunkSize, err)

	tooMany := int64(MaxRetriesLimit + 1)
	_, err = f.svc.CreateSession(ctx, CreateSessionSpec{CooperativeId: testCoop, Filename: "a.bin", FileSize: 10, MaxRetriesPerChunk: &tooMany})
	assertCode(t, code.ValidationError, err)

	_, err = f.svc.CreateSession(ctx, CreateSessionSpec{CooperativeId: testCoop, Filename: "a.bin", FileSize: 10, ConcurrentChunksAllowed: MaxConcurrentChunks + 1})
	assertCode(t, code.ValidationError, err)
}

func TestCreateSessionDefaults(t *testing.T) {
	f := newFixture(t)

	// 小于下限的分片大小收敛到 MinChunkSize
	res := f.create(t, CreateSessionSpec{FileSize: 4096, ChunkSize: 10, FileHash: "SHA256:" + sha256Hex([]byte("x"))})
	assert.Equal(t, int64(DefaultMinChunkSize), res.ChunkSize)
	assert.Equal(t, int64(4), res.TotalChunks)
	assert.Equal(t, f.clock.Now().Add(DefaultSessionTimeout), res.ExpiresAt)
	assert.NotEmpty(t, res.UploadId)

	sess, err := f.store.GetSession(context.Background(), res.SessionId)
	require.NoError(t, err)
	assert.Equal(t, SessionPending, sess.Status)
	assert.Equal(t, int64(DefaultMaxRetries), sess.MaxRetriesPerChunk)
	assert.Equal(t, int64(DefaultConcurrentChunks), sess.ConcurrentChunksAllowed)
	assert.Equal(t, sha256Hex([]byte("x")), sess.FileHash)

	zero := int64(0)
	res = f.create(t, CreateSessionSpec{FileSize: 100, MaxRetriesPerChunk: &zero})
	assert.Equal(t, int64(DefaultChunkSize), res.ChunkSize)
	assert.Equal(t, int64(1), res.TotalChunks)
	sess, err = f.store.GetSession(context.Background(), res.SessionId)
	require.NoError(t, err)
	assert.Zero(t, sess.MaxRetriesPerChunk)

	assert.Equal(t, EventSessionCreated, f.events.Types()[0])
}

func TestSessionScopedByCooperative(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, CreateSessionSpec{FileSize: 2048, ChunkSize: 1024})

	_, err := f.svc.GetProgress(context.Background(), testCoop+1, res.UploadId)
	assertCode(t, code.SessionNotFound, err)

	_, err = f.svc.UploadChunk(context.Background(), UploadChunkRequest{
		CooperativeId: testCoop + 1,
		UploadId:      res.UploadId,
		ChunkNumber:   0,
		Data:          make([]byte, 1024),
	})
	assertCode(t, code.SessionNotFound, err)

	_, err = f.svc.GetProgress(context.Background(), testCoop, "missing")
	assertCode(t, code.SessionNotFound, err)

	p, err := f.svc.GetProgress(context.Background(), testCoop, res.UploadId)
	require.NoError(t, err)
	assert.Equal(t, SessionPending, p.Status)
	assert.Equal(t, int64(2), p.TotalChunks)
}

func TestCancelSession(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, CreateSessionSpec{FileSize: 2048, ChunkSize: 1024})
	_, err := f.upload(res.UploadId, 0, make([]byte, 1024), "")
	require.NoError(t, err)

	p, err := f.svc.CancelSession(context.Background(), testCoop, res.UploadId)
	require.NoError(t, err)
	assert.Equal(t, SessionCancelled, p.Status)

	// 分片目录随取消删除
	_, err = os.Stat(filepath.Join(f.dataDir, res.UploadId))
	assert.True(t, os.IsNotExist(err))

	_, err = f.upload(res.UploadId, 1, make([]byte, 1024), "")
	assertCode(t, code.SessionCancelled, err)

	// 重复取消幂等
	p, err = f.svc.CancelSession(context.Background(), testCoop, res.UploadId)
	require.NoError(t, err)
	assert.Equal(t, SessionCancelled, p.Status)

	assert.Contains(t, f.events.Types(), EventSessionCancelled)
}

func TestCancelCompletedSession(t *testing.T) {
	f := newFixture(t)
	data := randomBytes(t, 1024)
	res := f.create(t, CreateSessionSpec{FileSize: 1024, ChunkSize: 1024})
	_, err := f.upload(res.UploadId, 0, data, "")
	require.NoError(t, err)
	f.svc.Assembler().Wait()

	_, err = f.svc.CancelSession(context.Background(), testCoop, res.UploadId)
	assertCode(t, code.SessionFinalized, err)
}

func TestCancelSessionPastExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, CreateSessionSpec{FileSize: 2048, ChunkSize: 1024})
	_, err := f.upload(res.UploadId, 0, make([]byte, 1024), "")
	require.NoError(t, err)

	f.clock.Advance(DefaultSessionTimeout + time.Second)
	_, err = f.svc.CancelSession(ctx, testCoop, res.UploadId)
	assertCode(t, code.SessionExpired, err)

	// 状态保持不变，留给清理任务标记为过期
	sess, err := f.store.GetSession(ctx, res.SessionId)
	require.NoError(t, err)
	assert.Equal(t, SessionUploading, sess.Status)
	assert.NotContains(t, f.events.Types(), EventSessionCancelled)

	result, err := f.svc.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Expired)
	p, err := f.svc.GetProgress(ctx, testCoop, res.UploadId)
	require.NoError(t, err)
	assert.Equal(t, SessionExpired, p.Status)
}

func TestEstimateSpeed(t *testing.T) {
	base := time.Now()
	assert.Zero(t, estimateSpeed(nil))
	assert.Equal(t, int64(500), estimateSpeed([]*Chunk{{UploadSpeedBps: 500}}))

	// 最早一片是窗口起点：两片 1000 字节在 2 秒内完成
	recent := []*Chunk{
		{ExpectedSize: 1000, CompletedAt: base.Add(2 * time.Second)},
		{ExpectedSize: 1000, CompletedAt: base.Add(time.Second)},
		{ExpectedSize: 1000, CompletedAt: base},
	}
	assert.Equal(t, int64(1000), estimateSpeed(recent))

	// 同一时刻完成时取平均
	same := []*Chunk{
		{UploadSpeedBps: 100, CompletedAt: base},
		{UploadSpeedBps: 300, CompletedAt: base},
	}
	assert.Equal(t, int64(200), estimateSpeed(same))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	opts := DefaultOptions()
	_, err := NewService(opts, NewMemoryStore(), nil)
	assert.Error(t, err)

	_, err = NewService(opts, NewMemoryStore(), &artifact.LocalStore{})
	assert.Error(t, err, "DataDir 为空")

	opts.DataDir = t.TempDir()
	opts.MinChunkSize = 0
	_, err = NewService(opts, NewMemoryStore(), &artifact.LocalStore{})
	assert.Error(t, err)
}
