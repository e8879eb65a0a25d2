package uploadcore

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

type chunkKey struct {
	sessionId   uint64
	chunkNumber int64
}

// MemoryStore 单进程内存存储，所有变更在同一把锁内完成，等价于存储层原子更新
type MemoryStore struct {
	mu          sync.Mutex
	nextSession uint64
	nextChunk   uint64
	sessions    map[uint64]*Session
	byUploadId  map[string]uint64
	chunks      map[chunkKey]*Chunk
	chunkById   map[uint64]chunkKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[uint64]*Session),
		byUploadId: make(map[string]uint64),
		chunks:     make(map[chunkKey]*Chunk),
		chunkById:  make(map[uint64]chunkKey),
	}
}

func (m *MemoryStore) InsertSession(_ context.Context, s *Session) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSession++
	cp := *s
	cp.Id = m.nextSession
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	m.sessions[cp.Id] = &cp
	m.byUploadId[cp.UploadId] = cp.Id
	return cp.Id, nil
}

func (m *MemoryStore) FindSession(_ context.Context, cooperativeId uint64, uploadId string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byUploadId[uploadId]
	if !ok {
		return nil, ErrRecordNotFound
	}
	s := m.sessions[id]
	if s.CooperativeId != cooperativeId {
		return nil, ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) GetSession(_ context.Context, id uint64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) TransitionStatus(_ context.Context, id uint64, from []SessionStatus, to SessionStatus, change StatusChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, ErrRecordNotFound
	}
	if !containsStatus(from, s.Status) {
		return false, nil
	}
	s.Status = to
	if change.ErrorCode != "" {
		s.ErrorCode = change.ErrorCode
	}
	if change.ErrorMessage != "" {
		s.ErrorMessage = change.ErrorMessage
	}
	if change.StoragePath != "" {
		s.StoragePath = change.StoragePath
	}
	if change.ComputedHash != "" {
		s.ComputedHash = change.ComputedHash
	}
	if !change.CompletedAt.IsZero() {
		s.CompletedAt = change.CompletedAt
	}
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) BeginAssembly(_ context.Context, id uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, ErrRecordNotFound
	}
	if s.Status != SessionPending && s.Status != SessionUploading {
		return false, nil
	}
	if s.ChunksUploaded < s.TotalChunks {
		return false, nil
	}
	s.Status = SessionAssembling
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) MarkCleaned(_ context.Context, id uint64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrRecordNotFound
	}
	s.CleanedAt = at
	return nil
}

func (m *MemoryStore) FindExpiredSessions(_ context.Context, now time.Time, limit int64) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var list []*Session
	for _, s := range m.sessions {
		if s.IsExpiredAt(now) && s.Status != SessionCompleted && s.CleanedAt.IsZero() {
			cp := *s
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Id < list[j].Id })
	if limit > 0 && int64(len(list)) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemoryStore) FindStalledSessions(_ context.Context, limit int64) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var list []*Session
	for _, s := range m.sessions {
		if s.Status == SessionUploading && s.ChunksUploaded >= s.TotalChunks {
			cp := *s
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Id < list[j].Id })
	if limit > 0 && int64(len(list)) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemoryStore) FindChunk(_ context.Context, sessionId uint64, chunkNumber int64) (*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chunks[chunkKey{sessionId, chunkNumber}]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ListChunks(_ context.Context, sessionId uint64) ([]*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var list []*Chunk
	for k, c := range m.chunks {
		if k.sessionId == sessionId {
			cp := *c
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ChunkNumber < list[j].ChunkNumber })
	return list, nil
}

func (m *MemoryStore) RecentUploaded(ctx context.Context, sessionId uint64, limit int64) ([]*Chunk, error) {
	all, err := m.ListChunks(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	var list []*Chunk
	for _, c := range all {
		if c.Status == ChunkUploaded {
			list = append(list, c)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CompletedAt.After(list[j].CompletedAt) })
	if limit > 0 && int64(len(list)) > limit {
		list = list[:limit]
	}
	return list, nil
}

// chunkLocked 取出或创建分片记录，调用方持有锁
func (m *MemoryStore) chunkLocked(sessionId uint64, chunkNumber, expectedSize int64, at time.Time) *Chunk {
	key := chunkKey{sessionId, chunkNumber}
	c, ok := m.chunks[key]
	if !ok {
		m.nextChunk++
		c = &Chunk{
			Id:           m.nextChunk,
			SessionId:    sessionId,
			ChunkNumber:  chunkNumber,
			ExpectedSize: expectedSize,
			Status:       ChunkPending,
			CreatedAt:    at,
		}
		m.chunks[key] = c
		m.chunkById[c.Id] = key
	}
	return c
}

func (m *MemoryStore) BeginAttempt(_ context.Context, sessionId uint64, chunkNumber, expectedSize int64, at time.Time) (*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.chunkLocked(sessionId, chunkNumber, expectedSize, at)
	c.UploadAttempts++
	if c.Status != ChunkUploaded {
		c.Status = ChunkUploading
	}
	c.StartedAt = at
	c.ErrorMessage = ""
	c.UpdatedAt = at
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) RecordFailure(_ context.Context, sessionId uint64, chunkNumber, expectedSize int64, msg string, at time.Time) (*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.chunkLocked(sessionId, chunkNumber, expectedSize, at)
	c.UploadAttempts++
	if c.Status != ChunkUploaded {
		c.Status = ChunkFailed
	}
	c.ErrorMessage = msg
	c.UpdatedAt = at
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) CompleteAttempt(_ context.Context, chunk *Chunk, receipt ChunkReceipt) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.chunkById[chunk.Id]
	if !ok {
		return false, ErrRecordNotFound
	}
	s, ok := m.sessions[key.sessionId]
	if !ok {
		return false, ErrRecordNotFound
	}
	c := m.chunks[key]
	first := c.Status != ChunkUploaded
	if first {
		s.ChunksUploaded++
		s.BytesUploaded += c.ExpectedSize
		if s.Status == SessionPending {
			s.Status = SessionUploading
		}
		s.UpdatedAt = receipt.CompletedAt
	}
	c.Status = ChunkUploaded
	c.ChunkHash = receipt.ChunkHash
	c.StoragePath = receipt.StoragePath
	c.UploadSpeedBps = receipt.UploadSpeedBps
	c.CompletedAt = receipt.CompletedAt
	c.ErrorMessage = ""
	c.UpdatedAt = receipt.CompletedAt
	return first, nil
}

func (m *MemoryStore) AbortAttempt(_ context.Context, chunkId uint64, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.chunkById[chunkId]
	if !ok {
		return ErrRecordNotFound
	}
	c := m.chunks[key]
	if c.Status != ChunkUploaded {
		c.Status = ChunkFailed
	}
	c.ErrorMessage = msg
	c.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ResetForRetry(_ context.Context, sessionId uint64, chunkNumber, maxRetries int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chunks[chunkKey{sessionId, chunkNumber}]
	if !ok || c.Status != ChunkFailed || c.RetryCount >= maxRetries {
		return false, nil
	}
	c.Status = ChunkPending
	c.RetryCount++
	c.LastRetryAt = at
	c.UpdatedAt = at
	return true, nil
}

func containsStatus(list []SessionStatus, s SessionStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
