package uploadcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/code"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"
	"golang.org/x/sync/semaphore"
)

// TaskState 合并任务状态
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskDiscarded TaskState = "discarded" // 合并期间会话被取消或过期
	TaskSkipped   TaskState = "skipped"   // 未抢到 assembling 状态
)

const finishedTaskRetention = time.Hour

// AssemblyTask 合并任务的可观测状态
type AssemblyTask struct {
	SessionId  uint64
	UploadId   string
	State      TaskState
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

func (t *AssemblyTask) finished() bool {
	return t.State != TaskQueued && t.State != TaskRunning
}

// Assembler 后台合并执行器，同一会话同时最多一个任务
type Assembler struct {
	svc    *Service
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	tasks map[uint64]*AssemblyTask
}

func newAssembler(svc *Service, workers int64) *Assembler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Assembler{
		svc:    svc,
		sem:    semaphore.NewWeighted(workers),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[uint64]*AssemblyTask),
	}
}

// Submit 提交合并任务，不阻塞调用方；同一会话已有进行中的任务时返回 false
func (a *Assembler) Submit(sess *Session) bool {
	now := a.svc.now()

	a.mu.Lock()
	if t, ok := a.tasks[sess.Id]; ok && !t.finished() {
		a.mu.Unlock()
		return false
	}
	a.pruneLocked(now)
	a.tasks[sess.Id] = &AssemblyTask{
		SessionId: sess.Id,
		UploadId:  sess.UploadId,
		State:     TaskQueued,
		QueuedAt:  now,
	}
	a.wg.Add(1)
	a.mu.Unlock()

	logx.Infof("[分片组装] 任务已提交, uploadId=%s, sessionId=%d", sess.UploadId, sess.Id)
	threading.GoSafe(func() {
		defer a.wg.Done()
		a.run(sess.Id)
	})
	return true
}

func (a *Assembler) run(sessionId uint64) {
	if err := a.sem.Acquire(a.ctx, 1); err != nil {
		a.finish(sessionId, TaskFailed, fmt.Errorf("执行器已关闭: %w", err))
		return
	}
	defer a.sem.Release(1)

	a.update(sessionId, func(t *AssemblyTask) {
		t.State = TaskRunning
		t.StartedAt = a.svc.now()
	})
	state, err := a.svc.assemble(a.ctx, sessionId)
	a.finish(sessionId, state, err)
}

func (a *Assembler) finish(sessionId uint64, state TaskState, err error) {
	var task AssemblyTask
	a.update(sessionId, func(t *AssemblyTask) {
		t.State = state
		t.FinishedAt = a.svc.now()
		if err != nil {
			t.Error = err.Error()
		}
		task = *t
	})

	elapsed := task.FinishedAt.Sub(task.QueuedAt)
	if err != nil {
		logx.Errorf("[分片组装] 任务结束, uploadId=%s, state=%s, elapsed=%v, error=%+v", task.UploadId, state, elapsed, err)
		return
	}
	logx.Infof("[分片组装] 任务结束, uploadId=%s, state=%s, elapsed=%v", task.UploadId, state, elapsed)
}

func (a *Assembler) update(sessionId uint64, fn func(t *AssemblyTask)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.tasks[sessionId]; ok {
		fn(t)
	}
}

// pruneLocked 清除超过保留期的已结束任务
func (a *Assembler) pruneLocked(now time.Time) {
	for id, t := range a.tasks {
		if t.finished() && now.Sub(t.FinishedAt) > finishedTaskRetention {
			delete(a.tasks, id)
		}
	}
}

// Task 查询会话最近一次合并任务
func (a *Assembler) Task(sessionId uint64) (AssemblyTask, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tasks[sessionId]
	if !ok {
		return AssemblyTask{}, false
	}
	return *t, true
}

// Wait 等待当前全部任务结束
func (a *Assembler) Wait() {
	a.wg.Wait()
}

// Close 等待进行中的任务，超时后取消尚未开始的任务
func (a *Assembler) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.cancel()
		return nil
	case <-ctx.Done():
		a.cancel()
		<-done
		return ctx.Err()
	}
}

// assemble 单个会话的合并流程：抢占状态、顺序拼接、校验、发布
func (s *Service) assemble(ctx context.Context, sessionId uint64) (TaskState, error) {
	won, err := s.store.BeginAssembly(ctx, sessionId)
	if err != nil {
		return TaskFailed, errors.Wrap(err, "抢占合并状态失败")
	}
	if !won {
		return TaskSkipped, nil
	}

	sess, err := s.store.GetSession(ctx, sessionId)
	if err != nil {
		return TaskFailed, errors.Wrap(err, "读取会话失败")
	}
	s.emit(ctx, newEvent(EventSessionAssembling, sess, -1, ""))

	chunks, err := s.store.ListChunks(ctx, sessionId)
	if err != nil {
		return TaskFailed, errors.Wrap(err, "读取分片列表失败")
	}
	if err := verifyChunkPlan(sess, chunks); err != nil {
		return TaskFailed, s.failAssembly(ctx, sess, code.StorageIOError, code.ErrNameStorageIOError, err)
	}

	computed, err := s.concatChunks(sess, chunks)
	if err != nil {
		// 分片保留供人工排查，不自动重试
		s.removePart(ctx, sess)
		return TaskFailed, s.failAssembly(ctx, sess, code.StorageIOError, code.ErrNameStorageIOError, err)
	}

	if sess.FileHash != "" && sess.FileHash != computed {
		s.removePart(ctx, sess)
		return TaskFailed, s.failAssembly(ctx, sess, code.AssemblyIntegrityMismatch, code.ErrNameAssemblyIntegrityMismatch,
			fmt.Errorf("文件哈希不一致: 声明 %s, 实际 %s", sess.FileHash, computed))
	}

	// 发布前复核，期间被取消或过期则丢弃产物
	current, err := s.store.GetSession(ctx, sessionId)
	if err != nil {
		s.removePart(ctx, sess)
		return TaskFailed, errors.Wrap(err, "复核会话状态失败")
	}
	if current.Status != SessionAssembling {
		s.cleanupFiles(ctx, current)
		return TaskDiscarded, nil
	}

	key := artifactKey(sess)
	location, err := s.artifacts.Commit(ctx, s.chunks.AssemblyPath(sess.UploadId), key)
	if err != nil {
		s.removePart(ctx, sess)
		return TaskFailed, s.failAssembly(ctx, sess, code.StorageIOError, code.ErrNameStorageIOError, err)
	}

	ok, err := s.store.TransitionStatus(ctx, sessionId, []SessionStatus{SessionAssembling}, SessionCompleted, StatusChange{
		StoragePath:  location,
		ComputedHash: computed,
		CompletedAt:  s.now(),
	})
	if err != nil || !ok {
		// 最后一步失败或被抢先取消，撤回已发布的产物
		if rmErr := s.artifacts.Remove(ctx, location); rmErr != nil {
			logx.WithContext(ctx).Errorf("[分片组装] 撤回产物失败, uploadId=%s, location=%s, error=%v", sess.UploadId, location, rmErr)
		}
		if err != nil {
			return TaskFailed, errors.Wrap(err, "更新会话为完成状态失败")
		}
		if current, err = s.store.GetSession(ctx, sessionId); err == nil {
			s.cleanupFiles(ctx, current)
		}
		return TaskDiscarded, nil
	}

	sess.Status = SessionCompleted
	sess.StoragePath = location
	sess.ComputedHash = computed
	s.cleanupFiles(ctx, sess)

	logx.WithContext(ctx).Infof("[分片组装] 合并完成, uploadId=%s, size=%d, sha256=%s, location=%s",
		sess.UploadId, sess.FileSize, computed, location)
	s.emit(ctx, newEvent(EventSessionCompleted, sess, -1, location))
	return TaskCompleted, nil
}

// concatChunks 按序号升序拼接到中间文件并计算整体 SHA-256
func (s *Service) concatChunks(sess *Session, chunks []*Chunk) (string, error) {
	part, err := s.chunks.CreateAssembly(sess.UploadId)
	if err != nil {
		return "", err
	}

	hash := sha256.New()
	w := io.MultiWriter(part, hash)
	var written int64
	for _, c := range chunks {
		n, err := s.copyChunk(w, c)
		written += n
		if err != nil {
			part.Close()
			return "", err
		}
	}

	if err := part.Sync(); err != nil {
		part.Close()
		return "", errors.Wrap(err, "同步合并文件失败")
	}
	if err := part.Close(); err != nil {
		return "", errors.Wrap(err, "关闭合并文件失败")
	}
	if written != sess.FileSize {
		return "", fmt.Errorf("合并后大小不一致: 期望 %d, 实际 %d", sess.FileSize, written)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func (s *Service) copyChunk(w io.Writer, c *Chunk) (int64, error) {
	r, err := s.chunks.OpenChunk(c.StoragePath)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	n, err := io.Copy(w, r)
	if err != nil {
		return n, errors.Wrapf(err, "读取分片 %d 失败", c.ChunkNumber)
	}
	if n != c.ExpectedSize {
		return n, fmt.Errorf("分片 %d 大小不一致: 期望 %d, 实际 %d", c.ChunkNumber, c.ExpectedSize, n)
	}
	return n, nil
}

// failAssembly 会话标记为 failed 并记录错误，供运维介入
func (s *Service) failAssembly(ctx context.Context, sess *Session, ce error, errName string, cause error) error {
	logx.WithContext(ctx).Errorf("[分片组装] 合并失败, uploadId=%s, error=%s, cause=%+v", sess.UploadId, errName, cause)

	ok, err := s.store.TransitionStatus(ctx, sess.Id, []SessionStatus{SessionAssembling}, SessionFailed, StatusChange{
		ErrorCode:    errName,
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		logx.WithContext(ctx).Errorf("[分片组装] 更新失败状态出错, uploadId=%s, error=%v", sess.UploadId, err)
	}
	if ok {
		sess.Status = SessionFailed
		s.emit(ctx, newEvent(EventSessionFailed, sess, -1, errName))
	}
	return fmt.Errorf("%w: %v", ce, cause)
}

func (s *Service) removePart(ctx context.Context, sess *Session) {
	if err := s.chunks.Remove(s.chunks.AssemblyPath(sess.UploadId)); err != nil {
		logx.WithContext(ctx).Errorf("[分片组装] 删除中间文件失败, uploadId=%s, error=%v", sess.UploadId, err)
	}
}

// verifyChunkPlan 分片必须连续、完整且均已上传
func verifyChunkPlan(sess *Session, chunks []*Chunk) error {
	if int64(len(chunks)) != sess.TotalChunks {
		return fmt.Errorf("分片数量不一致: 期望 %d, 实际 %d", sess.TotalChunks, len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkNumber != int64(i) {
			return fmt.Errorf("分片序号不连续: 位置 %d 为分片 %d", i, c.ChunkNumber)
		}
		if c.Status != ChunkUploaded {
			return fmt.Errorf("分片 %d 状态为 %s", c.ChunkNumber, c.Status)
		}
	}
	return nil
}

// artifactKey 最终产物按租户与会话分目录
func artifactKey(sess *Session) string {
	return path.Join(fmt.Sprint(sess.CooperativeId), sess.UploadId, sess.Filename)
}
