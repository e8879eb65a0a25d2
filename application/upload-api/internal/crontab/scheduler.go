package crontab

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	// NodeID 为空时使用 hostname-pid
	NodeID string
	// Redis 非空且启用分布式锁时，多副本只有一个节点执行任务
	Redis                 *redis.Redis
	EnableDistributedLock bool
	// LockTTLMultiplier 锁 TTL = 任务超时 * 倍数，默认 1.5
	LockTTLMultiplier float64
	Location          *time.Location
}

// Scheduler 基于 robfig/cron 的定时任务调度
type Scheduler struct {
	config  SchedulerConfig
	cron    *cron.Cron
	locker  Locker
	nodeID  string
	running int32

	mu     sync.RWMutex
	jobs   map[string]Job
	status map[string]*JobSummary
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.NodeID == "" {
		hostname, _ := os.Hostname()
		cfg.NodeID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}
	if cfg.LockTTLMultiplier <= 0 {
		cfg.LockTTLMultiplier = 1.5
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	var locker Locker = NoopLocker{}
	if cfg.EnableDistributedLock && cfg.Redis != nil {
		locker = NewRedisLocker(cfg.Redis, cfg.NodeID)
	}

	return &Scheduler{
		config: cfg,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		locker: locker,
		nodeID: cfg.NodeID,
		jobs:   make(map[string]Job),
		status: make(map[string]*JobSummary),
	}
}

func (s *Scheduler) AddJob(job Job) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name()]; ok {
		return fmt.Errorf("job '%s' already registered", job.Name())
	}
	if _, err := s.cron.AddFunc(job.Spec(), func() { s.Run(context.Background(), job) }); err != nil {
		return fmt.Errorf("add cron func failed: %w", err)
	}
	s.jobs[job.Name()] = job
	s.status[job.Name()] = &JobSummary{Name: job.Name(), LastStatus: JobStatusIdle.String()}

	logx.Infof("Crontab 添加任务成功, name=%s, spec=%s, timeout=%v", job.Name(), job.Spec(), job.Timeout())
	return nil
}

func (s *Scheduler) Start() {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return
	}
	logx.Infof("Crontab 启动调度器, nodeID=%s, 分布式锁=%v, 任务数=%d", s.nodeID, s.config.EnableDistributedLock, len(s.jobs))
	s.cron.Start()
}

// Stop 停止调度并等待执行中的任务结束
func (s *Scheduler) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}
	logx.Infof("Crontab 停止调度器, nodeID=%s", s.nodeID)
	<-s.cron.Stop().Done()
}

// Trigger 按名称同步执行一次
func (s *Scheduler) Trigger(ctx context.Context, name string) (*JobResult, error) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("job '%s' not found", name)
	}
	return s.Run(ctx, job), nil
}

// Run 加锁并在超时控制下执行任务，未抢到锁时跳过
func (s *Scheduler) Run(ctx context.Context, job Job) *JobResult {
	logger := logx.WithContext(ctx)
	result := &JobResult{JobName: job.Name(), NodeID: s.nodeID, StartTime: time.Now()}
	defer func() {
		result.Duration = time.Since(result.StartTime)
		s.record(result)
	}()

	ttl := time.Duration(float64(job.Timeout()) * s.config.LockTTLMultiplier)
	acquired, release, err := s.locker.TryLock(ctx, job.Name(), ttl)
	if err != nil {
		logger.Errorf("Crontab 获取锁失败, job=%s, error=%v", job.Name(), err)
		result.Status, result.Error = JobStatusFailed, err.Error()
		return result
	}
	if !acquired {
		logger.Infof("Crontab 任务跳过(其他节点执行中), job=%s, nodeID=%s", job.Name(), s.nodeID)
		result.Status = JobStatusSkipped
		return result
	}
	defer release()

	execCtx, cancel := context.WithTimeout(ctx, job.Timeout())
	defer cancel()

	if err := s.execute(execCtx, job); err != nil {
		logger.Errorf("Crontab 任务执行失败, job=%s, error=%v", job.Name(), err)
		result.Status, result.Error = JobStatusFailed, err.Error()
		return result
	}
	result.Status = JobStatusSuccess
	logger.Infof("Crontab 任务执行成功, job=%s, duration=%v, nodeID=%s", job.Name(), time.Since(result.StartTime), s.nodeID)
	return result
}

func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
			logx.WithContext(ctx).Errorf("Crontab 任务 panic, job=%s, panic=%v\nstack:\n%s", job.Name(), r, debug.Stack())
		}
	}()
	return job.Execute(ctx)
}

func (s *Scheduler) record(r *JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.status[r.JobName]
	if !ok {
		sum = &JobSummary{Name: r.JobName}
		s.status[r.JobName] = sum
	}
	sum.LastRun = r.StartTime
	sum.LastStatus = r.Status.String()
	switch r.Status {
	case JobStatusSuccess:
		sum.RunCount++
	case JobStatusFailed:
		sum.FailCount++
	}
}

// Summary 任务累计状态
func (s *Scheduler) Summary(name string) (JobSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.status[name]
	if !ok {
		return JobSummary{}, false
	}
	return *sum, true
}
