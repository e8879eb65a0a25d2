package crontab

import (
	"context"
	"time"
)

// Job 定时任务
type Job interface {
	// Name 任务名，同时作为分布式锁的 key
	Name() string
	// Spec cron 表达式，支持秒级与 @every 描述符
	Spec() string
	// Timeout 单次执行超时，超时后 ctx 被取消
	Timeout() time.Duration
	Execute(ctx context.Context) error
}

// JobStatus 任务状态
type JobStatus int

const (
	JobStatusIdle JobStatus = iota
	JobStatusRunning
	JobStatusSuccess
	JobStatusFailed
	JobStatusSkipped
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusIdle:
		return "idle"
	case JobStatusRunning:
		return "running"
	case JobStatusSuccess:
		return "success"
	case JobStatusFailed:
		return "failed"
	case JobStatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// JobResult 单次执行结果
type JobResult struct {
	JobName   string        `json:"job_name"`
	NodeID    string        `json:"node_id"`
	Status    JobStatus     `json:"status"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// JobSummary 任务累计状态
type JobSummary struct {
	Name       string    `json:"name"`
	LastRun    time.Time `json:"last_run"`
	LastStatus string    `json:"last_status"`
	RunCount   int64     `json:"run_count"`
	FailCount  int64     `json:"fail_count"`
}

type funcJob struct {
	name    string
	spec    string
	timeout time.Duration
	fn      func(ctx context.Context) error
}

// FuncJob 用函数快速构造任务，timeout 为 0 时使用 5 分钟
func FuncJob(name, spec string, timeout time.Duration, fn func(ctx context.Context) error) Job {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &funcJob{name: name, spec: spec, timeout: timeout, fn: fn}
}

func (j *funcJob) Name() string                      { return j.name }
func (j *funcJob) Spec() string                      { return j.spec }
func (j *funcJob) Timeout() time.Duration            { return j.timeout }
func (j *funcJob) Execute(ctx context.Context) error { return j.fn(ctx) }
