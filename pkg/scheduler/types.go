package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"barcache/pkg/dataset"
)

// JobConfig 定义单个回补任务的配置
type JobConfig struct {
	Name     string       `yaml:"name" mapstructure:"name"`
	Enabled  bool         `yaml:"enabled" mapstructure:"enabled"`
	Schedule string       `yaml:"schedule" mapstructure:"schedule"` // cron 表达式，支持秒级
	Kind     dataset.Kind `yaml:"kind" mapstructure:"kind"`         // 数据集类别
	Symbols  []string     `yaml:"symbols" mapstructure:"symbols"`   // 回补的标的集合
	Lookback int          `yaml:"lookback" mapstructure:"lookback"` // 回看交易日数
	CacheEnd bool         `yaml:"cache_end" mapstructure:"cache_end"`
}

// JobsConfig 定义整个任务配置文件结构
type JobsConfig struct {
	Jobs []JobConfig `yaml:"jobs" mapstructure:"jobs"`
}

// Job 表示一个运行中的回补任务
type Job struct {
	ID         string
	Config     JobConfig
	EntryID    cron.EntryID
	Status     JobStatus
	LastRun    *time.Time
	NextRun    *time.Time
	RunCount   int64
	ErrorCount int64
	LastError  error
}

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusStopped  JobStatus = "stopped"
	JobStatusError    JobStatus = "error"
	JobStatusDisabled JobStatus = "disabled"
)

// JobExecutor 任务执行器接口。
// 回补守护进程用 Feed 查询实现此接口。
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}
