package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"barcache/pkg/cache"
	"barcache/pkg/config"
	"barcache/pkg/dataset"
	"barcache/pkg/engine"
	"barcache/pkg/feed"
	"barcache/pkg/logger"
	"barcache/pkg/market"
	"barcache/pkg/provider/decorators"
	"barcache/pkg/provider/tencent"
	"barcache/pkg/scheduler"
)

var (
	configPath = flag.String("config", "", "主配置文件路径")
	jobsPath   = flag.String("jobs", "config/jobs.yaml", "任务配置文件路径")
	logLevel   = flag.String("log-level", "", "日志级别（覆盖配置文件）")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("加载配置失败")
	}

	level := cfg.Logger.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger.Init(logger.Config{
		Level:  level,
		Format: cfg.Logger.Format,
	})
	log := logger.WithComponent("refresher")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	c, err := cache.NewFromConfig(ctx, cfg.Cache)
	cancel()
	if err != nil {
		log.Errorf("创建缓存后端失败: %v", err)
		os.Exit(1)
	}
	defer c.Close()

	p := tencent.NewProvider()
	if cfg.Provider.RateLimit > 0 {
		p.SetRateLimit(cfg.Provider.RateLimit)
	}
	if cfg.Provider.Timeout > 0 {
		p.SetTimeout(cfg.Provider.Timeout)
	}
	defer p.Close()

	bars := decorators.NewCircuitBreakerProvider(p, decorators.DefaultCircuitBreakerConfig())

	log.Info("加载交易日历")
	loadCtx, loadCancel := context.WithTimeout(context.Background(), 60*time.Second)
	calendar, err := feed.LoadCalendar(loadCtx, p, market.MarketCN)
	loadCancel()
	if err != nil {
		log.Errorf("加载交易日历失败: %v", err)
		os.Exit(1)
	}

	eng := engine.New(c, calendar, nil)
	f := feed.New(eng, feed.Options{
		Calendar: calendar,
		Bars:     bars,
		Market:   market.MarketCN,
	})

	sched := scheduler.NewRefreshScheduler()
	sched.SetExecutor(NewFeedExecutor(f, cfg.Engine.Parallel))

	if err := sched.LoadConfig(*jobsPath); err != nil {
		log.Errorf("加载任务配置失败: %v", err)
		os.Exit(1)
	}

	if err := sched.Start(); err != nil {
		log.Errorf("启动调度器失败: %v", err)
		os.Exit(1)
	}
	log.Infof("回补守护进程已启动，任务数: %d", len(sched.GetAllJobs()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("正在停止回补守护进程...")
	if err := sched.Stop(); err != nil {
		log.Errorf("停止调度器失败: %v", err)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(*configPath)
}

// FeedExecutor 基于数据门面的任务执行器。
// 每次触发按任务的回看窗口做一次缓存感知查询，缺口由引擎自动补齐。
type FeedExecutor struct {
	feed     *feed.Feed
	parallel int
	log      *logrus.Entry
}

// NewFeedExecutor 创建任务执行器
func NewFeedExecutor(f *feed.Feed, parallel int) *FeedExecutor {
	return &FeedExecutor{
		feed:     f,
		parallel: parallel,
		log:      logger.WithComponent("feed_executor"),
	}
}

var _ scheduler.JobExecutor = (*FeedExecutor)(nil)

// Execute 执行一次回补任务
func (e *FeedExecutor) Execute(ctx context.Context, job *scheduler.Job) error {
	opts := feed.DefaultQueryOptions()
	opts.Count = job.Config.Lookback
	opts.CacheEnd = job.Config.CacheEnd
	opts.Parallel = e.parallel

	end := time.Now()
	started := time.Now()

	var table dataset.Table
	var err error
	switch job.Config.Kind {
	case dataset.KindFundamentals:
		table, err = e.feed.GetFundamentals(ctx, job.Config.Symbols, time.Time{}, end, opts)
	default:
		table, err = e.feed.GetPrice(ctx, job.Config.Symbols, time.Time{}, end, opts)
	}
	if err != nil {
		return err
	}

	e.log.Infof("任务 %s 回补完成: %d 行，耗时 %v",
		job.Config.Name, len(table), time.Since(started).Round(time.Millisecond))
	return nil
}
