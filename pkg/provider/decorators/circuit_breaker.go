package decorators

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"barcache/pkg/dataset"
	"barcache/pkg/logger"
	"barcache/pkg/provider"
)

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Name        string        `yaml:"name"`          // 熔断器名称
	MaxRequests uint32        `yaml:"max_requests"`  // 半开状态下的最大请求数
	Interval    time.Duration `yaml:"interval"`      // 统计窗口时间
	Timeout     time.Duration `yaml:"timeout"`       // 熔断器打开后的超时时间
	ReadyToTrip uint32        `yaml:"ready_to_trip"` // 触发熔断的失败次数阈值
}

// DefaultCircuitBreakerConfig 默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "DailyBarProvider",
		MaxRequests: 5,                // 半开状态允许5个请求
		Interval:    60 * time.Second, // 60秒统计窗口
		Timeout:     30 * time.Second, // 熔断30秒
		ReadyToTrip: 5,                // 连续5次失败触发熔断
	}
}

// CircuitBreakerStats 熔断器统计信息
type CircuitBreakerStats struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	LastFailure        time.Time `json:"last_failure"`
}

// CircuitBreakerProvider 日线提供商的熔断器装饰器。
// 上游连续失败达到阈值后快速失败一段时间，避免雪崩式重试。
type CircuitBreakerProvider struct {
	inner  provider.DailyBarProvider
	cb     *gobreaker.CircuitBreaker
	config *CircuitBreakerConfig

	mu    sync.RWMutex
	stats CircuitBreakerStats
}

// NewCircuitBreakerProvider 创建熔断器装饰器
func NewCircuitBreakerProvider(inner provider.DailyBarProvider, config *CircuitBreakerConfig) *CircuitBreakerProvider {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	log := logger.WithComponent("CircuitBreaker")
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ReadyToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("熔断器 %s 状态从 %v 变更为 %v", name, from, to)
		},
	}

	return &CircuitBreakerProvider{
		inner:  inner,
		cb:     gobreaker.NewCircuitBreaker(settings),
		config: config,
	}
}

// Name 返回装饰后的提供商名称
func (p *CircuitBreakerProvider) Name() string {
	return p.inner.Name() + "+breaker"
}

// IsHealthy 熔断器打开时视为不健康
func (p *CircuitBreakerProvider) IsHealthy() bool {
	return p.cb.State() != gobreaker.StateOpen && p.inner.IsHealthy()
}

// GetRateLimit 返回内层提供商的限流间隔
func (p *CircuitBreakerProvider) GetRateLimit() time.Duration {
	return p.inner.GetRateLimit()
}

// FetchDailyBars 经熔断器保护的日线拉取
func (p *CircuitBreakerProvider) FetchDailyBars(ctx context.Context, symbols []string, start, end time.Time, adjust dataset.Adjust) ([]dataset.Row, error) {
	result, err := p.cb.Execute(func() (interface{}, error) {
		return p.inner.FetchDailyBars(ctx, symbols, start, end, adjust)
	})

	p.mu.Lock()
	p.stats.TotalRequests++
	if err != nil {
		p.stats.FailedRequests++
		p.stats.LastFailure = time.Now()
	} else {
		p.stats.SuccessfulRequests++
	}
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return result.([]dataset.Row), nil
}

// Stats 获取熔断器统计信息
func (p *CircuitBreakerProvider) Stats() CircuitBreakerStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

var _ provider.DailyBarProvider = (*CircuitBreakerProvider)(nil)
