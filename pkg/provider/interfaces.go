package provider

import (
	"context"
	"time"

	"barcache/pkg/dataset"
	"barcache/pkg/market"
	"barcache/pkg/universe"
)

// Provider 是所有数据提供商的基础接口。
// 它定义了所有提供商都必须具备的通用功能，如名称、健康状态和速率限制。
type Provider interface {
	// Name 返回提供商的名称，例如 "tencent"。
	Name() string

	// IsHealthy 检查提供商的健康状态。
	IsHealthy() bool

	// GetRateLimit 返回两个连续请求之间的最小允许间隔。
	GetRateLimit() time.Duration
}

// DailyBarProvider 日线行情提供商接口。
// 引擎的回填回调由此接口的实现供给。
type DailyBarProvider interface {
	Provider

	// FetchDailyBars 批量获取日线数据
	// symbols: 标准形式的标的符号列表
	// start, end: 闭区间日期范围
	// adjust: 复权方式
	FetchDailyBars(ctx context.Context, symbols []string, start, end time.Time, adjust dataset.Adjust) ([]dataset.Row, error)
}

// FundamentalsProvider 估值指标提供商接口
type FundamentalsProvider interface {
	Provider

	// FetchFundamentals 批量获取估值指标数据
	FetchFundamentals(ctx context.Context, symbols []string, start, end time.Time) ([]dataset.Row, error)
}

// SecurityListProvider 标的列表提供商接口，供标的全集初始化使用
type SecurityListProvider interface {
	// ListSecurities 获取全部标的及其上市窗口
	ListSecurities(ctx context.Context, types []universe.SecurityType) ([]universe.Security, error)
}

// TradingDayProvider 交易日列表提供商接口，供集合日历加载使用
type TradingDayProvider interface {
	// FetchTradingDays 获取市场的历史交易日列表
	FetchTradingDays(ctx context.Context, m market.Market) ([]time.Time, error)
}

// Closable 可关闭接口
// 需要清理资源的提供商应实现此接口
type Closable interface {
	Close() error
}
