package engine

import (
	"context"
	"fmt"
	"time"

	"barcache/pkg/dataset"
	"barcache/pkg/market"
)

// DateRange 闭区间日期范围，Start <= End
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange 构造并校验日期范围，日期归一化到零点
func NewDateRange(start, end time.Time) (DateRange, error) {
	s := dataset.DateOf(start)
	e := dataset.DateOf(end)
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			s.Format(dataset.DateFormat), e.Format(dataset.DateFormat))
	}
	return DateRange{Start: s, End: e}, nil
}

func (r DateRange) String() string {
	return r.Start.Format(dataset.DateFormat) + " ~ " + r.End.Format(dataset.DateFormat)
}

// Gap 一段连续缺失缓存的交易日区间。
// 缺口之间不重叠，按日期升序产出。
type Gap struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (g Gap) String() string {
	return g.Start.Format(dataset.DateFormat) + " ~ " + g.End.Format(dataset.DateFormat)
}

// FetchFunc 上游批量拉取回调。
// 对给定标的集合与日期子区间返回原始记录；允许返回 nil 表示无数据。
// 网络重试等策略属于回调自身，引擎只按 RetryPolicy 重复调用。
type FetchFunc func(ctx context.Context, symbols []string, start, end time.Time) ([]dataset.Row, error)

// SymbolFilter 标的过滤适配器。
// 返回请求集中在指定区间内有效（上市中）的子集。
type SymbolFilter interface {
	ValidSymbols(requested []string, start, end time.Time) []string
}

// SymbolFilterFunc 函数形式的标的过滤适配器
type SymbolFilterFunc func(requested []string, start, end time.Time) []string

func (f SymbolFilterFunc) ValidSymbols(requested []string, start, end time.Time) []string {
	return f(requested, start, end)
}

// RetryPolicy 显式的重试策略值。
// MaxAttempts <= 1 表示不重试；OnFailure 在每次失败后调用，
// 用于重置上游连接之类的善后动作。
type RetryPolicy struct {
	MaxAttempts int
	OnFailure   func()
}

// Do 按策略执行 fn，全部失败时返回最后一次的错误
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if p.OnFailure != nil {
			p.OnFailure()
		}
		if ctx.Err() != nil {
			break
		}
	}
	return err
}

// Options 单次查询的行为开关
type Options struct {
	Cached    bool          // 是否读写缓存
	CacheEnd  bool          // 是否允许缓存查询末日的数据（末日数据可能是盘中临时值）
	UpdateAll bool          // 忽略缓存状态，整段重新拉取
	SplitYear bool          // 是否按自然年拆分区间
	Parallel  int           // 缺口并发拉取数，<=1 为串行
	TTL       time.Duration // 缓存写入TTL，<=0 使用缓存默认值
	Retry     RetryPolicy   // 上游调用的重试策略
}

// DefaultOptions 默认查询行为
func DefaultOptions() Options {
	return Options{
		Cached:    true,
		CacheEnd:  false,
		UpdateAll: false,
		SplitYear: true,
		Parallel:  1,
	}
}

// Request 一次缓存感知查询
type Request struct {
	Symbols []string        // 请求的标的集合
	Range   DateRange       // 查询日期范围
	Market  market.Market   // 交易日历所属市场
	Keys    dataset.KeySpec // 缓存键规格
	Fetch   FetchFunc       // 上游批量拉取回调
	Options Options         // 行为开关
}
