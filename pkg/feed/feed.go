package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"barcache/pkg/dataset"
	"barcache/pkg/engine"
	"barcache/pkg/logger"
	"barcache/pkg/market"
	"barcache/pkg/provider"
	"barcache/pkg/universe"
)

// Feed 历史数据门面。
// 把标的全集、交易日历、缓存引擎和数据提供商组装成面向调用方的
// 查询接口，负责符号归一化、缓存键选择和 count 方式的起始日推导。
type Feed struct {
	engine       *engine.Engine
	universe     *universe.Universe
	calendar     market.Calendar
	bars         provider.DailyBarProvider
	fundamentals provider.FundamentalsProvider
	market       market.Market
	log          *logrus.Entry
}

// Options Feed 的装配参数
type Options struct {
	Universe     *universe.Universe
	Calendar     market.Calendar
	Bars         provider.DailyBarProvider
	Fundamentals provider.FundamentalsProvider
	Market       market.Market
}

// New 创建数据门面
func New(eng *engine.Engine, opts Options) *Feed {
	m := opts.Market
	if m == "" {
		m = market.MarketCN
	}
	return &Feed{
		engine:       eng,
		universe:     opts.Universe,
		calendar:     opts.Calendar,
		bars:         opts.Bars,
		fundamentals: opts.Fundamentals,
		market:       m,
		log:          logger.WithComponent("feed"),
	}
}

// QueryOptions 单次查询的参数
type QueryOptions struct {
	Frequency dataset.Frequency // 数据频率，默认日线
	Adjust    dataset.Adjust    // 复权方式，默认前复权
	Count     int               // Start 为零值时，从 End 往前取 Count 个交易日
	Cached    bool              // 是否读写缓存
	CacheEnd  bool              // 是否允许缓存查询末日
	UpdateAll bool              // 忽略缓存整段重拉
	SplitYear bool              // 按自然年拆分扫描区间
	Parallel  int               // 缺口并发拉取数
	Retry     engine.RetryPolicy
}

// DefaultQueryOptions 默认查询参数
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		Frequency: dataset.FreqDaily,
		Adjust:    dataset.AdjustPre,
		Cached:    true,
		SplitYear: true,
	}
}

// GetPrice 获取一组标的的历史行情。
// 查不到任何数据时返回非 nil 的空表。
func (f *Feed) GetPrice(ctx context.Context, symbols []string, start, end time.Time, opts QueryOptions) (dataset.Table, error) {
	if f.bars == nil {
		return nil, fmt.Errorf("未配置日线数据提供商")
	}

	normalized, err := f.normalize(symbols)
	if err != nil {
		return nil, err
	}
	if len(normalized) == 0 {
		return dataset.Table{}, nil
	}

	adjust := opts.Adjust
	if adjust == "" {
		adjust = dataset.AdjustPre
	}
	freq := opts.Frequency
	if freq == "" {
		freq = dataset.FreqDaily
	}

	req := engine.Request{
		Symbols: normalized,
		Market:  f.market,
		Keys:    dataset.PriceKeySpec(freq, adjust, f.keyPrefix(normalized)),
		Fetch: func(ctx context.Context, symbols []string, s, e time.Time) ([]dataset.Row, error) {
			return f.bars.FetchDailyBars(ctx, symbols, s, e, adjust)
		},
	}
	return f.query(ctx, req, start, end, opts)
}

// GetFundamentals 获取一组标的的估值指标序列。
// 上游对单次请求的返回行数有上限，拉取时按日切块。
func (f *Feed) GetFundamentals(ctx context.Context, symbols []string, start, end time.Time, opts QueryOptions) (dataset.Table, error) {
	if f.fundamentals == nil {
		return nil, fmt.Errorf("未配置估值指标提供商")
	}

	normalized, err := f.normalize(symbols)
	if err != nil {
		return nil, err
	}
	if len(normalized) == 0 {
		return dataset.Table{}, nil
	}

	req := engine.Request{
		Symbols: normalized,
		Market:  f.market,
		Keys:    dataset.FundamentalsKeySpec(),
		Fetch:   f.chunkedFundamentalsFetch(),
	}
	return f.query(ctx, req, start, end, opts)
}

// query 组装引擎请求的公共路径
func (f *Feed) query(ctx context.Context, req engine.Request, start, end time.Time, opts QueryOptions) (dataset.Table, error) {
	end = dataset.DateOf(end)
	if start.IsZero() {
		if opts.Count <= 0 {
			return nil, fmt.Errorf("start 为空时必须给出 count")
		}
		start = market.NextTradingDay(f.calendar, f.market, end, 1-opts.Count)
	}

	r, err := engine.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}
	req.Range = r
	req.Options = engine.Options{
		Cached:    opts.Cached,
		CacheEnd:  opts.CacheEnd,
		UpdateAll: opts.UpdateAll,
		SplitYear: opts.SplitYear,
		Parallel:  opts.Parallel,
		Retry:     opts.Retry,
	}

	table, err := f.engine.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	if table == nil {
		table = dataset.Table{}
	}
	return table, nil
}

// normalize 归一化并去重符号，剔除全集外的标的
func (f *Feed) normalize(symbols []string) ([]string, error) {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n, err := universe.Normalize(s)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		if f.universe != nil && !f.universe.Contains(n) {
			f.log.Debugf("标的 %s 不在全集内，忽略", n)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// keyPrefix 由标的类别决定缓存键前缀。
// 股票与指数共用无前缀的键空间，其余类别用类别后缀作前缀隔离。
func (f *Feed) keyPrefix(symbols []string) string {
	for _, s := range symbols {
		_, t, err := universe.ParseSymbol(s)
		if err != nil {
			continue
		}
		switch t {
		case universe.TypeStock, universe.TypeIndex:
			continue
		case universe.TypeFund, universe.TypeETF, universe.TypeLOF:
			return "fund"
		default:
			return string(t)
		}
	}
	return ""
}

// maxFundamentalsRows 估值指标上游单次请求的行数预算
const maxFundamentalsRows = 10000

// chunkedFundamentalsFetch 按行数预算切块的估值拉取回调。
// 一天产生 len(symbols) 行，单块天数 = 预算 / 标的数，从区间末尾
// 往前切块，保持各块覆盖完整交易日。
func (f *Feed) chunkedFundamentalsFetch() engine.FetchFunc {
	return func(ctx context.Context, symbols []string, start, end time.Time) ([]dataset.Row, error) {
		days := f.calendar.TradingDaysBetween(f.market, start, end)
		if len(days) == 0 || len(symbols) == 0 {
			return nil, nil
		}

		maxDays := maxFundamentalsRows / len(symbols)
		if maxDays < 1 {
			maxDays = 1
		}

		all := make([]dataset.Row, 0, len(days)*len(symbols))
		for hi := len(days); hi > 0; hi -= maxDays {
			lo := hi - maxDays
			if lo < 0 {
				lo = 0
			}
			rows, err := f.fundamentals.FetchFundamentals(ctx, symbols, days[lo], days[hi-1])
			if err != nil {
				return nil, err
			}
			all = append(all, rows...)
		}
		return all, nil
	}
}
