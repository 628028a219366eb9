package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barcache/pkg/cache"
	"barcache/pkg/dataset"
	"barcache/pkg/market"
)

// countingFetch 记录调用情况的拉取回调
type countingFetch struct {
	mu    sync.Mutex
	calls int64
	gaps  []Gap
	err   error
	rows  func(symbols []string, start, end time.Time) []dataset.Row
}

func (f *countingFetch) fn(cal market.Calendar) FetchFunc {
	return func(ctx context.Context, symbols []string, start, end time.Time) ([]dataset.Row, error) {
		atomic.AddInt64(&f.calls, 1)
		f.mu.Lock()
		f.gaps = append(f.gaps, Gap{Start: start, End: end})
		f.mu.Unlock()
		if f.err != nil {
			return nil, f.err
		}
		if f.rows != nil {
			return f.rows(symbols, start, end), nil
		}
		// 默认为区间内每个交易日每个标的生成一行
		out := make([]dataset.Row, 0)
		for _, d := range cal.TradingDaysBetween(market.MarketCN, start, end) {
			for _, s := range symbols {
				out = append(out, dataset.Row{
					Symbol: s,
					Date:   d,
					Fields: map[string]float64{"close": 10.0},
				})
			}
		}
		return out, nil
	}
}

func newTestEngine() (*Engine, *cache.MemoryCache, market.Calendar) {
	c := cache.NewMemoryCache(cache.MemoryCacheConfig{})
	cal := market.NewWeekdayCalendar(nil)
	return New(c, cal, nil), c, cal
}

func newRequest(fetch FetchFunc, start, end string) Request {
	return Request{
		Symbols: []string{"600000.s"},
		Range:   DateRange{Start: day(start), End: day(end)},
		Market:  market.MarketCN,
		Keys:    dataset.PriceKeySpec(dataset.FreqDaily, dataset.AdjustPre, ""),
		Fetch:   fetch,
		Options: DefaultOptions(),
	}
}

func TestQuery_首次查询整段缺口(t *testing.T) {
	eng, _, cal := newTestEngine()
	fetch := &countingFetch{}

	// 2024-01-08 至 2024-01-12 是完整的周一到周五
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")
	table, err := eng.Query(context.Background(), req)

	require.NoError(t, err)
	assert.Len(t, table, 5)
	assert.EqualValues(t, 1, fetch.calls)
	require.Len(t, fetch.gaps, 1)
	assert.Equal(t, day("2024-01-08"), fetch.gaps[0].Start)
	assert.Equal(t, day("2024-01-12"), fetch.gaps[0].End)
}

func TestQuery_二次查询只重拉末日(t *testing.T) {
	eng, _, cal := newTestEngine()
	fetch := &countingFetch{}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")
	ctx := context.Background()

	_, err := eng.Query(ctx, req)
	require.NoError(t, err)
	require.EqualValues(t, 1, fetch.calls)

	// 末日始终按缺失处理，二次查询只产生末日这一个缺口
	table, err := eng.Query(ctx, req)
	require.NoError(t, err)
	assert.Len(t, table, 5)
	require.EqualValues(t, 2, fetch.calls)
	assert.Equal(t, day("2024-01-12"), fetch.gaps[1].Start)
	assert.Equal(t, day("2024-01-12"), fetch.gaps[1].End)
}

func TestQuery_缓存末日后二次查询零拉取(t *testing.T) {
	eng, _, cal := newTestEngine()
	fetch := &countingFetch{}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")
	req.Options.CacheEnd = true
	ctx := context.Background()

	_, err := eng.Query(ctx, req)
	require.NoError(t, err)

	table, err := eng.Query(ctx, req)
	require.NoError(t, err)
	assert.Len(t, table, 5)
	assert.EqualValues(t, 1, fetch.calls, "第二次查询应完全命中缓存")
}

func TestQuery_末日不落盘(t *testing.T) {
	eng, c, cal := newTestEngine()
	fetch := &countingFetch{}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")
	ctx := context.Background()

	_, err := eng.Query(ctx, req)
	require.NoError(t, err)

	// 末日之前的日子已落盘
	_, err = c.Get(ctx, req.Keys.Key(day("2024-01-11")))
	assert.NoError(t, err)

	// 末日没有落盘
	_, err = c.Get(ctx, req.Keys.Key(day("2024-01-12")))
	require.Error(t, err)
	assert.True(t, cache.IsMiss(err))
}

func TestQuery_显式要求时末日落盘(t *testing.T) {
	eng, c, cal := newTestEngine()
	fetch := &countingFetch{}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")
	req.Options.CacheEnd = true
	ctx := context.Background()

	_, err := eng.Query(ctx, req)
	require.NoError(t, err)

	group, err := c.Get(ctx, req.Keys.Key(day("2024-01-12")))
	require.NoError(t, err)
	assert.Len(t, group, 1)
}

func TestQuery_半缓存区间只拉缺失段(t *testing.T) {
	eng, c, cal := newTestEngine()
	fetch := &countingFetch{}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")
	ctx := context.Background()

	// 预填周一和周二
	for _, d := range []string{"2024-01-08", "2024-01-09"} {
		group := dataset.RowGroup{{
			Symbol: "600000.s",
			Date:   day(d),
			Fields: map[string]float64{"close": 9.5},
		}}
		require.NoError(t, c.Set(ctx, req.Keys.Key(day(d)), group, 0))
	}

	table, err := eng.Query(ctx, req)
	require.NoError(t, err)
	assert.Len(t, table, 5)

	require.Len(t, fetch.gaps, 1)
	assert.Equal(t, day("2024-01-10"), fetch.gaps[0].Start)
	assert.Equal(t, day("2024-01-12"), fetch.gaps[0].End)

	// 命中部分保留缓存里的值
	assert.Equal(t, 9.5, table[0].Fields["close"])
}

func TestQuery_缓存空组视为缺失(t *testing.T) {
	eng, c, cal := newTestEngine()
	fetch := &countingFetch{}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-11")
	ctx := context.Background()

	// 周一缓存了空组，应当与完全未缓存同样处理
	require.NoError(t, c.Set(ctx, req.Keys.Key(day("2024-01-08")), dataset.RowGroup{}, 0))

	_, err := eng.Query(ctx, req)
	require.NoError(t, err)
	require.Len(t, fetch.gaps, 1)
	assert.Equal(t, day("2024-01-08"), fetch.gaps[0].Start)
}

// faultyCache 读写都失败的缓存，用于验证缓存故障不影响查询结果
type faultyCache struct {
	*cache.MemoryCache
	gets int64
	sets int64
}

func (fc *faultyCache) Get(ctx context.Context, key string) (dataset.RowGroup, error) {
	atomic.AddInt64(&fc.gets, 1)
	return nil, cache.NewCacheError(cache.ErrCacheIO, "磁盘读取失败")
}

func (fc *faultyCache) Set(ctx context.Context, key string, group dataset.RowGroup, ttl time.Duration) error {
	atomic.AddInt64(&fc.sets, 1)
	return cache.NewCacheError(cache.ErrCacheIO, "磁盘写入失败")
}

func TestQuery_缓存读写故障不影响查询(t *testing.T) {
	fc := &faultyCache{MemoryCache: cache.NewMemoryCache(cache.MemoryCacheConfig{})}
	cal := market.NewWeekdayCalendar(nil)
	eng := New(fc, cal, nil)
	fetch := &countingFetch{}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")

	// 读失败按未命中处理：查询成功，整段作为一个缺口重新拉取
	table, err := eng.Query(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, table, 5)
	require.EqualValues(t, 1, fetch.calls)
	require.Len(t, fetch.gaps, 1)
	assert.Equal(t, day("2024-01-08"), fetch.gaps[0].Start)
	assert.Equal(t, day("2024-01-12"), fetch.gaps[0].End)

	// 末日之外的每个交易日都探测过缓存，写失败只记日志不报错
	assert.EqualValues(t, 4, atomic.LoadInt64(&fc.gets))
	assert.EqualValues(t, 4, atomic.LoadInt64(&fc.sets))
}

func TestQuery_拉取失败整个查询失败(t *testing.T) {
	eng, c, cal := newTestEngine()
	upstream := errors.New("上游超时")
	fetch := &countingFetch{err: upstream}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")
	ctx := context.Background()

	table, err := eng.Query(ctx, req)
	require.Error(t, err)
	assert.Nil(t, table)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, upstream)

	// 失败的查询不产生任何落盘
	_, err = c.Get(ctx, req.Keys.Key(day("2024-01-10")))
	assert.True(t, cache.IsMiss(err))
}

func TestQuery_UpdateAll整段重拉(t *testing.T) {
	eng, _, cal := newTestEngine()
	fetch := &countingFetch{}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")
	ctx := context.Background()

	_, err := eng.Query(ctx, req)
	require.NoError(t, err)

	req.Options.UpdateAll = true
	_, err = eng.Query(ctx, req)
	require.NoError(t, err)

	require.Len(t, fetch.gaps, 2)
	assert.Equal(t, day("2024-01-08"), fetch.gaps[1].Start)
	assert.Equal(t, day("2024-01-12"), fetch.gaps[1].End)
}

func TestQuery_空结果返回非nil空表(t *testing.T) {
	eng, _, cal := newTestEngine()
	fetch := &countingFetch{rows: func([]string, time.Time, time.Time) []dataset.Row {
		return nil
	}}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")

	table, err := eng.Query(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.Empty(t, table)
}

func TestQuery_过滤后无标的跳过拉取(t *testing.T) {
	c := cache.NewMemoryCache(cache.MemoryCacheConfig{})
	cal := market.NewWeekdayCalendar(nil)
	filter := SymbolFilterFunc(func([]string, time.Time, time.Time) []string {
		return nil
	})
	eng := New(c, cal, filter)

	fetch := &countingFetch{}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")

	table, err := eng.Query(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, table)
	assert.EqualValues(t, 0, fetch.calls)
}

func TestQuery_重复记录保留缓存版本(t *testing.T) {
	eng, c, cal := newTestEngine()
	ctx := context.Background()

	keys := dataset.PriceKeySpec(dataset.FreqDaily, dataset.AdjustPre, "")
	cached := dataset.RowGroup{{
		Symbol: "600000.s",
		Date:   day("2024-01-09"),
		Fields: map[string]float64{"close": 9.5},
	}}
	require.NoError(t, c.Set(ctx, keys.Key(day("2024-01-09")), cached, 0))

	// 上游多给了已缓存的周二，去重时保留缓存版本
	fetch := &countingFetch{rows: func(symbols []string, start, end time.Time) []dataset.Row {
		out := make([]dataset.Row, 0)
		for _, d := range cal.TradingDaysBetween(market.MarketCN, day("2024-01-08"), day("2024-01-10")) {
			out = append(out, dataset.Row{
				Symbol: "600000.s",
				Date:   d,
				Fields: map[string]float64{"close": 11.0},
			})
		}
		return out
	}}

	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-10")
	table, err := eng.Query(ctx, req)
	require.NoError(t, err)
	require.Len(t, table, 3)

	assert.Equal(t, 11.0, table[0].Fields["close"])
	assert.Equal(t, 9.5, table[1].Fields["close"], "缓存命中的记录优先")
	assert.Equal(t, 11.0, table[2].Fields["close"])
}

func TestQuery_结果按标的和日期升序(t *testing.T) {
	eng, _, cal := newTestEngine()
	fetch := &countingFetch{rows: func(symbols []string, start, end time.Time) []dataset.Row {
		// 上游乱序返回
		return []dataset.Row{
			{Symbol: "600001.s", Date: day("2024-01-09"), Fields: map[string]float64{}},
			{Symbol: "600000.s", Date: day("2024-01-09"), Fields: map[string]float64{}},
			{Symbol: "600000.s", Date: day("2024-01-08"), Fields: map[string]float64{}},
			{Symbol: "600001.s", Date: day("2024-01-08"), Fields: map[string]float64{}},
		}
	}}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-09")
	req.Symbols = []string{"600000.s", "600001.s"}

	table, err := eng.Query(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, table, 4)

	assert.Equal(t, "600000.s", table[0].Symbol)
	assert.Equal(t, day("2024-01-08"), table[0].Date)
	assert.Equal(t, "600000.s", table[1].Symbol)
	assert.Equal(t, day("2024-01-09"), table[1].Date)
	assert.Equal(t, "600001.s", table[2].Symbol)
	assert.Equal(t, day("2024-01-08"), table[2].Date)
}

func TestQuery_并行与串行结果一致(t *testing.T) {
	ctx := context.Background()

	run := func(parallel int) dataset.Table {
		eng, _, cal := newTestEngine()
		fetch := &countingFetch{}
		// 跨多年产生多个缺口
		req := newRequest(fetch.fn(cal), "2021-06-01", "2024-03-01")
		req.Options.Parallel = parallel

		table, err := eng.Query(ctx, req)
		require.NoError(t, err)
		return table
	}

	serial := run(1)
	parallel := run(4)
	assert.Equal(t, serial, parallel)
}

func TestQuery_缺口落盘后再次命中(t *testing.T) {
	eng, c, cal := newTestEngine()
	fetch := &countingFetch{}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")
	ctx := context.Background()

	_, err := eng.Query(ctx, req)
	require.NoError(t, err)

	// 缺口内除末日外的每个交易日都应有独立条目
	for _, d := range []string{"2024-01-08", "2024-01-09", "2024-01-10", "2024-01-11"} {
		group, err := c.Get(ctx, req.Keys.Key(day(d)))
		require.NoError(t, err, d)
		assert.Len(t, group, 1)
	}
}

func TestQuery_关闭缓存直接拉取不落盘(t *testing.T) {
	eng, c, cal := newTestEngine()
	fetch := &countingFetch{}
	req := newRequest(fetch.fn(cal), "2024-01-08", "2024-01-12")
	req.Options.Cached = false
	ctx := context.Background()

	table, err := eng.Query(ctx, req)
	require.NoError(t, err)
	assert.Len(t, table, 5)

	_, err = c.Get(ctx, req.Keys.Key(day("2024-01-08")))
	assert.True(t, cache.IsMiss(err))
}

func TestQuery_缺少拉取回调报错(t *testing.T) {
	eng, _, _ := newTestEngine()
	req := newRequest(nil, "2024-01-08", "2024-01-12")

	_, err := eng.Query(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoFetchFunc)
}

func TestRetryPolicy_失败后重试(t *testing.T) {
	attempts := 0
	failures := 0
	policy := RetryPolicy{
		MaxAttempts: 3,
		OnFailure:   func() { failures++ },
	}

	err := policy.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("临时故障")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, failures)
}

func TestRetryPolicy_全部失败返回最后错误(t *testing.T) {
	last := errors.New("最终失败")
	policy := RetryPolicy{MaxAttempts: 2}

	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return last
	})

	assert.ErrorIs(t, err, last)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_零值只执行一次(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
