package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"barcache/pkg/cache"
	"barcache/pkg/dataset"
	"barcache/pkg/logger"
	"barcache/pkg/market"
)

// Engine 缺口感知的按日缓存引擎。
// 给定日期范围、交易日历、按日缓存和上游拉取回调，只拉取缺失的
// 子区间，合并缓存命中与新拉取的数据，并把新数据按日回写缓存。
// 依赖全部显式注入，没有进程级单例。
type Engine struct {
	cache    cache.Cache
	calendar market.Calendar
	filter   SymbolFilter
	log      *logrus.Entry
}

// New 创建缓存引擎。filter 可以为 nil，表示不做标的过滤。
func New(c cache.Cache, cal market.Calendar, filter SymbolFilter) *Engine {
	return &Engine{
		cache:    c,
		calendar: cal,
		filter:   filter,
		log:      logger.WithComponent("engine"),
	}
}

// Query 执行一次缓存感知查询。
// 结果表按 (Symbol, Date) 升序、无重复；查不到任何数据时返回
// 非 nil 的空表，以区分"确认无数据"和出错。
// 任何缺口拉取失败都会使整个查询失败，不返回悄悄缺了一段的结果。
func (e *Engine) Query(ctx context.Context, req Request) (dataset.Table, error) {
	r, err := NewDateRange(req.Range.Start, req.Range.End)
	if err != nil {
		return nil, err
	}
	if req.Fetch == nil {
		return nil, ErrNoFetchFunc
	}
	req.Range = r

	// 1. 按自然年拆分，限制单次扫描的键数量
	spans := SplitYears(r, req.Options.SplitYear)

	// 2. 逐子区间扫描缺口，收集命中数据
	gaps := make(Gaps, 0)
	hits := make([]dataset.RowGroup, 0)
	for _, span := range spans {
		scan := e.scanSpan(ctx, span, r.End, req)
		gaps = append(gaps, scan.gaps...)
		hits = append(hits, scan.hits...)
	}
	e.log.Infof("查询 %s: %d 个缺口 %v", r, len(gaps), gaps)

	// 3. 回填缺口（可并发），合并前等待全部完成
	fetched, err := e.fetchGaps(ctx, gaps, req)
	if err != nil {
		return nil, err
	}

	// 4. 合并、去重、排序。命中数据在前，重复时保留先出现的一条。
	table := make(dataset.Table, 0, len(fetched))
	for _, group := range hits {
		table = append(table, group...)
	}
	table = append(table, fetched...)
	table = table.Dedupe()
	table.Sort()

	// 5. 新拉取的日子回写缓存
	if req.Options.Cached && len(gaps) > 0 {
		e.persist(ctx, table, gaps, r.End, req)
	}

	e.log.Infof("查询 %s: 返回 %d 行", r, len(table))
	return table, nil
}

// persist 把结果表中落在缺口内的日子按日回写缓存。
// 只写真正经过拉取的日子；查询末日除非显式要求 CacheEnd，
// 否则不落盘，收盘前的末日数据是临时值，会污染缓存。
// 写失败只记日志，本次查询的内存结果不受影响。
func (e *Engine) persist(ctx context.Context, table dataset.Table, gaps Gaps, queryEnd time.Time, req Request) {
	gapDays := e.gapDays(gaps, req)
	if len(gapDays) == 0 {
		return
	}

	for day, group := range table.GroupByDate() {
		if _, fetched := gapDays[day]; !fetched {
			continue
		}
		if day.Equal(queryEnd) && !req.Options.CacheEnd {
			continue
		}
		key := req.Keys.Key(day)
		if err := e.cache.Set(ctx, key, group, req.Options.TTL); err != nil {
			e.log.WithError(err).Warnf("缓存写入失败: %s", key)
		}
	}
}

// isMiss 判断缓存错误是否为普通未命中
func isMiss(err error) bool {
	return cache.IsMiss(err)
}
