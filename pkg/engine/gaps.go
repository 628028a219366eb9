package engine

import (
	"context"
	"time"

	"barcache/pkg/dataset"
)

// spanScan 单个子区间的扫描结果
type spanScan struct {
	gaps Gaps
	hits []dataset.RowGroup
}

// Gaps 有序、互不重叠的缺口列表
type Gaps []Gap

// gapDays 展开缺口覆盖的全部交易日
func (e *Engine) gapDays(gaps Gaps, req Request) map[time.Time]struct{} {
	out := make(map[time.Time]struct{})
	for _, g := range gaps {
		for _, d := range e.calendar.TradingDaysBetween(req.Market, g.Start, g.End) {
			out[d] = struct{}{}
		}
	}
	return out
}

// scanSpan 扫描一个子区间，产出缺口列表和命中的 RowGroup。
// 对区间内的每个交易日查一次缓存；连续缺失的日子合并为一个缺口，
// 遇到命中或区间末尾时闭合。非交易日不参与扫描，也不会出现在缺口里。
//
// 两条特殊规则：
//   - 整体查询的末日始终按缺失处理，除非显式要求 CacheEnd
//     （末日数据在收盘前是临时值，缓存会被污染）；
//   - 缓存读取出错按未命中处理，宁可重新拉取也不中断查询。
func (e *Engine) scanSpan(ctx context.Context, span DateRange, queryEnd time.Time, req Request) spanScan {
	opts := req.Options

	if opts.UpdateAll {
		// 整段重拉，不做任何缓存探测
		return spanScan{gaps: Gaps{{Start: span.Start, End: span.End}}}
	}

	scan := spanScan{}
	var gapStart, gapEnd time.Time
	open := false

	for _, day := range e.calendar.TradingDaysBetween(req.Market, span.Start, span.End) {
		var group dataset.RowGroup
		probe := opts.Cached && (!day.Equal(queryEnd) || opts.CacheEnd)
		if probe {
			g, err := e.cache.Get(ctx, req.Keys.Key(day))
			if err == nil {
				group = g
			} else if !isMiss(err) {
				// 读失败按未命中处理，该日进入缺口重新拉取
				e.log.WithError(err).Warnf("缓存读取失败，按缺失处理: %s", day.Format(dataset.DateFormat))
			}
		}

		if len(group) == 0 {
			if !open {
				gapStart = day
				open = true
			}
			gapEnd = day
			continue
		}

		scan.hits = append(scan.hits, group)
		if open {
			scan.gaps = append(scan.gaps, Gap{Start: gapStart, End: gapEnd})
			open = false
		}
	}

	if open {
		scan.gaps = append(scan.gaps, Gap{Start: gapStart, End: gapEnd})
	}
	return scan
}
