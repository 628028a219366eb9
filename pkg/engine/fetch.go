package engine

import (
	"context"
	"sync"

	"barcache/pkg/dataset"
)

// fetchGap 为单个缺口执行回填拉取。
// 先用过滤适配器收窄标的集合；缺口期间无有效标的时直接跳过；
// 上游返回 nil/空结果视为零行，不算失败。
func (e *Engine) fetchGap(ctx context.Context, gap Gap, req Request) ([]dataset.Row, error) {
	symbols := req.Symbols
	if e.filter != nil {
		symbols = e.filter.ValidSymbols(req.Symbols, gap.Start, gap.End)
	}
	if len(symbols) == 0 {
		e.log.Debugf("缺口 %s 内无有效标的，跳过拉取", gap)
		return nil, nil
	}

	var rows []dataset.Row
	err := req.Options.Retry.Do(ctx, func() error {
		fetched, err := req.Fetch(ctx, symbols, gap.Start, gap.End)
		if err != nil {
			return err
		}
		rows = fetched
		return nil
	})
	if err != nil {
		return nil, &FetchError{Gap: gap, Err: err}
	}
	return rows, nil
}

// fetchGaps 拉取全部缺口。
// Parallel > 1 时并发执行；缺口日期互不重叠，并发写缓存不会竞争同一个键。
// 合并阶段必须等全部拉取完成，任何一个缺口失败则整个查询失败。
func (e *Engine) fetchGaps(ctx context.Context, gaps Gaps, req Request) ([]dataset.Row, error) {
	if len(gaps) == 0 {
		return nil, nil
	}

	parallel := req.Options.Parallel
	if parallel <= 1 || len(gaps) == 1 {
		all := make([]dataset.Row, 0)
		for _, gap := range gaps {
			rows, err := e.fetchGap(ctx, gap, req)
			if err != nil {
				return nil, err
			}
			all = append(all, rows...)
		}
		return all, nil
	}

	results := make([][]dataset.Row, len(gaps))
	errs := make([]error, len(gaps))
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup

	for i, gap := range gaps {
		wg.Add(1)
		go func(i int, gap Gap) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i], errs[i] = e.fetchGap(ctx, gap, req)
		}(i, gap)
	}
	wg.Wait()

	// 保持缺口顺序合并，结果与串行路径一致
	all := make([]dataset.Row, 0)
	for i := range gaps {
		if errs[i] != nil {
			return nil, errs[i]
		}
		all = append(all, results[i]...)
	}
	return all, nil
}
