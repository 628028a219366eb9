package engine

import (
	"time"

	"barcache/pkg/dataset"
)

// SplitYears 把日期范围按自然年拆分为有序子区间。
// 切分点是严格位于 start.Year 和 end.Year 之间的每个 1 月 1 日，
// 因此任何子区间至多跨越一个年度边界；子区间的并集恰好等于原区间。
// split 为 false 或区间落在同一年内时返回原区间本身。
func SplitYears(r DateRange, split bool) []DateRange {
	points := []time.Time{dataset.DateOf(r.Start)}
	if split {
		for year := r.Start.Year() + 1; year < r.End.Year(); year++ {
			points = append(points, time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC))
		}
	}
	points = append(points, dataset.DateOf(r.End))

	spans := make([]DateRange, 0, len(points)-1)
	for i := 0; i+1 < len(points); i++ {
		end := points[i+1]
		if i != len(points)-2 {
			// 非最后一段止于下个切分点的前一天
			end = end.AddDate(0, 0, -1)
		}
		spans = append(spans, DateRange{Start: points[i], End: end})
	}
	return spans
}
