package market

import (
	"time"

	"barcache/pkg/dataset"
)

// NextTradingDay 从 day 出发移动 count 个交易日。
// count 为正向后找，为负向前找，为 0 时若 day 本身是交易日则原样返回，
// 否则继续向前找到最近的交易日。
func NextTradingDay(cal Calendar, market Market, day time.Time, count int) time.Time {
	d := dataset.DateOf(day)
	if count == 0 {
		if cal.IsTradingDay(market, d) {
			return d
		}
		count = -1
	}

	step := 1
	if count < 0 {
		step = -1
		count = -count
	}

	// 日历覆盖范围有限，限制最大步进防止死循环
	for i := 0; i < 366*10; i++ {
		d = d.AddDate(0, 0, step)
		if cal.IsTradingDay(market, d) {
			count--
			if count == 0 {
				return d
			}
		}
	}
	return d
}

// openCutoff 开盘后首笔日线数据可用的时刻
var openCutoff = 9*time.Hour + 31*time.Minute

// TraderToday 返回"当前可用数据的最新交易日"。
// 开盘前或非交易日时回退到上一个交易日。
func TraderToday(cal Calendar, market Market, ts TimeService) time.Time {
	now := ts.Now()
	today := dataset.DateOf(now)

	sinceMidnight := now.Sub(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()))
	if !cal.IsTradingDay(market, today) || sinceMidnight < openCutoff {
		return NextTradingDay(cal, market, today, -1)
	}
	return today
}
