package market

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"barcache/pkg/dataset"
)

// Calendar 交易日历接口
// 回答"某天某市场是否开市"，并产出区间内的有序交易日序列。
type Calendar interface {
	// IsTradingDay 判断 day 是否为 market 的交易日
	IsTradingDay(market Market, day time.Time) bool

	// TradingDaysBetween 返回 [start, end] 内的有序交易日列表
	TradingDaysBetween(market Market, start, end time.Time) []time.Time
}

// SetCalendar 基于显式交易日列表的日历实现。
// 日列表通常来自数据源的指数日线序列，覆盖范围之外的日期一律视为非交易日。
type SetCalendar struct {
	mu      sync.RWMutex
	markets map[Market]*daySet
}

type daySet struct {
	days  map[time.Time]struct{}
	first time.Time
	last  time.Time
}

// NewSetCalendar 创建空的集合日历
func NewSetCalendar() *SetCalendar {
	return &SetCalendar{
		markets: make(map[Market]*daySet),
	}
}

// Load 为指定市场加载交易日列表，重复调用会整体替换
func (c *SetCalendar) Load(market Market, days []time.Time) error {
	if len(days) == 0 {
		return fmt.Errorf("市场 %s 的交易日列表为空", market)
	}

	normalized := make([]time.Time, 0, len(days))
	set := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		day := dataset.DateOf(d)
		if _, ok := set[day]; ok {
			continue
		}
		set[day] = struct{}{}
		normalized = append(normalized, day)
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].Before(normalized[j]) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets[market] = &daySet{
		days:  set,
		first: normalized[0],
		last:  normalized[len(normalized)-1],
	}
	return nil
}

// Covers 判断日历是否覆盖指定日期（超出覆盖范围的查询结果不可信）
func (c *SetCalendar) Covers(market Market, day time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set, ok := c.markets[market]
	if !ok {
		return false
	}
	d := dataset.DateOf(day)
	return !d.Before(set.first) && !d.After(set.last)
}

func (c *SetCalendar) IsTradingDay(market Market, day time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set, ok := c.markets[market]
	if !ok {
		return false
	}
	_, ok = set.days[dataset.DateOf(day)]
	return ok
}

func (c *SetCalendar) TradingDaysBetween(market Market, start, end time.Time) []time.Time {
	s := dataset.DateOf(start)
	e := dataset.DateOf(end)
	if e.Before(s) {
		return nil
	}

	c.mu.RLock()
	set, ok := c.markets[market]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	out := make([]time.Time, 0)
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		if _, trading := set.days[d]; trading {
			out = append(out, d)
		}
	}
	return out
}

// WeekdayCalendar 周一至周五为交易日的兜底日历，可叠加节假日集合。
// 在拿不到权威交易日列表时使用。
type WeekdayCalendar struct {
	Holidays map[time.Time]struct{}
}

// NewWeekdayCalendar 创建工作日日历
func NewWeekdayCalendar(holidays []time.Time) *WeekdayCalendar {
	set := make(map[time.Time]struct{}, len(holidays))
	for _, h := range holidays {
		set[dataset.DateOf(h)] = struct{}{}
	}
	return &WeekdayCalendar{Holidays: set}
}

func (c *WeekdayCalendar) IsTradingDay(_ Market, day time.Time) bool {
	d := dataset.DateOf(day)
	wd := d.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.Holidays[d]
	return !holiday
}

func (c *WeekdayCalendar) TradingDaysBetween(market Market, start, end time.Time) []time.Time {
	s := dataset.DateOf(start)
	e := dataset.DateOf(end)
	if e.Before(s) {
		return nil
	}

	out := make([]time.Time, 0)
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(market, d) {
			out = append(out, d)
		}
	}
	return out
}

var (
	_ Calendar = (*SetCalendar)(nil)
	_ Calendar = (*WeekdayCalendar)(nil)
)
