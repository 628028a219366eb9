package dataset

import (
	"sort"
	"time"
)

// Kind 数据集类别
// 封闭的类别集合，决定缓存键的前缀规则。
type Kind string

const (
	KindPrice        Kind = "price"        // 日线行情
	KindFundamentals Kind = "fundamentals" // 估值/财务指标
	KindFund         Kind = "fund"         // 基金净值
)

// Frequency 数据频率
type Frequency string

const (
	FreqDaily  Frequency = "daily"
	FreqWeekly Frequency = "weekly"
)

// Adjust 复权方式
type Adjust string

const (
	AdjustNone Adjust = "none"
	AdjustPre  Adjust = "pre"
	AdjustPost Adjust = "post"
)

// DateFormat 缓存键与序列化中统一使用的日期格式
const DateFormat = "2006-01-02"

// Row 一条按 (标的, 日期) 定位的数据记录。
// Fields 保存数据源给出的数值字段（open/high/low/close/volume 或估值指标等）。
type Row struct {
	Symbol string             `json:"symbol"`
	Date   time.Time          `json:"date"`
	Fields map[string]float64 `json:"fields"`
}

// RowGroup 同一个交易日内的全部记录，是缓存的最小单元。
// 缓存中不会出现跨天或半天的条目。
type RowGroup []Row

// Table 合并后的结果表，按 (Symbol, Date) 升序排列。
type Table []Row

// DateOf 将任意时刻归一化到当天零点（UTC）。
// 引擎内部所有日期比较都先经过此归一化。
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay 判断两个时刻是否为同一个自然日
func SameDay(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

// Sort 按 (Symbol, Date) 升序原地排序
func (t Table) Sort() {
	sort.SliceStable(t, func(i, j int) bool {
		if t[i].Symbol != t[j].Symbol {
			return t[i].Symbol < t[j].Symbol
		}
		return t[i].Date.Before(t[j].Date)
	})
}

// Dedupe 去除 (Symbol, Date) 重复的记录，保留首次出现的一条
func (t Table) Dedupe() Table {
	type rowKey struct {
		symbol string
		date   time.Time
	}

	seen := make(map[rowKey]struct{}, len(t))
	out := make(Table, 0, len(t))
	for _, row := range t {
		k := rowKey{symbol: row.Symbol, date: DateOf(row.Date)}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out
}

// GroupByDate 按自然日对记录分组，供引擎回写缓存使用
func (t Table) GroupByDate() map[time.Time]RowGroup {
	groups := make(map[time.Time]RowGroup)
	for _, row := range t {
		d := DateOf(row.Date)
		groups[d] = append(groups[d], row)
	}
	return groups
}

// Symbols 返回表中出现过的标的集合
func (t Table) Symbols() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, row := range t {
		if _, ok := seen[row.Symbol]; ok {
			continue
		}
		seen[row.Symbol] = struct{}{}
		out = append(out, row.Symbol)
	}
	sort.Strings(out)
	return out
}
