package universe

import (
	"sort"
	"sync"
	"time"

	"barcache/pkg/dataset"
)

// Security 一个标的的上市信息
type Security struct {
	Symbol     string       `json:"symbol"`      // 标准符号
	Name       string       `json:"name"`        // 展示名称
	Type       SecurityType `json:"type"`        // 标的类别
	ListDate   time.Time    `json:"list_date"`   // 上市日期
	DelistDate time.Time    `json:"delist_date"` // 退市日期，未退市则为很远的将来
}

// listedDuring 判断标的上市窗口是否与 [start, end] 有交集
func (s Security) listedDuring(start, end time.Time) bool {
	return !s.ListDate.After(end) && !s.DelistDate.Before(start)
}

// Universe 标的全集与上市窗口过滤器。
// 引擎按缺口调用 ValidSymbols，过掉缺口期间未上市或已退市的标的，
// 避免浪费上游请求。
type Universe struct {
	mu         sync.RWMutex
	securities map[string]Security
}

// NewUniverse 创建标的全集
func NewUniverse(securities []Security) *Universe {
	m := make(map[string]Security, len(securities))
	for _, s := range securities {
		m[s.Symbol] = s
	}
	return &Universe{securities: m}
}

// Replace 整体替换标的全集
func (u *Universe) Replace(securities []Security) {
	m := make(map[string]Security, len(securities))
	for _, s := range securities {
		m[s.Symbol] = s
	}

	u.mu.Lock()
	u.securities = m
	u.mu.Unlock()
}

// Contains 判断标的是否在全集内
func (u *Universe) Contains(symbol string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.securities[symbol]
	return ok
}

// Symbols 返回全集内的全部符号
func (u *Universe) Symbols() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make([]string, 0, len(u.securities))
	for symbol := range u.securities {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// SymbolsOfType 返回指定类别的全部符号
func (u *Universe) SymbolsOfType(t SecurityType) []string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make([]string, 0)
	for symbol, sec := range u.securities {
		if sec.Type == t {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}

// ValidSymbols 返回请求集中在 [start, end] 内处于上市状态的子集。
// 不在全集内的符号被剔除，返回结果始终是请求集的子集。
func (u *Universe) ValidSymbols(requested []string, start, end time.Time) []string {
	s := dataset.DateOf(start)
	e := dataset.DateOf(end)

	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make([]string, 0, len(requested))
	for _, symbol := range requested {
		sec, ok := u.securities[symbol]
		if !ok {
			continue
		}
		if sec.listedDuring(s, e) {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}
