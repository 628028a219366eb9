package dataset

import (
	"strings"
	"time"
)

// KeySpec 缓存键规格
// 同一个数据集的所有日份共享一份规格，键随日期变化。
// 键由纯函数推导，给定相同参数必定得到相同的键。
type KeySpec struct {
	Kind   Kind      // 数据集类别
	Freq   Frequency // 数据频率
	Adjust Adjust    // 复权方式
	Prefix string    // 可选前缀，用于区分标的大类（如 "fund"、"e"）
}

// Key 推导指定交易日的缓存键。
// 行情类键形如 [prefix_]daily_2024-01-02_pre，
// 估值指标类固定为 fund_2024-01-02（基金净值走行情键，前缀 fund）。
func (s KeySpec) Key(day time.Time) string {
	d := DateOf(day).Format(DateFormat)

	if s.Kind == KindFundamentals {
		return "fund_" + d
	}

	parts := make([]string, 0, 4)
	if s.Prefix != "" {
		parts = append(parts, s.Prefix)
	}
	parts = append(parts, string(s.Freq), d, string(s.Adjust))
	return strings.Join(parts, "_")
}

// PriceKeySpec 行情数据的键规格
func PriceKeySpec(freq Frequency, adjust Adjust, prefix string) KeySpec {
	return KeySpec{Kind: KindPrice, Freq: freq, Adjust: adjust, Prefix: prefix}
}

// FundamentalsKeySpec 估值指标数据的键规格
func FundamentalsKeySpec() KeySpec {
	return KeySpec{Kind: KindFundamentals}
}
