package dataset

import (
	"fmt"
	"strconv"
	"time"
)

// 数据源给日期列起的各种名字，统一归并为 date
var dateAliases = []string{"date", "time", "day", "datetime"}

// RowFromRecord 将数据源返回的一条原始记录归一化为 Row。
// 记录中的日期字段可能叫 date/time/day/datetime，取第一个存在的；
// 其余数值字段原样进入 Fields，无法解析为数值的字段丢弃。
func RowFromRecord(symbol string, record map[string]interface{}) (Row, error) {
	row := Row{
		Symbol: symbol,
		Fields: make(map[string]float64, len(record)),
	}

	var dateKey string
	for _, alias := range dateAliases {
		if _, ok := record[alias]; ok {
			dateKey = alias
			break
		}
	}
	if dateKey == "" {
		return Row{}, fmt.Errorf("记录缺少日期字段: %v", record)
	}

	d, err := parseDate(record[dateKey])
	if err != nil {
		return Row{}, fmt.Errorf("解析日期字段 %s 失败: %w", dateKey, err)
	}
	row.Date = d

	for name, value := range record {
		if name == dateKey {
			continue
		}
		if f, ok := toFloat(value); ok {
			row.Fields[name] = f
		}
	}
	return row, nil
}

func parseDate(v interface{}) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return DateOf(d), nil
	case string:
		for _, layout := range []string{DateFormat, "20060102", time.RFC3339} {
			if t, err := time.Parse(layout, d); err == nil {
				return DateOf(t), nil
			}
		}
		return time.Time{}, fmt.Errorf("无法识别的日期格式: %q", d)
	case int:
		return numToDate(int64(d))
	case int64:
		return numToDate(d)
	case float64:
		return numToDate(int64(d))
	default:
		return time.Time{}, fmt.Errorf("不支持的日期类型: %T", v)
	}
}

// numToDate 解析 20240102 形式的数字日期
func numToDate(n int64) (time.Time, error) {
	if n < 1000_0000 || n > 9999_1231 {
		return time.Time{}, fmt.Errorf("无效的数字日期: %d", n)
	}
	year := int(n / 10000)
	month := time.Month(n / 100 % 100)
	day := int(n % 100)
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
}

func toFloat(v interface{}) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	case string:
		parsed, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
