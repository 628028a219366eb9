package tencent

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"barcache/pkg/dataset"
)

// gbkToUtf8 将GBK编码转换为UTF-8
func gbkToUtf8(gbkData []byte) []byte {
	reader := transform.NewReader(strings.NewReader(string(gbkData)), simplifiedchinese.GBK.NewDecoder())
	data, err := io.ReadAll(reader)
	if err != nil {
		return gbkData
	}
	return data
}

// klineResponse 腾讯日线接口的响应结构
type klineResponse struct {
	Code int                                   `json:"code"`
	Msg  string                                `json:"msg"`
	Data map[string]map[string]json.RawMessage `json:"data"`
}

// 不同复权方式在响应中的字段名
var klineFields = map[dataset.Adjust][]string{
	dataset.AdjustPre:  {"qfqday", "day"},
	dataset.AdjustPost: {"hfqday", "day"},
	dataset.AdjustNone: {"day"},
}

// parseKlineResponse 解析腾讯日线响应。
// 每条K线是一个数组: [日期, 开盘, 收盘, 最高, 最低, 成交量, ...]，
// 解析失败的单条记录跳过，不影响其余数据。
func parseKlineResponse(body []byte, tencentSymbol, symbol string, adjust dataset.Adjust) ([]dataset.Row, error) {
	var resp klineResponse
	if err := json.Unmarshal(gbkToUtf8(body), &resp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("接口返回错误: code=%d msg=%s", resp.Code, resp.Msg)
	}

	entry, ok := resp.Data[tencentSymbol]
	if !ok {
		return nil, nil
	}

	var raw json.RawMessage
	for _, field := range klineFields[adjust] {
		if r, present := entry[field]; present {
			raw = r
			break
		}
	}
	if raw == nil {
		return nil, nil
	}

	var klines [][]interface{}
	if err := json.Unmarshal(raw, &klines); err != nil {
		return nil, fmt.Errorf("解析K线数组失败: %w", err)
	}

	rows := make([]dataset.Row, 0, len(klines))
	for _, k := range klines {
		row, ok := parseKline(symbol, k)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseKline 解析单条K线数组
func parseKline(symbol string, k []interface{}) (dataset.Row, bool) {
	if len(k) < 6 {
		return dataset.Row{}, false
	}

	dateStr, ok := k[0].(string)
	if !ok {
		return dataset.Row{}, false
	}
	date, err := time.Parse(dataset.DateFormat, dateStr)
	if err != nil {
		return dataset.Row{}, false
	}

	names := []string{"open", "close", "high", "low", "volume"}
	fields := make(map[string]float64, len(names))
	for i, name := range names {
		f, ok := parseNumber(k[i+1])
		if !ok {
			return dataset.Row{}, false
		}
		fields[name] = f
	}

	return dataset.Row{
		Symbol: symbol,
		Date:   dataset.DateOf(date),
		Fields: fields,
	}, true
}

func parseNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
