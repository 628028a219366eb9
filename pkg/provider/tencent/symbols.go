package tencent

import (
	"fmt"
	"strings"

	"barcache/pkg/universe"
)

// toTencentSymbol 将标准符号转换为腾讯接口使用的市场前缀形式。
// 上海市场代码以 5/6/9 开头，其余归入深圳市场。
func toTencentSymbol(symbol string) (string, error) {
	code, t, err := universe.ParseSymbol(symbol)
	if err != nil {
		return "", err
	}
	if len(code) != 6 {
		return "", fmt.Errorf("不支持的标的代码: %q", symbol)
	}

	market := "sz"
	switch code[0] {
	case '5', '6', '9':
		market = "sh"
	}
	if t == universe.TypeIndex && strings.HasPrefix(code, "000") {
		market = "sh"
	}
	return market + code, nil
}
