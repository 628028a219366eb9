package universe

import (
	"fmt"
	"strings"
)

// SecurityType 标的类别
// 封闭的类别集合，每个类别有固定的符号后缀。
type SecurityType string

const (
	TypeStock   SecurityType = "s"
	TypeIndex   SecurityType = "i"
	TypeFund    SecurityType = "f"
	TypeETF     SecurityType = "e"
	TypeLOF     SecurityType = "L"
	TypeBond    SecurityType = "b"
	TypeTBond   SecurityType = "t"
	TypeFutures SecurityType = "fu"
	TypeOptions SecurityType = "o"
	TypeUnknown SecurityType = "u"
)

// 按后缀长度降序排列，解析时先试长后缀
var allTypes = []SecurityType{
	TypeFutures, TypeStock, TypeIndex, TypeFund, TypeETF,
	TypeLOF, TypeBond, TypeTBond, TypeOptions, TypeUnknown,
}

// etfPrefixes 6位代码中属于ETF的前两位
var etfPrefixes = map[string]struct{}{
	"15": {}, "16": {}, "50": {}, "51": {}, "52": {},
}

// MakeSymbol 拼装标准符号字符串，形如 600000.s
func MakeSymbol(code string, t SecurityType) string {
	return code + "." + string(t)
}

// ParseSymbol 解析标准符号或裸代码。
// 支持三种形式：带类别后缀（600000.s）、6位裸代码（按前缀推断ETF，
// 其余按股票处理）、其他形式返回错误。
func ParseSymbol(symbol string) (code string, t SecurityType, err error) {
	if symbol == "" {
		return "", TypeUnknown, fmt.Errorf("空的标的符号")
	}

	if i := strings.LastIndex(symbol, "."); i > 0 {
		code = symbol[:i]
		suffix := symbol[i+1:]
		for _, candidate := range allTypes {
			if suffix == string(candidate) {
				return code, candidate, nil
			}
		}
		return "", TypeUnknown, fmt.Errorf("未知的标的类别后缀: %q", symbol)
	}

	if len(symbol) == 6 {
		if _, ok := etfPrefixes[symbol[:2]]; ok {
			return symbol, TypeETF, nil
		}
		return symbol, TypeStock, nil
	}

	return "", TypeUnknown, fmt.Errorf("无法解析的标的符号: %q", symbol)
}

// Normalize 将任意形式的符号归一化为标准形式
func Normalize(symbol string) (string, error) {
	code, t, err := ParseSymbol(symbol)
	if err != nil {
		return "", err
	}
	return MakeSymbol(code, t), nil
}
