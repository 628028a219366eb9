package market

import (
	"time"
)

// Market 市场标识
type Market string

const (
	MarketCN Market = "cn"
	MarketUS Market = "us"
	MarketUK Market = "uk"
)

// Exchange 交易所代码
type Exchange string

const (
	ExchangeSSE   Exchange = "SSE"   // 上交所
	ExchangeSZSE  Exchange = "SZSE"  // 深交所
	ExchangeBSE   Exchange = "BSE"   // 北交所
	ExchangeCFFEX Exchange = "CFFEX" // 中金所
	ExchangeSHFE  Exchange = "SHFE"  // 上期所
	ExchangeCZCE  Exchange = "CZCE"  // 郑商所
	ExchangeDCE   Exchange = "DCE"   // 大商所
	ExchangeINE   Exchange = "INE"   // 上海国际能源交易中心
	ExchangeNYSE  Exchange = "NYSE"
	ExchangeLSE   Exchange = "LSE"
)

// exchangeMarket 交易所到市场的归属表
var exchangeMarket = map[Exchange]Market{
	ExchangeSSE:   MarketCN,
	ExchangeSZSE:  MarketCN,
	ExchangeBSE:   MarketCN,
	ExchangeCFFEX: MarketCN,
	ExchangeSHFE:  MarketCN,
	ExchangeCZCE:  MarketCN,
	ExchangeDCE:   MarketCN,
	ExchangeINE:   MarketCN,
	ExchangeNYSE:  MarketUS,
	ExchangeLSE:   MarketUK,
}

// MarketOf 返回交易所所属的市场，未知交易所返回 false
func MarketOf(exchange Exchange) (Market, bool) {
	m, ok := exchangeMarket[exchange]
	return m, ok
}

// TimeService 提供当前时间接口，用于mock测试
type TimeService interface {
	Now() time.Time
}

// SystemTimeService 使用系统实际时间
type SystemTimeService struct{}

func (s *SystemTimeService) Now() time.Time {
	return time.Now()
}
