package feed

import (
	"context"
	"fmt"

	"barcache/pkg/market"
	"barcache/pkg/provider"
	"barcache/pkg/universe"
)

// LoadCalendar 从交易日提供商构建集合日历
func LoadCalendar(ctx context.Context, p provider.TradingDayProvider, m market.Market) (*market.SetCalendar, error) {
	days, err := p.FetchTradingDays(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("获取交易日列表失败: %w", err)
	}

	cal := market.NewSetCalendar()
	if err := cal.Load(m, days); err != nil {
		return nil, err
	}
	return cal, nil
}

// RefreshUniverse 从标的列表提供商刷新全集
func (f *Feed) RefreshUniverse(ctx context.Context, p provider.SecurityListProvider, types []universe.SecurityType) error {
	securities, err := p.ListSecurities(ctx, types)
	if err != nil {
		return fmt.Errorf("获取标的列表失败: %w", err)
	}

	f.universe.Replace(securities)
	f.log.Infof("标的全集已刷新: %d 个标的", len(securities))
	return nil
}
