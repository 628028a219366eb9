package tencent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"barcache/pkg/dataset"
	"barcache/pkg/logger"
	"barcache/pkg/market"
	"barcache/pkg/provider"
)

const (
	klineBaseURL = "https://web.ifzq.gtimg.cn/appstock/app/fqkline/get"

	// 交易日历从上证综指的日线序列推导
	calendarIndexSymbol = "000001.i"
)

// 复权方式到接口参数的映射
var adjustParam = map[dataset.Adjust]string{
	dataset.AdjustNone: "",
	dataset.AdjustPre:  "qfq",
	dataset.AdjustPost: "hfq",
}

// Provider 腾讯日线数据提供商
type Provider struct {
	httpClient  *http.Client
	baseURL     string
	lastRequest time.Time
	requestMu   sync.Mutex
	rateLimit   time.Duration
	userAgent   string
	log         *logrus.Entry
}

// NewProvider 创建腾讯日线数据提供商
func NewProvider() *Provider {
	return &Provider{
		baseURL: klineBaseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
				MaxConnsPerHost:     10,
			},
			Timeout: 15 * time.Second,
		},
		rateLimit: 200 * time.Millisecond,
		userAgent: "barcache/1.0",
		log:       logger.WithComponent("TencentProvider"),
	}
}

// Name 返回提供商名称
func (p *Provider) Name() string {
	return "tencent"
}

// IsHealthy 检查提供商健康状态
func (p *Provider) IsHealthy() bool {
	return true
}

// GetRateLimit 返回请求间隔限制
func (p *Provider) GetRateLimit() time.Duration {
	return p.rateLimit
}

// SetRateLimit 设置请求频率限制
func (p *Provider) SetRateLimit(limit time.Duration) {
	p.rateLimit = limit
}

// SetTimeout 设置请求超时时间
func (p *Provider) SetTimeout(timeout time.Duration) {
	p.httpClient.Timeout = timeout
}

// FetchDailyBars 批量获取日线数据。
// 腾讯的日线接口按标的查询，这里逐个标的请求并汇总；
// 单个标的无数据不算失败，请求出错则整体失败。
func (p *Provider) FetchDailyBars(ctx context.Context, symbols []string, start, end time.Time, adjust dataset.Adjust) ([]dataset.Row, error) {
	all := make([]dataset.Row, 0)
	for _, symbol := range symbols {
		rows, err := p.fetchSymbol(ctx, symbol, start, end, adjust)
		if err != nil {
			return nil, fmt.Errorf("拉取 %s 日线失败: %w", symbol, err)
		}
		all = append(all, rows...)
	}
	return all, nil
}

// FetchTradingDays 获取交易日列表。
// 用上证综指的不复权日线序列作为交易日历的来源。
func (p *Provider) FetchTradingDays(ctx context.Context, m market.Market) ([]time.Time, error) {
	if m != market.MarketCN {
		return nil, fmt.Errorf("不支持的市场: %s", m)
	}

	// 从一个足够早的日期拉到今天
	start := time.Date(1990, time.December, 19, 0, 0, 0, 0, time.UTC)
	end := dataset.DateOf(time.Now())

	rows, err := p.fetchSymbol(ctx, calendarIndexSymbol, start, end, dataset.AdjustNone)
	if err != nil {
		return nil, fmt.Errorf("拉取指数日线失败: %w", err)
	}

	days := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		days = append(days, row.Date)
	}
	return days, nil
}

// fetchSymbol 拉取单个标的的日线
func (p *Provider) fetchSymbol(ctx context.Context, symbol string, start, end time.Time, adjust dataset.Adjust) ([]dataset.Row, error) {
	tencentSymbol, err := toTencentSymbol(symbol)
	if err != nil {
		return nil, err
	}

	if err := p.enforceRateLimit(ctx); err != nil {
		return nil, err
	}

	count := int(end.Sub(start).Hours()/24) + 1
	url := fmt.Sprintf("%s?param=%s,day,%s,%s,%d,%s",
		p.baseURL, tencentSymbol,
		start.Format(dataset.DateFormat), end.Format(dataset.DateFormat),
		count, adjustParam[adjust])

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}

	rows, err := parseKlineResponse(body, tencentSymbol, symbol, adjust)
	if err != nil {
		return nil, err
	}
	p.log.Debugf("拉取 %s [%s, %s]: %d 行", symbol,
		start.Format(dataset.DateFormat), end.Format(dataset.DateFormat), len(rows))
	return rows, nil
}

// enforceRateLimit 限流控制
func (p *Provider) enforceRateLimit(ctx context.Context) error {
	p.requestMu.Lock()
	defer p.requestMu.Unlock()

	elapsed := time.Since(p.lastRequest)
	if elapsed < p.rateLimit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.rateLimit - elapsed):
		}
	}
	p.lastRequest = time.Now()
	return nil
}

// Close 关闭提供商
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

var (
	_ provider.DailyBarProvider   = (*Provider)(nil)
	_ provider.TradingDayProvider = (*Provider)(nil)
	_ provider.Closable           = (*Provider)(nil)
)
