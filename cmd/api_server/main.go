package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"barcache/pkg/cache"
	"barcache/pkg/config"
	"barcache/pkg/dataset"
	"barcache/pkg/engine"
	"barcache/pkg/feed"
	"barcache/pkg/logger"
	"barcache/pkg/market"
	"barcache/pkg/provider/decorators"
	"barcache/pkg/provider/tencent"
)

var (
	configPath = flag.String("config", "", "配置文件路径")
	port       = flag.String("port", "8080", "HTTP 监听端口")
	ginMode    = flag.String("mode", "release", "Gin 运行模式 (debug, release, test)")
	logLevel   = flag.String("log-level", "", "日志级别（覆盖配置文件）")
)

// APIServer 历史数据查询服务。
// 对外提供行情与估值指标的 HTTP 查询接口，内部全部走缓存引擎。
type APIServer struct {
	feed     *feed.Feed
	cache    cache.Cache
	provider *tencent.Provider
	server   *http.Server
	log      *logrus.Entry
}

// ErrorResponse 统一错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BarsResponse 行情查询响应
type BarsResponse struct {
	Symbols []string      `json:"symbols"`
	Start   string        `json:"start"`
	End     string        `json:"end"`
	Count   int           `json:"count"`
	Rows    dataset.Table `json:"rows"`
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("加载配置失败")
	}

	level := cfg.Logger.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger.Init(logger.Config{
		Level:  level,
		Format: cfg.Logger.Format,
	})
	log := logger.WithComponent("api_server")

	gin.SetMode(*ginMode)

	srv, err := NewAPIServer(cfg)
	if err != nil {
		log.WithError(err).Fatal("创建 API 服务失败")
	}
	defer srv.Close()

	if err := srv.Start(*port); err != nil {
		log.WithError(err).Fatal("启动 API 服务失败")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("正在关闭 API 服务...")
	srv.Stop()
}

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(*configPath)
}

// NewAPIServer 组装查询服务：缓存后端、数据提供商、交易日历和数据门面
func NewAPIServer(cfg *config.Config) (*APIServer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := cache.NewFromConfig(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	p := tencent.NewProvider()
	if cfg.Provider.RateLimit > 0 {
		p.SetRateLimit(cfg.Provider.RateLimit)
	}
	if cfg.Provider.Timeout > 0 {
		p.SetTimeout(cfg.Provider.Timeout)
	}
	bars := decorators.NewCircuitBreakerProvider(p, decorators.DefaultCircuitBreakerConfig())

	calendar, err := feed.LoadCalendar(ctx, p, market.MarketCN)
	if err != nil {
		c.Close()
		p.Close()
		return nil, err
	}

	eng := engine.New(c, calendar, nil)
	f := feed.New(eng, feed.Options{
		Calendar: calendar,
		Bars:     bars,
		Market:   market.MarketCN,
	})

	return &APIServer{
		feed:     f,
		cache:    c,
		provider: p,
		log:      logger.WithComponent("api_server"),
	}, nil
}

func (s *APIServer) Start(port string) error {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.healthCheck)
	router.GET("/stats", s.getStats)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/bars", s.getBars)
		v1.GET("/fundamentals", s.getFundamentals)
	}

	s.server = &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	s.log.WithField("port", port).Info("启动 API 服务...")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Fatal("HTTP 服务异常退出")
		}
	}()

	return nil
}

func (s *APIServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("HTTP 服务关闭失败")
	}
}

func (s *APIServer) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.provider != nil {
		s.provider.Close()
	}
}

func (s *APIServer) healthCheck(c *gin.Context) {
	services := map[string]string{}
	status := "ok"

	if s.provider.IsHealthy() {
		services["provider"] = "ok"
	} else {
		services["provider"] = "unhealthy"
		status = "degraded"
	}

	services["cache"] = "ok"

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now(),
		"services":  services,
	})
}

func (s *APIServer) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.Stats())
}

// getBars 查询历史行情。
// 参数: symbols（必填，逗号分隔）、start/end（YYYY-MM-DD）、count、
// adjust（qfq/hfq/none）、freq（1d/1w）、update_all、cache_end。
func (s *APIServer) getBars(c *gin.Context) {
	symbols := splitParam(c.Query("symbols"))
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_symbols",
			Message: "symbols 参数不能为空",
		})
		return
	}

	start, end, err := parseDateParams(c.Query("start"), c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_date",
			Message: err.Error(),
		})
		return
	}

	opts := feed.DefaultQueryOptions()
	if v := c.Query("count"); v != "" {
		count, err := strconv.Atoi(v)
		if err != nil || count <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_count",
				Message: "count 必须是正整数",
			})
			return
		}
		opts.Count = count
	}
	if start.IsZero() && opts.Count == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_range",
			Message: "必须给出 start 或 count",
		})
		return
	}

	switch c.Query("adjust") {
	case "hfq":
		opts.Adjust = dataset.AdjustPost
	case "none":
		opts.Adjust = dataset.AdjustNone
	}
	if c.Query("freq") == "1w" {
		opts.Frequency = dataset.FreqWeekly
	}
	opts.UpdateAll = c.Query("update_all") == "true"
	opts.CacheEnd = c.Query("cache_end") == "true"

	table, err := s.feed.GetPrice(c.Request.Context(), symbols, start, end, opts)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "query_failed",
			Message: err.Error(),
		})
		return
	}

	startStr := ""
	if !start.IsZero() {
		startStr = start.Format(dataset.DateFormat)
	}
	c.JSON(http.StatusOK, BarsResponse{
		Symbols: symbols,
		Start:   startStr,
		End:     end.Format(dataset.DateFormat),
		Count:   len(table),
		Rows:    table,
	})
}

// getFundamentals 查询估值指标序列。
// 参数与 getBars 一致，复权与频率参数不适用。
func (s *APIServer) getFundamentals(c *gin.Context) {
	symbols := splitParam(c.Query("symbols"))
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_symbols",
			Message: "symbols 参数不能为空",
		})
		return
	}

	start, end, err := parseDateParams(c.Query("start"), c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_date",
			Message: err.Error(),
		})
		return
	}

	opts := feed.DefaultQueryOptions()
	if v := c.Query("count"); v != "" {
		count, err := strconv.Atoi(v)
		if err != nil || count <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_count",
				Message: "count 必须是正整数",
			})
			return
		}
		opts.Count = count
	}
	if start.IsZero() && opts.Count == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_range",
			Message: "必须给出 start 或 count",
		})
		return
	}

	table, err := s.feed.GetFundamentals(c.Request.Context(), symbols, start, end, opts)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "query_failed",
			Message: err.Error(),
		})
		return
	}

	startStr := ""
	if !start.IsZero() {
		startStr = start.Format(dataset.DateFormat)
	}
	c.JSON(http.StatusOK, BarsResponse{
		Symbols: symbols,
		Start:   startStr,
		End:     end.Format(dataset.DateFormat),
		Count:   len(table),
		Rows:    table,
	})
}

func splitParam(arg string) []string {
	parts := strings.Split(arg, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDateParams(startArg, endArg string) (start, end time.Time, err error) {
	if startArg != "" {
		start, err = time.Parse(dataset.DateFormat, startArg)
		if err != nil {
			return
		}
	}
	if endArg == "" {
		end = dataset.DateOf(time.Now())
		return
	}
	end, err = time.Parse(dataset.DateFormat, endArg)
	return
}
