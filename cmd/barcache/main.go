package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"barcache/pkg/cache"
	"barcache/pkg/config"
	"barcache/pkg/dataset"
	"barcache/pkg/engine"
	"barcache/pkg/export"
	"barcache/pkg/feed"
	"barcache/pkg/logger"
	"barcache/pkg/market"
	"barcache/pkg/provider/decorators"
	"barcache/pkg/provider/tencent"
)

var (
	configPath = flag.String("config", "", "配置文件路径（空则使用默认配置）")
	symbolsArg = flag.String("symbols", "", "标的列表，逗号分隔，如 000001.s,600000.s")
	startArg   = flag.String("start", "", "起始日期 YYYY-MM-DD")
	endArg     = flag.String("end", "", "结束日期 YYYY-MM-DD（默认今天）")
	countArg   = flag.Int("count", 0, "不给 start 时，从 end 往前取的交易日数")
	adjustArg  = flag.String("adjust", "qfq", "复权方式 (qfq, hfq, none)")
	freqArg    = flag.String("freq", "1d", "数据频率 (1d, 1w)")
	updateAll  = flag.Bool("update-all", false, "忽略缓存整段重拉")
	cacheEnd   = flag.Bool("cache-end", false, "允许缓存查询末日")
	parallel   = flag.Int("parallel", 0, "缺口并发拉取数（0 表示串行）")
	retries    = flag.Int("retries", 0, "缺口拉取失败的额外重试次数")
	outPath    = flag.String("out", "", "结果输出 CSV 文件（空则打印到标准输出）")
	logLevel   = flag.String("log-level", "", "日志级别（覆盖配置文件）")

	influxURL    = flag.String("influxdb-url", "", "InfluxDB URL（设置后结果同时写入 InfluxDB）")
	influxToken  = flag.String("influxdb-token", "", "InfluxDB token")
	influxOrg    = flag.String("influxdb-org", "barcache", "InfluxDB organization")
	influxBucket = flag.String("influxdb-bucket", "daily_bars", "InfluxDB bucket")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Logger.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger.Init(logger.Config{
		Level:  level,
		Format: cfg.Logger.Format,
	})
	log := logger.WithComponent("barcache")

	symbols := splitSymbols(*symbolsArg)
	if len(symbols) == 0 {
		fmt.Fprintln(os.Stderr, "必须给出 -symbols")
		flag.Usage()
		os.Exit(2)
	}

	start, end, err := parseDates(*startArg, *endArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "日期参数无效: %v\n", err)
		os.Exit(2)
	}
	if start.IsZero() && *countArg <= 0 {
		fmt.Fprintln(os.Stderr, "必须给出 -start 或 -count")
		os.Exit(2)
	}

	ctx := context.Background()

	c, err := cache.NewFromConfig(ctx, cfg.Cache)
	if err != nil {
		log.Errorf("创建缓存后端失败: %v", err)
		os.Exit(1)
	}
	defer c.Close()

	p := tencent.NewProvider()
	if cfg.Provider.RateLimit > 0 {
		p.SetRateLimit(cfg.Provider.RateLimit)
	}
	if cfg.Provider.Timeout > 0 {
		p.SetTimeout(cfg.Provider.Timeout)
	}
	defer p.Close()

	bars := decorators.NewCircuitBreakerProvider(p, decorators.DefaultCircuitBreakerConfig())

	log.Info("加载交易日历")
	calendar, err := feed.LoadCalendar(ctx, p, market.MarketCN)
	if err != nil {
		log.Errorf("加载交易日历失败: %v", err)
		os.Exit(1)
	}

	eng := engine.New(c, calendar, nil)
	f := feed.New(eng, feed.Options{
		Calendar: calendar,
		Bars:     bars,
		Market:   market.MarketCN,
	})

	opts := feed.DefaultQueryOptions()
	opts.Adjust = parseAdjust(*adjustArg)
	opts.Frequency = parseFreq(*freqArg)
	opts.Count = *countArg
	opts.UpdateAll = *updateAll
	opts.CacheEnd = *cacheEnd || cfg.Engine.CacheEnd
	opts.SplitYear = cfg.Engine.SplitYear
	opts.Parallel = *parallel
	if opts.Parallel == 0 {
		opts.Parallel = cfg.Engine.Parallel
	}
	if *retries > 0 {
		opts.Retry = engine.RetryPolicy{MaxAttempts: *retries + 1}
	}

	started := time.Now()
	table, err := f.GetPrice(ctx, symbols, start, end, opts)
	if err != nil {
		log.Errorf("查询失败: %v", err)
		os.Exit(1)
	}
	log.Infof("查询完成: %d 行，耗时 %v", len(table), time.Since(started).Round(time.Millisecond))

	if *influxURL != "" {
		exporter := export.NewInfluxExporter(export.InfluxConfig{
			URL:    *influxURL,
			Token:  *influxToken,
			Org:    *influxOrg,
			Bucket: *influxBucket,
		})
		exporter.ExportTable(dataset.KindPrice, table)
		exporter.Close()
		log.Infof("已导出 %d 行到 InfluxDB", len(table))
	}

	if err := writeTable(table, *outPath); err != nil {
		log.Errorf("写出结果失败: %v", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(*configPath)
}

func splitSymbols(arg string) []string {
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

func parseDates(startArg, endArg string) (start, end time.Time, err error) {
	if startArg != "" {
		start, err = time.Parse(dataset.DateFormat, startArg)
		if err != nil {
			return
		}
	}
	if endArg == "" {
		end = time.Now()
		return
	}
	end, err = time.Parse(dataset.DateFormat, endArg)
	return
}

func parseAdjust(arg string) dataset.Adjust {
	switch arg {
	case "hfq":
		return dataset.AdjustPost
	case "none", "":
		return dataset.AdjustNone
	default:
		return dataset.AdjustPre
	}
}

func parseFreq(arg string) dataset.Frequency {
	if arg == "1w" {
		return dataset.FreqWeekly
	}
	return dataset.FreqDaily
}

// writeTable 把结果表写成 CSV。字段列取全表字段名的并集，按字典序排列。
func writeTable(table dataset.Table, path string) error {
	out := os.Stdout
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	fieldSet := make(map[string]struct{})
	for _, row := range table {
		for name := range row.Fields {
			fieldSet[name] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for name := range fieldSet {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	w := csv.NewWriter(out)
	header := append([]string{"symbol", "date"}, fields...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range table {
		record := make([]string, 0, len(header))
		record = append(record, row.Symbol, row.Date.Format(dataset.DateFormat))
		for _, name := range fields {
			if v, ok := row.Fields[name]; ok {
				record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
