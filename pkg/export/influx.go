package export

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"barcache/pkg/dataset"
	"barcache/pkg/logger"
)

// InfluxConfig InfluxDB 导出配置
type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// InfluxExporter 把合并后的结果表写入 InfluxDB。
// 回补完成后供下游看板/分析使用，写入走异步 API。
type InfluxExporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	log      *logrus.Entry
}

// NewInfluxExporter 创建 InfluxDB 导出器
func NewInfluxExporter(config InfluxConfig) *InfluxExporter {
	client := influxdb2.NewClient(config.URL, config.Token)
	writeAPI := client.WriteAPI(config.Org, config.Bucket)

	e := &InfluxExporter{
		client:   client,
		writeAPI: writeAPI,
		log:      logger.WithComponent("influx_exporter"),
	}

	// 异步写入的错误只能通过错误通道观察
	go func() {
		for err := range writeAPI.Errors() {
			e.log.WithError(err).Error("InfluxDB 写入失败")
		}
	}()

	return e
}

// ExportTable 写入一张结果表，measurement 按数据集类别区分
func (e *InfluxExporter) ExportTable(kind dataset.Kind, table dataset.Table) {
	for _, row := range table {
		fields := make(map[string]interface{}, len(row.Fields))
		for name, value := range row.Fields {
			fields[name] = value
		}

		point := influxdb2.NewPoint(
			string(kind),
			map[string]string{"symbol": row.Symbol},
			fields,
			row.Date,
		)
		e.writeAPI.WritePoint(point)
	}
	e.log.Debugf("已提交 %d 个数据点 (%s)", len(table), kind)
}

// Flush 等待异步写入落盘
func (e *InfluxExporter) Flush() {
	e.writeAPI.Flush()
}

// Close 关闭导出器
func (e *InfluxExporter) Close() {
	e.writeAPI.Flush()
	e.client.Close()
}
