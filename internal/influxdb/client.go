package influxdb

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/septivank/meter-dashboard/internal/config"
	"go.uber.org/zap"
)

// PointWriter is the non-blocking write side of the InfluxDB client
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// FactoryConsumption is one factory's summed daily consumption
type FactoryConsumption struct {
	Factory   string
	Day       string
	Total     float64
	Meters    int
	Reporting int
	Exceeded  int
}

// Client exports alarm and consumption summaries to InfluxDB v2
type Client struct {
	client influxdb2.Client
	writer PointWriter
}

// NewClient connects and verifies the server is healthy
func NewClient(ctx context.Context, cfg config.InfluxDBConfig, logger *zap.Logger) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("[INFLUXDB] failed to connect to %s: %w", cfg.URL, err)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Error("influxdb write failed", zap.Error(err))
		}
	}()

	logger.Info("influxdb client connected",
		zap.String("url", cfg.URL),
		zap.String("bucket", cfg.Bucket),
	)
	return &Client{client: client, writer: writeAPI}, nil
}

// NewWithWriter builds a client around an existing writer
func NewWithWriter(w PointWriter) *Client {
	return &Client{writer: w}
}

// WriteAlarmCounts writes how many meters each alarm kind flagged
func (c *Client) WriteAlarmCounts(counts map[string]int, timestamp time.Time) {
	for kind, count := range counts {
		c.writer.WritePoint(write.NewPoint(
			"meter_alarm_counts",
			map[string]string{"kind": kind},
			map[string]interface{}{"count": count},
			timestamp,
		))
	}
}

// WriteFactoryConsumption writes one point per factory for the day
func (c *Client) WriteFactoryConsumption(rows []FactoryConsumption, timestamp time.Time) {
	for _, row := range rows {
		c.writer.WritePoint(write.NewPoint(
			"factory_daily_consumption",
			map[string]string{
				"factory": row.Factory,
				"day":     row.Day,
			},
			map[string]interface{}{
				"total":          row.Total,
				"meter_count":    row.Meters,
				"reporting":      row.Reporting,
				"exceeded_count": row.Exceeded,
			},
			timestamp,
		))
	}
}

// Close flushes pending points and closes the client
func (c *Client) Close() {
	c.writer.Flush()
	if c.client != nil {
		c.client.Close()
	}
}
