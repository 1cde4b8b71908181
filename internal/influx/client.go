package influx

import (
	"context"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/influxdb3"

	"github.com/OmJan/aiopg/internal/cli"
)

const (
	writeBatchSize = 5000
	writeTimeout   = 10 * time.Second
)

type pointWriter interface {
	WritePoints(ctx context.Context, points []*influxdb3.Point, options ...influxdb3.WriteOption) error
	Close() error
}

// Client buffers points and writes them to InfluxDB in batches. A nil
// *Client is valid and drops everything, so callers need no enabled checks.
type Client struct {
	writer  pointWriter
	ctx     context.Context
	pending []*influxdb3.Point
	failed  bool
}

// NewClient creates a new InfluxDB client.
// Returns nil if export is disabled or the client cannot be built.
func NewClient(ctx context.Context, cfg Config) *Client {
	if !cfg.Enabled {
		return nil
	}

	c, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     cfg.URL,
		Token:    cfg.Token,
		Database: cfg.Database,
	})
	if err != nil {
		cli.Warnf("InfluxDB not available at %s, metrics export disabled: %v", cfg.URL, err)
		return nil
	}

	cli.Infof("InfluxDB export: %s (database %s)", cfg.URL, cfg.Database)
	return newClient(ctx, c)
}

func newClient(ctx context.Context, w pointWriter) *Client {
	return &Client{
		writer:  w,
		ctx:     ctx,
		pending: make([]*influxdb3.Point, 0, writeBatchSize),
	}
}

// WritePoint queues a single point and flushes once a batch is full.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if c == nil || len(fields) == 0 {
		return
	}
	c.pending = append(c.pending, influxdb3.NewPoint(measurement, tags, fields, ts))
	if len(c.pending) >= writeBatchSize {
		c.Flush()
	}
}

// Flush forces all pending writes to be sent. After the first failed write
// the client stops exporting and only warns once.
func (c *Client) Flush() {
	if c == nil || len(c.pending) == 0 {
		return
	}
	points := c.pending
	c.pending = make([]*influxdb3.Point, 0, writeBatchSize)
	if c.failed {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := c.writer.WritePoints(ctx, points); err != nil {
		cli.Warnf("InfluxDB write error, metrics export disabled: %v", err)
		c.failed = true
	}
}

// Close flushes pending writes and closes the connection.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.Flush()
	if err := c.writer.Close(); err != nil {
		cli.Warnf("InfluxDB close: %v", err)
	}
}

// RunID generates a unique run identifier from timestamp.
func RunID(t time.Time) string {
	return t.UTC().Format("20060102-150405")
}
