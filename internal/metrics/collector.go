package metrics

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// StatusSource reports the state of the local installation.
type StatusSource interface {
	Installed() bool
	Running(ctx context.Context) bool
	// LocalVersion returns the installed version token, "" when unknown.
	LocalVersion() string
}

// Collector collects and updates installation metrics periodically.
type Collector struct {
	metrics   *Metrics
	source    StatusSource
	interval  time.Duration
	startTime time.Time
	ticker    *time.Ticker
	done      chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewCollector creates a new metrics collector polling source every interval.
func NewCollector(metrics *Metrics, source StatusSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:   metrics,
		source:    source,
		interval:  interval,
		startTime: time.Now(),
	}
}

// Start starts the metrics collector.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	c.running = true
	c.done = make(chan struct{})
	c.ticker = time.NewTicker(c.interval)

	go c.collectLoop(c.done, c.ticker)
}

// Stop stops the metrics collector.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	close(c.done)
	c.ticker.Stop()
	c.running = false
}

func (c *Collector) collectLoop(done chan struct{}, ticker *time.Ticker) {
	c.collect()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// collect performs a single metrics collection.
func (c *Collector) collect() {
	c.metrics.Uptime.Set(time.Since(c.startTime).Seconds())

	if c.source == nil {
		return
	}

	c.metrics.GameInstalled.Set(boolGauge(c.source.Installed()))

	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()
	c.metrics.GameRunning.Set(boolGauge(c.source.Running(ctx)))

	v, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(c.source.LocalVersion()), ",", ".", 1), 64)
	if err != nil {
		v = -1
	}
	c.metrics.LocalVersion.Set(v)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
