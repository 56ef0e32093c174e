// Package stats aggregates latency and outcome figures across repeated
// dispatches of a request. A Collector records one sample per dispatch and
// its Summary reports throughput, success rate and latency quantiles.
// Latencies live in a microsecond histogram, so quantiles stay accurate
// from sub-millisecond hits up to one-minute stalls.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram bounds in microseconds. Samples outside are clamped, not dropped.
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
	sigFigures   = 3
)

// Collector accumulates dispatch samples. Safe for concurrent Record calls.
type Collector struct {
	mu        sync.Mutex
	histogram *hdrhistogram.Histogram
	statuses  map[int]int64

	total    atomic.Int64
	success  atomic.Int64
	failures atomic.Int64
	bytes    atomic.Int64

	started time.Time
	ended   time.Time
}

// NewCollector returns an empty collector. Call Start before the first
// Record and Stop after the last so Summary can compute throughput.
func NewCollector() *Collector {
	return &Collector{
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigures),
		statuses:  make(map[int]int64),
	}
}

// Start marks the beginning of the measurement window.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = time.Now()
}

// Stop marks the end of the measurement window.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = time.Now()
}

// Record adds one dispatch outcome. A non-nil err counts as a failure and
// the sample's latency still lands in the histogram, so error spikes show
// up in the quantiles instead of hiding them.
func (c *Collector) Record(status int, bodyBytes int64, duration time.Duration, err error) {
	c.total.Add(1)
	if err != nil {
		c.failures.Add(1)
	} else {
		c.success.Add(1)
		c.bytes.Add(bodyBytes)
	}

	us := duration.Microseconds()
	if us < minLatencyUs {
		us = minLatencyUs
	}
	if us > maxLatencyUs {
		us = maxLatencyUs
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.histogram.RecordValue(us)
	if status > 0 {
		c.statuses[status]++
	}
}

// Summary is a point-in-time report over everything recorded so far.
type Summary struct {
	Requests int64
	Success  int64
	Failures int64
	Statuses map[int]int64
	Bytes    int64

	Duration    time.Duration
	RPS         float64
	SuccessRate float64

	Min  time.Duration
	Mean time.Duration
	P50  time.Duration
	P90  time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration
}

// Summary computes the report. Valid at any point, including mid-run.
func (c *Collector) Summary() Summary {
	s := Summary{
		Requests: c.total.Load(),
		Success:  c.success.Load(),
		Failures: c.failures.Load(),
		Bytes:    c.bytes.Load(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s.Statuses = make(map[int]int64, len(c.statuses))
	for code, n := range c.statuses {
		s.Statuses[code] = n
	}

	if !c.started.IsZero() {
		end := c.ended
		if end.IsZero() {
			end = time.Now()
		}
		s.Duration = end.Sub(c.started)
	}
	if s.Duration > 0 {
		s.RPS = float64(s.Requests) / s.Duration.Seconds()
	}
	if s.Requests > 0 {
		s.SuccessRate = float64(s.Success) / float64(s.Requests) * 100
	}

	if c.histogram.TotalCount() > 0 {
		s.Min = time.Duration(c.histogram.Min()) * time.Microsecond
		s.Max = time.Duration(c.histogram.Max()) * time.Microsecond
		s.Mean = time.Duration(c.histogram.Mean()) * time.Microsecond
		s.P50 = time.Duration(c.histogram.ValueAtQuantile(50)) * time.Microsecond
		s.P90 = time.Duration(c.histogram.ValueAtQuantile(90)) * time.Microsecond
		s.P95 = time.Duration(c.histogram.ValueAtQuantile(95)) * time.Microsecond
		s.P99 = time.Duration(c.histogram.ValueAtQuantile(99)) * time.Microsecond
	}
	return s
}
