package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// SessionRecord summarises one finished session.
type SessionRecord struct {
	OK            bool
	Err           error
	BytesSent     int64
	BytesReceived int64
}

// Collector records per-request metrics in a thread-safe manner.
type Collector struct {
	mu             sync.Mutex
	requests       latencyTrack
	connects       latencyTrack
	sessionsOK     int64
	sessionsFailed int64
	connectFails   int64
	bytesSent      int64
	bytesRecv      int64
	errorsByKind   map[string]int64
	start          time.Time
}

type latencyTrack struct {
	hist      *hdrhistogram.Histogram
	successes int64
	failures  int64
	min       time.Duration
	max       time.Duration
	sum       time.Duration
}

// LatencyStats summarises one latency histogram.
type LatencyStats struct {
	Min  time.Duration `json:"-" yaml:"-"`
	Max  time.Duration `json:"-" yaml:"-"`
	Mean time.Duration `json:"-" yaml:"-"`
	P50  time.Duration `json:"-" yaml:"-"`
	P90  time.Duration `json:"-" yaml:"-"`
	P95  time.Duration `json:"-" yaml:"-"`
	P99  time.Duration `json:"-" yaml:"-"`

	MinMs  float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs  float64 `json:"max_ms" yaml:"max_ms"`
	MeanMs float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms  float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms  float64 `json:"p90_ms" yaml:"p90_ms"`
	P95Ms  float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms  float64 `json:"p99_ms" yaml:"p99_ms"`
}

// Stats represents aggregated metrics.
type Stats struct {
	Sessions         int64 `json:"sessions" yaml:"sessions"`
	SessionSuccesses int64 `json:"session_successes" yaml:"session_successes"`
	SessionFailures  int64 `json:"session_failures" yaml:"session_failures"`

	Total     int64 `json:"total_requests" yaml:"total_requests"`
	Successes int64 `json:"successful_requests" yaml:"successful_requests"`
	Failures  int64 `json:"failed_requests" yaml:"failed_requests"`

	ConnectFailures int64 `json:"connect_failures" yaml:"connect_failures"`
	BytesSent       int64 `json:"bytes_sent" yaml:"bytes_sent"`
	BytesReceived   int64 `json:"bytes_received" yaml:"bytes_received"`

	Duration       time.Duration `json:"-" yaml:"-"`
	DurationMs     float64       `json:"duration_ms" yaml:"duration_ms"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`
	SessionsPerSec float64       `json:"sessions_per_sec" yaml:"sessions_per_sec"`

	Latency LatencyStats   `json:"latency" yaml:"latency"`
	Connect LatencyStats   `json:"connect" yaml:"connect"`
	Errors  map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func NewCollector() *Collector {
	return &Collector{
		requests:     newLatencyTrack(),
		connects:     newLatencyTrack(),
		errorsByKind: make(map[string]int64),
		start:        time.Now(),
	}
}

func newLatencyTrack() latencyTrack {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return latencyTrack{hist: hdrhistogram.New(1, 60_000_000, 3)}
}

// Start marks the beginning of the run.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// RecordConnect records how long a dial took. Failed dials are counted but
// do not enter the latency histogram.
func (c *Collector) RecordConnect(latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.connectFails++
		c.connects.failures++
		return
	}
	c.connects.record(latency)
}

// RecordRequest records a single request's round-trip latency and error state.
func (c *Collector) RecordRequest(latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.requests.failures++
		c.requests.observe(latency)
		return
	}
	c.requests.record(latency)
}

// RecordSession records the terminal state of one session.
func (c *Collector) RecordSession(rec SessionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytesSent += rec.BytesSent
	c.bytesRecv += rec.BytesReceived
	if rec.OK {
		c.sessionsOK++
		return
	}
	c.sessionsFailed++
	c.errorsByKind[ErrorKind(rec.Err)]++
}

func (t *latencyTrack) record(latency time.Duration) {
	t.successes++
	t.observe(latency)
}

func (t *latencyTrack) observe(latency time.Duration) {
	if latency <= 0 {
		return
	}
	us := latency.Microseconds()
	if us < t.hist.LowestTrackableValue() {
		us = t.hist.LowestTrackableValue()
	}
	if us > t.hist.HighestTrackableValue() {
		us = t.hist.HighestTrackableValue()
	}
	_ = t.hist.RecordValue(us)
	t.sum += latency
	if t.min == 0 || latency < t.min {
		t.min = latency
	}
	if latency > t.max {
		t.max = latency
	}
}

func (t *latencyTrack) stats() LatencyStats {
	var s LatencyStats
	s.Min = t.min
	s.Max = t.max
	if n := t.hist.TotalCount(); n > 0 {
		s.Mean = time.Duration(int64(t.sum) / n)
		s.P50 = time.Duration(t.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P90 = time.Duration(t.hist.ValueAtQuantile(90)) * time.Microsecond
		s.P95 = time.Duration(t.hist.ValueAtQuantile(95)) * time.Microsecond
		s.P99 = time.Duration(t.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	s.MinMs = toMs(s.Min)
	s.MaxMs = toMs(s.Max)
	s.MeanMs = toMs(s.Mean)
	s.P50Ms = toMs(s.P50)
	s.P90Ms = toMs(s.P90)
	s.P95Ms = toMs(s.P95)
	s.P99Ms = toMs(s.P99)
	return s
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Sessions:         c.sessionsOK + c.sessionsFailed,
		SessionSuccesses: c.sessionsOK,
		SessionFailures:  c.sessionsFailed,
		Total:            c.requests.successes + c.requests.failures,
		Successes:        c.requests.successes,
		Failures:         c.requests.failures,
		ConnectFailures:  c.connectFails,
		BytesSent:        c.bytesSent,
		BytesReceived:    c.bytesRecv,
		Duration:         elapsed,
		DurationMs:       toMs(elapsed),
		Latency:          c.requests.stats(),
		Connect:          c.connects.stats(),
	}

	if elapsed > 0 {
		stats.RequestsPerSec = float64(stats.Total) / elapsed.Seconds()
		stats.SessionsPerSec = float64(stats.Sessions) / elapsed.Seconds()
	}

	if len(c.errorsByKind) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByKind))
		for k, v := range c.errorsByKind {
			stats.Errors[k] = int(v)
		}
	}

	return stats
}

type kinded interface {
	ErrorKind() string
}

// UnclassifiedKind groups failures whose error carries no kind. It matches
// the session package's InternalError label.
const UnclassifiedKind = "InternalError"

// ErrorKind returns the label a failed session is grouped under.
func ErrorKind(err error) string {
	var k kinded
	if errors.As(err, &k) {
		if kind := k.ErrorKind(); kind != "" {
			return kind
		}
	}
	return UnclassifiedKind
}
