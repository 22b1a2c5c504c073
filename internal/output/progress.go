package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/tcpcrank/internal/harness"
	"github.com/torosent/tcpcrank/internal/metrics"
)

// SessionTracker exposes live session counts of a run.
type SessionTracker interface {
	Progress() harness.Progress
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	sessions  SessionTracker
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval.
func NewProgressReporter(collector *metrics.Collector, sessions SessionTracker, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		sessions:  sessions,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	stats := p.collector.Stats(time.Since(p.start))
	prog := p.sessions.Progress()
	line := fmt.Sprintf("\rSessions: %d/%d | Active: %d", prog.Completed, prog.Expected, prog.Active)
	if prog.Limit > 0 {
		line += fmt.Sprintf("/%d", prog.Limit)
	}
	line += fmt.Sprintf(" | Failed: %d | Requests: %d | RPS: %.1f",
		stats.SessionFailures, stats.Total, stats.RequestsPerSec)
	if stats.Latency.P99 > 0 {
		line += fmt.Sprintf(" | P99 %.1fms", stats.Latency.P99Ms)
	}
	return line
}
