// Package clientmetrics counts traffic on a single client connection.
package clientmetrics

import (
	"net"
	"sync/atomic"
	"time"
)

// Conn wraps a net.Conn and counts the bytes and calls that pass through it.
// Counters are atomic so a snapshot may be taken from another goroutine.
type Conn struct {
	net.Conn
	connectedAt time.Time
	writes      atomic.Int64
	reads       atomic.Int64
	bytesSent   atomic.Int64
	bytesRecv   atomic.Int64
	errors      atomic.Int64
}

// Wrap starts counting on conn.
func Wrap(conn net.Conn) *Conn {
	return &Conn{Conn: conn, connectedAt: time.Now()}
}

func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.reads.Add(1)
		c.bytesRecv.Add(int64(n))
	}
	if err != nil {
		c.errors.Add(1)
	}
	return n, err
}

func (c *Conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.writes.Add(1)
		c.bytesSent.Add(int64(n))
	}
	if err != nil {
		c.errors.Add(1)
	}
	return n, err
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ConnectionDuration time.Duration
	Writes             int64
	Reads              int64
	BytesSent          int64
	BytesReceived      int64
	Errors             int64
}

// Snapshot returns the current counters.
func (c *Conn) Snapshot() Snapshot {
	return Snapshot{
		ConnectionDuration: time.Since(c.connectedAt),
		Writes:             c.writes.Load(),
		Reads:              c.reads.Load(),
		BytesSent:          c.bytesSent.Load(),
		BytesReceived:      c.bytesRecv.Load(),
		Errors:             c.errors.Load(),
	}
}
