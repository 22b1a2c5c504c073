package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
	"unicode/utf8"

	"github.com/torosent/tcpcrank/internal/clientmetrics"
	"github.com/torosent/tcpcrank/internal/frame"
	"github.com/torosent/tcpcrank/internal/metrics"
	"github.com/torosent/tcpcrank/internal/payload"
	"github.com/torosent/tcpcrank/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultReadBuffer bounds a single response read.
const DefaultReadBuffer = 1024

// Session identifies one simulated client.
type Session struct {
	ID       int
	Address  string
	Requests int
	Delay    time.Duration // wait between consecutive requests
}

// ResponseReporter receives each decoded response as it arrives.
// Implementations must be safe for concurrent use.
type ResponseReporter interface {
	Response(sessionID int, text string)
}

// Checker validates a raw response body.
type Checker interface {
	Check(body []byte) error
}

// DialFunc opens the session's connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options are shared by every session of a run.
type Options struct {
	Template       payload.Template // zero value renders payload.DefaultTemplate
	ReadBuffer     int
	ConnectTimeout time.Duration // 0 disables
	ReadTimeout    time.Duration // 0 disables
	WriteTimeout   time.Duration // 0 disables
	Dial           DialFunc      // optional; defaults to net.Dialer
	Reporter       ResponseReporter
	Collector      *metrics.Collector
	Expect         Checker
	Tracer         trace.Tracer
	RunID          string
}

func (o *Options) normalize() {
	if o.ReadBuffer <= 0 {
		o.ReadBuffer = DefaultReadBuffer
	}
	if o.Dial == nil {
		d := &net.Dialer{Timeout: o.ConnectTimeout}
		o.Dial = d.DialContext
	}
}

// Status is the terminal state of a session.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Outcome is the result of one session.
type Outcome struct {
	SessionID int
	Address   string
	Status    Status
	Kind      Kind
	// Detail is the last response on success or the error text on failure.
	Detail        string
	Err           error
	Responses     []string
	RequestsSent  int
	BytesSent     int64
	BytesReceived int64
	Latency       time.Duration
}

// OK reports whether every request completed.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

func (o *Outcome) fail(err *Error) {
	o.Status = StatusError
	o.Kind = err.Kind
	o.Err = err
	o.Detail = err.Error()
}

// Run performs the whole conversation for s and always returns an Outcome.
func Run(ctx context.Context, s Session, opts Options) (out Outcome) {
	opts.normalize()
	out = Outcome{SessionID: s.ID, Address: s.Address, Status: StatusSuccess}
	start := time.Now()

	ctx, span := tracing.StartSessionSpan(ctx, opts.Tracer, s.ID, s.Address, opts.RunID)

	var conn *clientmetrics.Conn
	defer func() {
		if r := recover(); r != nil {
			out.fail(&Error{Kind: KindInternal, Request: out.RequestsSent, Err: fmt.Errorf("panic: %v", r)})
		}
		if conn != nil {
			snap := conn.Snapshot()
			out.BytesSent = snap.BytesSent
			out.BytesReceived = snap.BytesReceived
			_ = conn.Close()
		}
		out.Latency = time.Since(start)
		if opts.Collector != nil {
			opts.Collector.RecordSession(metrics.SessionRecord{
				OK:            out.OK(),
				Err:           out.Err,
				BytesSent:     out.BytesSent,
				BytesReceived: out.BytesReceived,
			})
		}
		attrs := []attribute.KeyValue{
			tracing.AttrBytesSent.Int64(out.BytesSent),
			tracing.AttrBytesRecv.Int64(out.BytesReceived),
		}
		if !out.OK() {
			attrs = append(attrs, tracing.AttrErrorKind.String(string(out.Kind)))
		}
		tracing.EndSpan(span, out.Err, attrs...)
	}()

	dialStart := time.Now()
	raw, err := opts.Dial(ctx, "tcp", s.Address)
	if opts.Collector != nil {
		opts.Collector.RecordConnect(time.Since(dialStart), err)
	}
	if err != nil {
		out.fail(&Error{Kind: KindConnection, Request: -1, Err: err})
		return out
	}
	conn = clientmetrics.Wrap(raw)

	// Unblock any pending read or write once ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	ex := &exchange{session: s, opts: opts, conn: conn, buf: make([]byte, opts.ReadBuffer)}
	for i := 0; i < s.Requests; i++ {
		text, err := ex.request(ctx, i, &out.RequestsSent)
		if err != nil {
			out.fail(err)
			return out
		}
		out.Responses = append(out.Responses, text)
		out.Detail = text
		if opts.Reporter != nil {
			opts.Reporter.Response(s.ID, text)
		}

		if s.Delay > 0 && i+1 < s.Requests {
			// Cancelled while idle: the connection is dropped before request i+1.
			if err := sleep(ctx, s.Delay); err != nil {
				out.fail(&Error{Kind: KindConnection, Request: i + 1, Err: err})
				return out
			}
		}
	}
	return out
}

type exchange struct {
	session Session
	opts    Options
	conn    net.Conn
	buf     []byte
}

// request writes frame i and reads its reply.
func (x *exchange) request(ctx context.Context, i int, sent *int) (text string, failure *Error) {
	_, span := tracing.StartRequestSpan(ctx, x.opts.Tracer, i)
	start := time.Now()
	defer func() {
		var err error
		if failure != nil {
			err = failure
		}
		if x.opts.Collector != nil {
			x.opts.Collector.RecordRequest(time.Since(start), err)
		}
		tracing.EndSpan(span, err)
	}()

	msg := x.opts.Template.Render(x.session.ID, i)
	if err := armDeadline(ctx, x.conn.SetWriteDeadline, x.opts.WriteTimeout); err != nil {
		return "", &Error{Kind: KindSend, Request: i, Err: err}
	}
	if _, err := frame.Write(x.conn, msg); err != nil {
		return "", &Error{Kind: KindSend, Request: i, Err: err}
	}
	*sent++

	if err := armDeadline(ctx, x.conn.SetReadDeadline, x.opts.ReadTimeout); err != nil {
		return "", &Error{Kind: KindReceive, Request: i, Err: err}
	}
	n, err := x.conn.Read(x.buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrPeerClosed
		}
		return "", &Error{Kind: KindReceive, Request: i, Err: err}
	}

	body := x.buf[:n]
	if !utf8.Valid(body) {
		return "", &Error{Kind: KindDecode, Request: i, Err: ErrInvalidUTF8}
	}
	if x.opts.Expect != nil {
		if err := x.opts.Expect.Check(body); err != nil {
			return "", &Error{Kind: KindExpectation, Request: i, Err: err}
		}
	}
	return string(body), nil
}

// armDeadline applies timeout to the next I/O call. The context is checked
// after the deadline is set so a concurrent cancellation is never overwritten.
func armDeadline(ctx context.Context, set func(time.Time) error, timeout time.Duration) error {
	if timeout > 0 {
		if err := set(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
