package session_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/tcpcrank/internal/expect"
	"github.com/torosent/tcpcrank/internal/metrics"
	"github.com/torosent/tcpcrank/internal/payload"
	"github.com/torosent/tcpcrank/internal/session"
	"github.com/torosent/tcpcrank/internal/testserver"
)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Response(id int, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type panicReporter struct{}

func (panicReporter) Response(int, string) { panic("reporter exploded") }

func testOptions() session.Options {
	return session.Options{
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
		WriteTimeout:   2 * time.Second,
	}
}

func closedPortAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestRunSingleRequestAck(t *testing.T) {
	srv := testserver.New(testserver.Ack())
	defer srv.Close()

	rec := &recorder{}
	opts := testOptions()
	opts.Reporter = rec

	out := session.Run(context.Background(), session.Session{ID: 2, Address: srv.Addr(), Requests: 1}, opts)

	if !out.OK() {
		t.Fatalf("Run() failed: %v", out.Err)
	}
	if out.Detail != "ack" {
		t.Errorf("Detail = %q, want ack", out.Detail)
	}
	if out.RequestsSent != 1 {
		t.Errorf("RequestsSent = %d, want 1", out.RequestsSent)
	}
	if got := rec.Lines(); len(got) != 1 || got[0] != "ack" {
		t.Errorf("reported = %v, want [ack]", got)
	}
	// 4 byte prefix + "Client 2 message 0"
	if out.BytesSent != 22 {
		t.Errorf("BytesSent = %d, want 22", out.BytesSent)
	}
	if out.BytesReceived != 3 {
		t.Errorf("BytesReceived = %d, want 3", out.BytesReceived)
	}

	srv.Close()
	if got := srv.Received(); len(got) != 1 || got[0] != "Client 2 message 0" {
		t.Errorf("server received %v, want [Client 2 message 0]", got)
	}
}

func TestRunMultipleRequestsWithDelay(t *testing.T) {
	srv := testserver.New(testserver.Echo())
	defer srv.Close()

	opts := testOptions()
	start := time.Now()
	out := session.Run(context.Background(), session.Session{
		ID:       7,
		Address:  srv.Addr(),
		Requests: 3,
		Delay:    20 * time.Millisecond,
	}, opts)
	elapsed := time.Since(start)

	if !out.OK() {
		t.Fatalf("Run() failed: %v", out.Err)
	}
	want := []string{"Client 7 message 0", "Client 7 message 1", "Client 7 message 2"}
	if strings.Join(out.Responses, "|") != strings.Join(want, "|") {
		t.Errorf("Responses = %v, want %v", out.Responses, want)
	}
	if out.Detail != want[2] {
		t.Errorf("Detail = %q, want last response", out.Detail)
	}
	// Delay applies between requests only.
	if elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 40ms", elapsed)
	}
}

func TestRunCustomTemplate(t *testing.T) {
	srv := testserver.New(testserver.Echo())
	defer srv.Close()

	opts := testOptions()
	opts.Template = payload.New("{{tenant}}:{{id}}:{{i}}", map[string]string{"tenant": "blue"})
	out := session.Run(context.Background(), session.Session{ID: 4, Address: srv.Addr(), Requests: 1}, opts)

	if !out.OK() {
		t.Fatalf("Run() failed: %v", out.Err)
	}
	if out.Detail != "blue:4:0" {
		t.Errorf("Detail = %q, want blue:4:0", out.Detail)
	}
}

func TestRunConnectionRefused(t *testing.T) {
	addr := closedPortAddr(t)

	out := session.Run(context.Background(), session.Session{ID: 1, Address: addr, Requests: 1}, testOptions())

	if out.OK() {
		t.Fatal("Run() succeeded against a closed port")
	}
	if out.Kind != session.KindConnection {
		t.Errorf("Kind = %q, want %q", out.Kind, session.KindConnection)
	}
	if out.RequestsSent != 0 {
		t.Errorf("RequestsSent = %d, want 0", out.RequestsSent)
	}
	var se *session.Error
	if !errors.As(out.Err, &se) || se.Request != -1 {
		t.Errorf("Err = %v, want *session.Error for connect step", out.Err)
	}
}

func TestRunPeerClosedIsReceiveError(t *testing.T) {
	srv := testserver.New(testserver.CloseAfter(0))
	defer srv.Close()

	out := session.Run(context.Background(), session.Session{ID: 3, Address: srv.Addr(), Requests: 1}, testOptions())

	if out.Kind != session.KindReceive {
		t.Fatalf("Kind = %q, want %q (err %v)", out.Kind, session.KindReceive, out.Err)
	}
	if !errors.Is(out.Err, session.ErrPeerClosed) {
		t.Errorf("Err = %v, want ErrPeerClosed", out.Err)
	}
	if out.RequestsSent != 1 {
		t.Errorf("RequestsSent = %d, want 1", out.RequestsSent)
	}
}

func TestRunCloseImmediately(t *testing.T) {
	srv := testserver.New(testserver.CloseImmediately())
	defer srv.Close()

	out := session.Run(context.Background(), session.Session{ID: 0, Address: srv.Addr(), Requests: 1}, testOptions())

	if out.OK() {
		t.Fatal("Run() succeeded against a server that hangs up")
	}
	if out.Kind != session.KindReceive {
		t.Errorf("Kind = %q, want %q (err %v)", out.Kind, session.KindReceive, out.Err)
	}
}

func TestRunFailsMidSession(t *testing.T) {
	srv := testserver.New(testserver.CloseAfter(2))
	defer srv.Close()

	rec := &recorder{}
	opts := testOptions()
	opts.Reporter = rec
	out := session.Run(context.Background(), session.Session{ID: 5, Address: srv.Addr(), Requests: 4}, opts)

	if out.Kind != session.KindReceive {
		t.Fatalf("Kind = %q, want %q", out.Kind, session.KindReceive)
	}
	var se *session.Error
	if !errors.As(out.Err, &se) || se.Request != 2 {
		t.Errorf("Err = %v, want failure on request 2", out.Err)
	}
	if len(rec.Lines()) != 2 {
		t.Errorf("reported %d responses, want 2", len(rec.Lines()))
	}
}

func TestRunInvalidUTF8IsDecodeError(t *testing.T) {
	srv := testserver.New(testserver.Respond([]byte{0xff, 0xfe, 0xfd}))
	defer srv.Close()

	out := session.Run(context.Background(), session.Session{ID: 0, Address: srv.Addr(), Requests: 1}, testOptions())

	if out.Kind != session.KindDecode {
		t.Fatalf("Kind = %q, want %q", out.Kind, session.KindDecode)
	}
	if !errors.Is(out.Err, session.ErrInvalidUTF8) {
		t.Errorf("Err = %v, want ErrInvalidUTF8", out.Err)
	}
}

func TestRunReadTimeout(t *testing.T) {
	srv := testserver.New(testserver.Silent())
	defer srv.Close()

	opts := testOptions()
	opts.ReadTimeout = 50 * time.Millisecond
	out := session.Run(context.Background(), session.Session{ID: 0, Address: srv.Addr(), Requests: 1}, opts)

	if out.Kind != session.KindReceive {
		t.Fatalf("Kind = %q, want %q", out.Kind, session.KindReceive)
	}
	var netErr net.Error
	if !errors.As(out.Err, &netErr) || !netErr.Timeout() {
		t.Errorf("Err = %v, want timeout", out.Err)
	}
}

func TestRunCancelUnblocksRead(t *testing.T) {
	srv := testserver.New(testserver.Silent())
	defer srv.Close()

	opts := testOptions()
	opts.ReadTimeout = 0
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan session.Outcome, 1)
	go func() {
		done <- session.Run(ctx, session.Session{ID: 0, Address: srv.Addr(), Requests: 1}, opts)
	}()

	select {
	case out := <-done:
		if out.OK() {
			t.Fatal("Run() succeeded after cancellation")
		}
		if out.Kind != session.KindReceive {
			t.Errorf("Kind = %q, want %q", out.Kind, session.KindReceive)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestRunCancelDuringDelayDropsConnection(t *testing.T) {
	srv := testserver.New(testserver.Ack())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	out := session.Run(ctx, session.Session{
		ID:       1,
		Address:  srv.Addr(),
		Requests: 3,
		Delay:    10 * time.Second,
	}, testOptions())

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Run() waited out the delay (%v)", elapsed)
	}
	if out.Kind != session.KindConnection {
		t.Errorf("Kind = %q, want %q", out.Kind, session.KindConnection)
	}
	if out.RequestsSent != 1 || len(out.Responses) != 1 {
		t.Errorf("RequestsSent = %d, Responses = %v; want one exchange before the delay", out.RequestsSent, out.Responses)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", out.Err)
	}
	var serr *session.Error
	if !errors.As(out.Err, &serr) || serr.Request != 1 {
		t.Errorf("Err = %#v, want request index 1", out.Err)
	}
}

func TestRunCancelledBeforeDial(t *testing.T) {
	srv := testserver.New(testserver.Ack())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := session.Run(ctx, session.Session{ID: 0, Address: srv.Addr(), Requests: 1}, testOptions())

	if out.Kind != session.KindConnection {
		t.Errorf("Kind = %q, want %q", out.Kind, session.KindConnection)
	}
}

func TestRunExpectationMismatch(t *testing.T) {
	srv := testserver.New(testserver.Ack())
	defer srv.Close()

	m, err := expect.Compile(expect.Rule{Regex: "^ok$"})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	opts := testOptions()
	opts.Expect = m
	out := session.Run(context.Background(), session.Session{ID: 0, Address: srv.Addr(), Requests: 1}, opts)

	if out.Kind != session.KindExpectation {
		t.Fatalf("Kind = %q, want %q", out.Kind, session.KindExpectation)
	}
	if !errors.Is(out.Err, expect.ErrMismatch) {
		t.Errorf("Err = %v, want ErrMismatch", out.Err)
	}
}

func TestRunReadBufferBoundsResponse(t *testing.T) {
	srv := testserver.New(testserver.Respond([]byte(strings.Repeat("x", 4096))))
	defer srv.Close()

	opts := testOptions()
	opts.ReadBuffer = 16
	out := session.Run(context.Background(), session.Session{ID: 0, Address: srv.Addr(), Requests: 1}, opts)

	if !out.OK() {
		t.Fatalf("Run() failed: %v", out.Err)
	}
	if n := len(out.Detail); n == 0 || n > 16 {
		t.Errorf("len(Detail) = %d, want 1..16", n)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	srv := testserver.New(testserver.Ack())
	defer srv.Close()

	opts := testOptions()
	opts.Reporter = panicReporter{}
	out := session.Run(context.Background(), session.Session{ID: 9, Address: srv.Addr(), Requests: 1}, opts)

	if out.Kind != session.KindInternal {
		t.Fatalf("Kind = %q, want %q", out.Kind, session.KindInternal)
	}
	if !strings.Contains(out.Detail, "reporter exploded") {
		t.Errorf("Detail = %q, want panic message", out.Detail)
	}
}

func TestRunCustomDialer(t *testing.T) {
	dialErr := errors.New("no route")
	opts := testOptions()
	opts.Dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, dialErr
	}
	out := session.Run(context.Background(), session.Session{ID: 0, Address: "ignored:1", Requests: 1}, opts)

	if !errors.Is(out.Err, dialErr) {
		t.Errorf("Err = %v, want %v", out.Err, dialErr)
	}
}

func TestRunFeedsCollector(t *testing.T) {
	srv := testserver.New(testserver.Ack())
	defer srv.Close()

	collector := metrics.NewCollector()
	opts := testOptions()
	opts.Collector = collector

	session.Run(context.Background(), session.Session{ID: 0, Address: srv.Addr(), Requests: 2}, opts)
	session.Run(context.Background(), session.Session{ID: 1, Address: closedPortAddr(t), Requests: 2}, opts)

	stats := collector.Stats(time.Second)
	if stats.Sessions != 2 || stats.SessionSuccesses != 1 || stats.SessionFailures != 1 {
		t.Errorf("sessions = %d/%d/%d, want 2/1/1", stats.Sessions, stats.SessionSuccesses, stats.SessionFailures)
	}
	if stats.Total != 2 || stats.Successes != 2 {
		t.Errorf("requests = %d/%d, want 2/2", stats.Total, stats.Successes)
	}
	if stats.ConnectFailures != 1 {
		t.Errorf("ConnectFailures = %d, want 1", stats.ConnectFailures)
	}
	if stats.Errors[string(session.KindConnection)] != 1 {
		t.Errorf("Errors = %v, want one %s", stats.Errors, session.KindConnection)
	}
}
