package output

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/torosent/tcpcrank/internal/harness"
	"github.com/torosent/tcpcrank/internal/session"
)

func TestConsoleLines(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	c.Response(2, "ack")
	c.Outcome(session.Outcome{SessionID: 2, Status: session.StatusSuccess})
	c.Outcome(session.Outcome{
		SessionID: 4,
		Status:    session.StatusError,
		Err:       &session.Error{Kind: session.KindReceive, Request: 0, Err: session.ErrPeerClosed},
	})
	c.Completed(harness.Result{})

	want := "Client 2 received: ack\n" +
		"Client 4 error: ReceiveError (request 0): peer closed connection\n" +
		"Test completed.\n"
	if got := buf.String(); got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
}

func TestConsoleQuietKeepsErrorsAndCompletion(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	c.Response(1, "ack")
	c.Outcome(session.Outcome{SessionID: 1, Status: session.StatusError, Err: errors.New("boom")})
	c.Completed(harness.Result{})

	got := buf.String()
	if strings.Contains(got, "received") {
		t.Errorf("quiet console printed a response: %q", got)
	}
	if !strings.Contains(got, "Client 1 error: boom") || !strings.HasSuffix(got, "Test completed.\n") {
		t.Errorf("output = %q", got)
	}
}

func TestConsoleLinesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.Response(id, strings.Repeat("x", 100))
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "Client ") || !strings.HasSuffix(line, strings.Repeat("x", 100)) {
			t.Errorf("garbled line %q", line)
		}
	}
}
