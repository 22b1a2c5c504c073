package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/torosent/tcpcrank/internal/harness"
	"github.com/torosent/tcpcrank/internal/session"
)

// Console prints one line per response or failed session and a final
// completion line. Lines from concurrent sessions never interleave.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool
}

// NewConsole writes to w. In quiet mode response lines are dropped but
// errors and the completion line are still printed.
func NewConsole(w io.Writer, quiet bool) *Console {
	if w == nil {
		w = io.Discard
	}
	return &Console{w: w, quiet: quiet}
}

func (c *Console) Response(sessionID int, text string) {
	if c.quiet {
		return
	}
	c.printf("Client %d received: %s\n", sessionID, text)
}

func (c *Console) Outcome(out session.Outcome) {
	if out.OK() {
		return
	}
	c.printf("Client %d error: %v\n", out.SessionID, out.Err)
}

func (c *Console) Completed(harness.Result) {
	c.printf("Test completed.\n")
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}
