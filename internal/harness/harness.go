package harness

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/tcpcrank/internal/barrier"
	"github.com/torosent/tcpcrank/internal/pool"
	"github.com/torosent/tcpcrank/internal/session"
)

// fdReserve is kept free for stdio, the results file and exporter sockets.
const fdReserve = 64

// SpawnError reports that the run could not be started. It is the only
// fatal error of a run.
type SpawnError struct {
	Reason string
	Err    error
}

func (e *SpawnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spawn: %s: %v", e.Reason, e.Err)
	}
	return "spawn: " + e.Reason
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Result captures the run summary.
type Result struct {
	RunID        string
	Sessions     int
	Succeeded    int
	Failed       int
	ByKind       map[session.Kind]int
	InFlight     int // effective in-flight limit, 0 when unbounded
	PeakInFlight int
	Duration     time.Duration
}

// Kinds returns the failure kinds seen, sorted by count then name.
func (r Result) Kinds() []session.Kind {
	kinds := make([]session.Kind, 0, len(r.ByKind))
	for k := range r.ByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if r.ByKind[kinds[i]] != r.ByKind[kinds[j]] {
			return r.ByKind[kinds[i]] > r.ByKind[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	return kinds
}

// Progress is a live view of a running execution.
type Progress struct {
	Expected  int
	Completed int
	Active    int
	Limit     int // 0 when unbounded
}

// Controller runs one harness execution.
type Controller struct {
	opt   Options
	pacer spawnPacer

	mu    sync.Mutex
	res   Result
	done  *barrier.Barrier
	group *pool.Group
}

func New(opt Options) *Controller {
	opt.normalize()
	if opt.RunID == "" {
		opt.RunID = NewRunID()
	}
	opt.Session.RunID = opt.RunID
	return &Controller{opt: opt, pacer: newSpawnPacer(opt)}
}

// NewRunID returns a fresh, time-ordered run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// RunID identifies this execution in reports and traces.
func (c *Controller) RunID() string {
	return c.opt.RunID
}

// Progress reports how many sessions have finished and how many are running.
// It is safe to call while Execute runs.
func (c *Controller) Progress() Progress {
	c.mu.Lock()
	done, group := c.done, c.group
	c.mu.Unlock()

	p := Progress{Expected: c.opt.Connections}
	if done != nil {
		p.Expected = done.Expected()
		p.Completed = done.Completed()
	}
	if group != nil {
		p.Active = group.Active()
		p.Limit = group.Limit()
	}
	return p
}

// Execute starts every session and blocks until all of them have reached a
// terminal state. Cancelling ctx does not skip sessions: those not yet
// started fail fast at dial time so the completion barrier is still met.
func (c *Controller) Execute(ctx context.Context) (Result, error) {
	if err := c.validate(); err != nil {
		return Result{}, err
	}
	limit, err := c.inFlightLimit()
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	done := barrier.New(c.opt.Connections)
	group := pool.New(limit)
	c.mu.Lock()
	c.res = Result{RunID: c.opt.RunID, ByKind: map[session.Kind]int{}, InFlight: limit}
	c.done, c.group = done, group
	c.mu.Unlock()
	// Slot waits must not be cut short by cancellation; every id has to run.
	spawnCtx := context.WithoutCancel(ctx)

	for id := 0; id < c.opt.Connections; id++ {
		if ctx.Err() == nil {
			_ = c.pacer.Wait(ctx)
		}
		s := session.Session{
			ID:       id,
			Address:  c.opt.Address,
			Requests: c.opt.Requests,
			Delay:    c.opt.Delay,
		}
		err := group.Go(spawnCtx, func() {
			defer func() { _ = done.Done() }()
			c.finish(session.Run(ctx, s, c.opt.Session))
		}, func(err error) {
			c.logFailure(fmt.Errorf("client %d: %w", s.ID, err))
		})
		if err != nil {
			// Go only fails once the group is closed; still count the id.
			c.finish(session.Outcome{
				SessionID: id,
				Address:   c.opt.Address,
				Status:    session.StatusError,
				Kind:      session.KindInternal,
				Err:       &session.Error{Kind: session.KindInternal, Request: -1, Err: err},
				Detail:    err.Error(),
			})
			_ = done.Done()
		}
	}

	<-done.Wait()
	group.Wait()

	c.mu.Lock()
	res := c.res
	c.mu.Unlock()
	res.PeakInFlight = group.Peak()
	res.Duration = time.Since(start)

	if c.opt.Reporter != nil {
		c.opt.Reporter.Completed(res)
	}
	return res, nil
}

func (c *Controller) finish(out session.Outcome) {
	c.mu.Lock()
	c.res.Sessions++
	if out.OK() {
		c.res.Succeeded++
	} else {
		c.res.Failed++
		c.res.ByKind[out.Kind]++
	}
	c.mu.Unlock()

	if !out.OK() && out.Err != nil {
		c.logFailure(fmt.Errorf("client %d: %w", out.SessionID, out.Err))
	}
	if c.opt.Reporter != nil {
		c.opt.Reporter.Outcome(out)
	}
}

func (c *Controller) logFailure(err error) {
	if c.opt.FailureLogger != nil {
		c.opt.FailureLogger.LogFailure(err)
	}
}

func (c *Controller) validate() error {
	switch {
	case c.opt.Connections < 0:
		return &SpawnError{Reason: fmt.Sprintf("connection count must be >= 0, got %d", c.opt.Connections)}
	case c.opt.Requests < 1:
		return &SpawnError{Reason: fmt.Sprintf("requests per connection must be >= 1, got %d", c.opt.Requests)}
	case c.opt.Delay < 0:
		return &SpawnError{Reason: "delay must be >= 0"}
	case c.opt.MaxInFlight < 0:
		return &SpawnError{Reason: "max in-flight must be >= 0"}
	case c.opt.Address == "" && c.opt.Connections > 0:
		return &SpawnError{Reason: "target address is required"}
	}
	switch c.opt.ArrivalModel {
	case ArrivalModelUniform, ArrivalModelPoisson:
	default:
		return &SpawnError{Reason: fmt.Sprintf("unknown arrival model %q", c.opt.ArrivalModel)}
	}
	return nil
}

// inFlightLimit resolves how many sessions may hold a socket at once.
// Zero means unbounded.
func (c *Controller) inFlightLimit() (int, error) {
	if c.opt.Connections == 0 {
		return 0, nil
	}
	lim, err := c.opt.FDLimit()
	if err != nil {
		return 0, &SpawnError{Reason: "reading open file limit", Err: err}
	}

	available := -1
	if lim > 0 && lim < math.MaxInt32 {
		if lim <= fdReserve {
			return 0, &SpawnError{Reason: fmt.Sprintf("open file limit %d leaves no room for sessions", lim), Err: ErrFileLimit}
		}
		available = int(lim - fdReserve)
	}

	if c.opt.MaxInFlight > 0 {
		if available >= 0 && c.opt.MaxInFlight > available {
			return 0, &SpawnError{
				Reason: fmt.Sprintf("max in-flight %d exceeds open file limit %d (%d reserved)", c.opt.MaxInFlight, lim, fdReserve),
				Err:    ErrFileLimit,
			}
		}
		return min(c.opt.MaxInFlight, c.opt.Connections), nil
	}
	if available < 0 {
		return 0, nil
	}
	return min(available, c.opt.Connections), nil
}

// ErrFileLimit is wrapped by a SpawnError raised for the file descriptor limit.
var ErrFileLimit = errors.New("open file limit too low")
