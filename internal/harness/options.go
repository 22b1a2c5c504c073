package harness

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/tcpcrank/internal/session"
)

// ArrivalModel selects how session starts are spaced.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Reporter receives progress from a run. Implementations must be safe for
// concurrent use.
type Reporter interface {
	session.ResponseReporter
	// Outcome is called once per session after it terminates.
	Outcome(out session.Outcome)
	// Completed is called exactly once, after every session has terminated.
	Completed(res Result)
}

// FailureLogger logs failed sessions.
type FailureLogger interface {
	LogFailure(err error)
}

// Options configure the Controller.
type Options struct {
	Connections    int           // sessions to run
	Address        string        // host:port every session dials
	Requests       int           // requests per session
	Delay          time.Duration // pause between requests within a session
	MaxInFlight    int           // sessions running at once (0 = bounded by fd limit only)
	SpawnRate      int           // session starts per second (0 means unlimited)
	ArrivalModel   ArrivalModel
	RandomSeed     int64
	PoissonSampler func() float64              // optional injection for tests
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	FDLimit        func() (uint64, error)      // optional injection for tests
	RunID          string                      // generated when empty
	Session        session.Options
	Reporter       Reporter
	FailureLogger  FailureLogger
}

func (o *Options) normalize() {
	if o.SpawnRate < 0 {
		o.SpawnRate = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of one spaces session starts evenly.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
	if o.FDLimit == nil {
		o.FDLimit = openFileLimit
	}
	if o.Session.Reporter == nil && o.Reporter != nil {
		o.Session.Reporter = o.Reporter
	}
}
