package harness

import (
	"context"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// spawnPacer gates the start of each session. Only the spawn loop calls it.
type spawnPacer interface {
	Wait(ctx context.Context) error
}

func newSpawnPacer(opt Options) spawnPacer {
	if opt.ArrivalModel != ArrivalModelPoisson {
		return limiterPacer{limiter: opt.LimiterFactory(opt.SpawnRate)}
	}
	sample := opt.PoissonSampler
	if sample == nil {
		sample = rand.New(rand.NewSource(opt.RandomSeed)).ExpFloat64
	}
	return poissonPacer{rate: float64(opt.SpawnRate), sample: sample}
}

// limiterPacer spaces session starts evenly with a rate.Limiter.
type limiterPacer struct {
	limiter *rate.Limiter
}

func (l limiterPacer) Wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// poissonPacer draws exponential gaps between session starts so that starts
// form a Poisson process at rate sessions per second.
type poissonPacer struct {
	rate   float64
	sample func() float64
}

func (p poissonPacer) gap() time.Duration {
	if p.rate <= 0 {
		return 0
	}
	d := float64(time.Second) * p.sample() / p.rate
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p poissonPacer) Wait(ctx context.Context) error {
	d := p.gap()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
