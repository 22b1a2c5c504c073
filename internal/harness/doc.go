// Package harness fans a run out into concurrent client sessions and waits
// for every one of them to finish.
//
// The [Controller] starts one session per id in [0, Connections), paced by an
// optional spawn rate and capped by an in-flight limit, then waits on a
// completion barrier that is satisfied only when every session has reported a
// terminal outcome. A failing session never stops the others.
//
// # Basic Usage
//
//	ctrl := harness.New(harness.Options{
//		Connections: 100,
//		Address:     "127.0.0.1:1234",
//		Requests:    1,
//		Reporter:    console,
//	})
//	res, err := ctrl.Execute(ctx)
//
// The only error Execute returns is a [*SpawnError], raised before any session
// starts when the options are invalid or the in-flight limit cannot be
// honoured with the process file descriptor limit.
//
// # Arrival Models
//
// Session starts are paced with the same models as request pacing elsewhere:
//   - [ArrivalModelUniform]: fixed spacing via a token bucket
//   - [ArrivalModelPoisson]: exponential gaps around the configured rate
package harness
