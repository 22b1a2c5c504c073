// Package session runs one client conversation against the target.
//
// A session dials a single TCP connection, then for each request index
// renders a payload, writes it as a length-prefixed frame and performs one
// bounded read for the reply. Replies are not framed: whatever a single read
// returns, up to the configured buffer size, is the response.
//
// # Failure isolation
//
// [Run] never returns an error and never panics. Every failure, including a
// recovered panic, becomes an [Outcome] with StatusError and a [Kind]:
//
//	out := session.Run(ctx, session.Session{ID: 2, Address: "127.0.0.1:1234", Requests: 1}, opts)
//	if !out.OK() {
//		fmt.Printf("Client %d error: %v\n", out.SessionID, out.Err)
//	}
//
// The connection is closed on every exit path. Cancelling ctx aborts any
// blocked dial, write or read so the session still reaches a terminal state.
package session
