// Package tracking follows a submitted design request until the remote worker
// reports a terminal outcome.
//
// A Session consumes the frames of one book stream on a single goroutine. Each
// payload is decoded, checked against the last accepted slug, and, when it
// introduces a new slug, becomes the session's current state, re-arms the
// watchdog and is published as a progress event. Keep-alive repeats of the
// current slug are dropped without resetting the watchdog, and so are
// malformed payloads, which are only logged.
//
// The session ends exactly once, whichever happens first:
//
//   - a terminal notification (ready, error) is published,
//   - the watchdog expires and the synthetic timeout notification is published,
//   - the remote side closes the stream,
//   - the caller invokes Close.
//
// Teardown is guarded by a single compare-and-swap flag, so a racing watchdog
// and stream can never both finish the session, and repeated Close calls are
// no-ops. Ending the session stops the watchdog and closes the stream.
package tracking
