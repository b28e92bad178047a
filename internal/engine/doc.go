// Package engine talks to the remote book engine.
//
// Client wraps the REST endpoints used by design requests (books, images,
// design options and the final galleon artifact) and dials the websocket that
// carries design progress notifications. Every failing call wraps ErrRemote;
// HTTP status failures additionally carry an *APIError. Idempotent GETs and
// the websocket dial are retried with exponential backoff.
package engine
