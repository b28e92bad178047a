// Package journal persists published progress transitions in SQLite.
//
// Every event delivered to the journal listener is appended with its request
// id, tracking session id and receive time, so `mbclient design history` can
// replay what a design worker reported after the process has exited. The
// journal is an observer: failures to write are logged and never reach the
// tracking session that published the event.
package journal
