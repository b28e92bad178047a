// Package preflight provides readiness checks for the engine API and the
// local state directory that mbclient depends on.
//
// The CLI "mbclient status" command runs RunAll and renders the results. Each
// check returns a Result rather than an error so one failure does not hide
// the others.
package preflight
