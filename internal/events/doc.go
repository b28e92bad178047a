// Package events is the process-wide observer registry that republishes design
// progress to interested listeners.
//
// Listeners register for a notification type and receive every event of that
// type published after registration, synchronously and in registration order.
// Nothing is buffered: a listener that joins late only sees future events.
//
// Most callers use the default registry managed by Init and Shutdown, which
// bracket the lifetime of the running process. Tests and embedded uses can
// build an isolated Registry with NewRegistry.
package events
