// Package logging assembles structured slog loggers and formatting helpers used
// across mbclient.
//
// It owns the configurable console/JSON handlers, an optional JSON mirror file,
// and context-aware helpers so tracking and orchestration code can tag log
// lines with request and session identifiers. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same shape.
package logging
