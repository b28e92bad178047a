// Package status decodes the progress notifications the design worker pushes
// over the book's stream.
//
// A notification is a JSON object with four required keys: state (the coarse
// phase), slug (the fine-grained step identifier), progress (0-100) and
// message (human-readable text). Decode rejects anything else with
// ErrMalformed so callers can drop the payload without touching session
// state.
//
// The package also owns the slug and state vocabulary shared by the tracker,
// the journal and the CLI, including the synthetic timeout notification the
// watchdog emits when the worker goes quiet.
package status
