// Command mbclient submits photo-book design requests to the book engine and
// follows their progress until the design worker reports a terminal state.
//
// Commands:
//   - design submit: create or update a book's design request and watch it
//   - design options: list the densities the engine offers for a book shape
//   - design artifact: download the galleon of a completed design
//   - design history: replay journaled progress transitions
//   - config init/show: manage the TOML configuration
//   - status: run preflight checks against the state directory and API
package main
