// Package textutil provides filename sanitization for identifiers that end up
// as path segments, such as book ids used to name session lock files.
package textutil
