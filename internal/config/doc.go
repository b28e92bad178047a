// Package config loads, normalizes, and validates mbclient configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MB_API_KEY. The Config type centralizes the engine endpoints, the design
// watchdog duration, default design properties, and the state directory that
// holds the transition journal and session locks.
//
// Always obtain settings through this package so downstream code receives
// sanitized hosts, expanded paths, and clear validation errors.
package config
