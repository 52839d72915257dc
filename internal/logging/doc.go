// Package logging provides slog construction, typed attribute helpers,
// and context-derived structured fields shared across clipforge.
package logging
