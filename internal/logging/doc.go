// Package logging builds the slog loggers used across gridlock.
//
// Loggers carry standardized field names so episode and scene identifiers,
// pipeline phase, and correlation IDs stay greppable across components. Use
// WithContext to derive a logger enriched with whatever identifiers the
// current context carries, and NewNop in tests that do not assert on log
// output.
package logging
