// Package logging assembles the structured slog loggers used across
// slipstream.
//
// It owns the console and JSON handlers, rotates the optional log file, and
// exposes context helpers so reader and backup code can tag every line with
// the backup session, device target, and stage without threading those
// values through each call. A no-op logger is provided for tests and for
// components constructed without one.
package logging
