// Package logging builds the slog loggers used across voicepipe: a console
// handler for interactive output, a JSON handler for machine consumption, and
// helpers that thread run/stage identifiers from context into log records.
package logging
