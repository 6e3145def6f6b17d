// Package logging provides structured logging helpers shared across the
// workflow core: typed slog attribute constructors, standardized field names,
// context-derived fields, and logger construction from configuration.
package logging
