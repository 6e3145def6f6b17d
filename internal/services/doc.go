// Package services holds the shared error taxonomy and context annotation
// helpers used across the workflow core.
//
// Errors are classified by wrapping one of the exported sentinels so callers
// can decide between blocking the current action, surfacing a retry option,
// or logging a warning and moving on. Context helpers carry session, phase,
// job, and correlation identifiers so structured logs stay consistent without
// threading those values through every signature.
package services
