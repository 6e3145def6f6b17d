// Package journal persists an append-only diagnostic trace of workflow
// activity: phase transitions, restarts, operation outcomes, and job status
// changes. It backs the status command's history view. Session state is not
// stored here; a session lives in memory for the process lifetime.
package journal
