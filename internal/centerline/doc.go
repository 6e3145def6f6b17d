// Package centerline tracks the set of per-vessel centerline extraction jobs
// within one workflow session.
//
// A set may hold jobs for several vessels or bifurcation branches, but the
// external extraction tool works interactively on one job at a time, so the
// manager enforces a single running job per set. Jobs complete independently
// and heterogeneously: the analysis phase proceeds with the Done subset while
// Failed jobs are surfaced for retry.
package centerline
