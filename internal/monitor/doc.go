// Package monitor observes in-flight host-executed algorithms without
// blocking the orchestration loop.
//
// The host provides no completion callback contract, so the monitor inspects
// each operation's externally visible result artifact on every poll cycle and
// reports pending, succeeded, failed, or timed-out. Success requires the
// artifact to exist, meet its kind's data floor, and hold a stable revision
// across two consecutive polls. Every attached token keeps an independent
// timeout clock, which the caller may extend after a timeout report.
package monitor
