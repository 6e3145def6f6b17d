// Package scene defines the thin interface to the external data/rendering
// host: node creation and deletion, view-layout commands, and launching the
// host-executed image-processing algorithms.
//
// The Adapter carries no orchestration logic. It is the single writer of
// host scene state; the workflow controller and the centerline manager funnel
// every mutation through it. FakeHost provides a scriptable in-memory host
// for tests and the simulated run mode.
package scene
