// Package workflow implements the phase state machine that sequences a
// vessel analysis case: Idle, Cropping, Segmenting, CenterlineExtraction,
// Analysis, Complete, plus a RestartingCrop detour reachable from any phase
// after Idle.
//
// The controller is the single writer of workflow state. It launches host
// operations through the scene adapter, observes their completion through
// the operation monitor, and commits phase transitions only after the next
// phase's precondition holds and its data-affecting launch has succeeded.
// View and panel side effects are best-effort; data operations are not.
//
// Nothing in this package blocks on a host operation. The Runner ticks
// PumpOnce at the configured poll interval, and each cycle reacts to
// whatever the monitor observed.
package workflow
