package workflow

import (
	"vesselflow/internal/centerline"
	"vesselflow/internal/monitor"
	"vesselflow/internal/scene"
)

// TaskStatus tracks a single monitored host operation owned by the
// controller (segmentation, CPR). Centerline jobs carry their own status
// inside the centerline manager.
type TaskStatus string

const (
	TaskIdle      TaskStatus = "idle"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskTimedOut  TaskStatus = "timed_out"
)

// Terminal reports whether the task can never change state again without an
// explicit retry. A timed-out task is not terminal: the wait can be extended.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// SegmentationTask is the controller's view of the threshold segmentation
// run launched on entering the Segmenting phase.
type SegmentationTask struct {
	Token    monitor.Token
	Status   TaskStatus
	Result   scene.NodeRef
	Reason   string
	Attempts int
}

// CPRTask is the controller's view of the curved planar reconstruction run
// launched on entering the Analysis phase.
type CPRTask struct {
	Token  monitor.Token
	Status TaskStatus
	Result scene.NodeRef
	Reason string
}

// StatusSummary is a point-in-time report of the whole workflow, consumed by
// the status command.
type StatusSummary struct {
	SessionID    string
	Phase        Phase
	PhaseLabel   string
	ActiveVolume scene.NodeRef
	RestartCount int
	Segmentation SegmentationTask
	CPR          CPRTask
	Jobs         []centerline.Job
	LesionPoints int
	LastError    string
}
