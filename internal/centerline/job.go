package centerline

import (
	"time"

	"vesselflow/internal/monitor"
	"vesselflow/internal/scene"
)

// JobID identifies one extraction run.
type JobID string

// Status is the lifecycle of a centerline job.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Job is one extraction run producing a single vessel's centerline model and
// curve from segmented data and operator-placed endpoints.
type Job struct {
	ID            JobID
	VesselIndex   int
	Endpoints     []scene.Point
	SourceSegment scene.NodeRef
	// ResultModel and ResultCurve are set if and only if Status is Done.
	ResultModel   scene.NodeRef
	ResultCurve   scene.NodeRef
	Status        Status
	FailureReason string
	CreatedAt     time.Time

	token    monitor.Token
	hasToken bool
}

// Token returns the job's live monitor token, if any.
func (j *Job) Token() (monitor.Token, bool) {
	return j.token, j.hasToken
}

func (j *Job) snapshot() Job {
	cp := *j
	cp.Endpoints = append([]scene.Point(nil), j.Endpoints...)
	return cp
}
