package centerline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vesselflow/internal/logging"
	"vesselflow/internal/monitor"
	"vesselflow/internal/scene"
	"vesselflow/internal/services"
)

// FirstSuccessFunc is invoked once per set, when the first job completes.
// The controller uses it as the advancement trigger for the analysis phase.
type FirstSuccessFunc func(ctx context.Context, id JobID)

// Manager tracks the one-or-more concurrent centerline computations of a
// session (one job per vessel or bifurcation branch). The external extraction
// tool processes one job interactively, so at most one job per set may be
// running; the rest queue as pending in operator-chosen order.
//
// Manager carries no locking of its own. The workflow controller serializes
// every call, operator-initiated and poll-loop alike, behind its mutex.
type Manager struct {
	adapter scene.Adapter
	monitor *monitor.Monitor
	logger  *slog.Logger
	timeout time.Duration

	jobs []*Job
	byID map[JobID]*Job

	onFirstSuccess   FirstSuccessFunc
	firstSuccessSent bool
}

// NewManager constructs a centerline set manager. timeout applies to each
// extraction's completion monitor.
func NewManager(adapter scene.Adapter, mon *monitor.Monitor, logger *slog.Logger, timeout time.Duration) *Manager {
	return &Manager{
		adapter: adapter,
		monitor: mon,
		logger:  logging.NewComponentLogger(logger, "centerline-set"),
		timeout: timeout,
		byID:    make(map[JobID]*Job),
	}
}

// SetFirstSuccessHandler registers the advancement trigger callback.
func (m *Manager) SetFirstSuccessHandler(fn FirstSuccessFunc) {
	m.onFirstSuccess = fn
}

// AddJob registers a new extraction job for the vessel index. It fails with
// ErrAlreadyComplete when the index already holds a Done job; callers that
// want replacement must RemoveJob first, which keeps the one-Done-per-index
// invariant enforced in a single place.
func (m *Manager) AddJob(vesselIndex int, endpoints []scene.Point, segment scene.NodeRef) (JobID, error) {
	if len(endpoints) < 2 {
		return "", services.Wrap(services.ErrValidation, "centerline_extraction", "add job",
			fmt.Sprintf("need at least 2 endpoints, got %d", len(endpoints)), nil)
	}
	for _, job := range m.jobs {
		if job.VesselIndex == vesselIndex && job.Status == StatusDone {
			return "", services.Wrap(services.ErrAlreadyComplete, "centerline_extraction", "add job",
				fmt.Sprintf("vessel %d", vesselIndex), nil)
		}
	}
	job := &Job{
		ID:            JobID(uuid.NewString()),
		VesselIndex:   vesselIndex,
		Endpoints:     append([]scene.Point(nil), endpoints...),
		SourceSegment: segment,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	m.jobs = append(m.jobs, job)
	m.byID[job.ID] = job
	m.logger.Info("centerline job added",
		logging.String(logging.FieldJobID, string(job.ID)),
		logging.Int(logging.FieldVesselIndex, vesselIndex),
	)
	return job.ID, nil
}

// StartJob launches the host extraction for a pending job and attaches its
// completion monitor. It fails with ErrBusy while another job in the set is
// running.
func (m *Manager) StartJob(ctx context.Context, id JobID) (monitor.Token, error) {
	job, ok := m.byID[id]
	if !ok {
		return "", services.Wrap(services.ErrNotFound, "centerline_extraction", "start job", string(id), nil)
	}
	if job.Status != StatusPending {
		return "", services.Wrap(services.ErrValidation, "centerline_extraction", "start job",
			fmt.Sprintf("job is %s, not pending", job.Status), nil)
	}
	for _, other := range m.jobs {
		if other.Status == StatusRunning {
			return "", services.Wrap(services.ErrBusy, "centerline_extraction", "start job",
				fmt.Sprintf("job for vessel %d is still running", other.VesselIndex), nil)
		}
	}

	handle, err := m.adapter.RunCenterlineExtraction(ctx, job.SourceSegment, job.Endpoints)
	if err != nil {
		return "", services.Wrap(services.ErrOperation, "centerline_extraction", "launch extraction", "", err)
	}
	job.token = m.monitor.Attach(handle, monitor.KindCenterline, m.timeout)
	job.hasToken = true
	job.Status = StatusRunning
	m.logger.Info("centerline extraction started",
		logging.String(logging.FieldJobID, string(id)),
		logging.Int(logging.FieldVesselIndex, job.VesselIndex),
	)
	return job.token, nil
}

// OnJobStatus records a monitor observation for the job. On the set's first
// success it fires the registered advancement trigger.
func (m *Manager) OnJobStatus(ctx context.Context, id JobID, status monitor.Status) {
	job, ok := m.byID[id]
	if !ok || job.Status.Terminal() {
		return
	}
	switch status.State {
	case monitor.StateSucceeded:
		// Two Done jobs for one vessel index would corrupt the analysis
		// input; fail this job and leave the sibling untouched.
		for _, other := range m.jobs {
			if other != job && other.VesselIndex == job.VesselIndex && other.Status == StatusDone {
				job.Status = StatusFailed
				job.FailureReason = services.Wrap(services.ErrInvariant, "centerline_extraction", "record result",
					fmt.Sprintf("vessel %d already has a completed centerline", job.VesselIndex), nil).Error()
				m.detach(job)
				return
			}
		}
		job.Status = StatusDone
		job.ResultModel = status.Result
		job.ResultCurve = status.Curve
		m.detach(job)
		m.logger.Info("centerline job completed",
			logging.String(logging.FieldJobID, string(id)),
			logging.Int(logging.FieldVesselIndex, job.VesselIndex),
			logging.String("model", string(status.Result)),
		)
		if !m.firstSuccessSent && m.onFirstSuccess != nil {
			m.firstSuccessSent = true
			m.onFirstSuccess(ctx, id)
		}
	case monitor.StateFailed:
		job.Status = StatusFailed
		job.FailureReason = status.Reason
		m.detach(job)
		m.logger.Warn("centerline job failed",
			logging.String(logging.FieldJobID, string(id)),
			logging.Int(logging.FieldVesselIndex, job.VesselIndex),
			logging.String("reason", status.Reason),
			logging.String(logging.FieldErrorHint, "remove the job and retry with new endpoints"),
		)
	case monitor.StateTimedOut:
		// Reported to the operator through snapshots; the job keeps
		// running until cancelled or extended.
		m.logger.Warn("centerline extraction timed out",
			logging.String(logging.FieldJobID, string(id)),
			logging.Int(logging.FieldVesselIndex, job.VesselIndex),
			logging.String(logging.FieldErrorHint, "extend the wait, or remove the job and retry"),
		)
	}
}

// PumpOnce polls every running job's monitor token once and folds the
// observations back into job state.
func (m *Manager) PumpOnce(ctx context.Context) {
	for _, job := range m.jobs {
		if job.Status != StatusRunning || !job.hasToken {
			continue
		}
		status, err := m.monitor.Poll(ctx, job.token)
		if err != nil {
			m.logger.Warn("centerline poll failed",
				logging.String(logging.FieldJobID, string(job.ID)),
				logging.Error(err),
			)
			continue
		}
		m.OnJobStatus(ctx, job.ID, status)
	}
}

// RemoveJob cancels the job's monitor token and releases the scene entities
// it owns. Removing an unknown job is a no-op.
func (m *Manager) RemoveJob(ctx context.Context, id JobID) error {
	job, ok := m.byID[id]
	if !ok {
		return nil
	}
	m.detach(job)
	var leak error
	for _, ref := range []scene.NodeRef{job.ResultModel, job.ResultCurve} {
		if ref == "" {
			continue
		}
		if exists, err := m.adapter.QueryNodeExists(ctx, ref); err != nil || !exists {
			continue
		}
		if err := m.adapter.DeleteNode(ctx, ref); err != nil {
			leak = services.Wrap(services.ErrLeakGuard, "centerline_extraction", "remove job",
				fmt.Sprintf("node %s not released", ref), err)
			m.logger.Warn("centerline node not released", logging.Error(leak))
		}
	}
	delete(m.byID, id)
	for i, j := range m.jobs {
		if j.ID == id {
			m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
			break
		}
	}
	return leak
}

// RemoveAll tears down every job. Used on phase restart and session reset.
func (m *Manager) RemoveAll(ctx context.Context) error {
	var leak error
	for _, job := range m.snapshotJobs() {
		if err := m.RemoveJob(ctx, job.ID); err != nil {
			leak = err
		}
	}
	m.firstSuccessSent = false
	return leak
}

// AllDone reports whether every job is in a terminal state. A set mixing
// Done and Failed jobs counts; any Pending or Running job does not.
func (m *Manager) AllDone() bool {
	for _, job := range m.jobs {
		if !job.Status.Terminal() {
			return false
		}
	}
	return true
}

// CompletedJobs returns the Done jobs, in creation order. Failed jobs are
// excluded from analysis input.
func (m *Manager) CompletedJobs() []Job {
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if job.Status == StatusDone {
			out = append(out, job.snapshot())
		}
	}
	return out
}

// FailedJobs returns the Failed jobs so the operator can retry them.
func (m *Manager) FailedJobs() []Job {
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if job.Status == StatusFailed {
			out = append(out, job.snapshot())
		}
	}
	return out
}

// Jobs returns a snapshot of every job in creation order.
func (m *Manager) Jobs() []Job {
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.snapshot())
	}
	return out
}

// Len reports the number of jobs in the set.
func (m *Manager) Len() int {
	return len(m.jobs)
}

func (m *Manager) detach(job *Job) {
	if job.hasToken {
		m.monitor.Cancel(job.token)
		job.hasToken = false
	}
	if job.Status == StatusRunning {
		job.Status = StatusPending
	}
}

func (m *Manager) snapshotJobs() []Job {
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	return out
}
