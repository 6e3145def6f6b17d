package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vesselflow/internal/logging"
	"vesselflow/internal/scene"
)

// Kind identifies the class of host operation being observed. Each kind
// carries its own timeout and data floor.
type Kind string

const (
	KindSegmentation Kind = "segmentation"
	KindCenterline   Kind = "centerline"
	KindCPR          Kind = "cpr"
)

// State is the observed lifecycle of a monitored operation.
type State int

const (
	StatePending State = iota
	StateSucceeded
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state latches: once Succeeded or Failed, later
// polls keep returning the same status. TimedOut is not terminal because the
// caller may extend the window and keep waiting.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Status is one observation of a monitored operation.
type Status struct {
	State   State
	Result  scene.NodeRef
	Curve   scene.NodeRef
	Reason  string
	Elapsed time.Duration
}

// Token references one attached observation of an in-flight operation.
type Token string

type watch struct {
	handle     scene.OperationHandle
	kind       Kind
	timeout    time.Duration
	attachedAt time.Time

	seenRevision bool
	lastRevision uint64

	latched *Status
}

// Monitor observes in-progress host operations by inspecting their result
// artifacts. The host offers no reliable completion callback, so detection is
// level-triggered: an operation succeeds on the first poll where the artifact
// exists, carries enough data, and has kept the same revision across two
// consecutive polls. The two-poll stability rule keeps a transient partial
// write from being mistaken for completion.
type Monitor struct {
	adapter    scene.Adapter
	logger     *slog.Logger
	now        func() time.Time
	floors     map[Kind]int
	curveFloor int

	mu      sync.Mutex
	watches map[Token]*watch
}

// Option configures optional Monitor behavior.
type Option func(*Monitor)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithDataFloor overrides the minimum artifact point count for a kind.
func WithDataFloor(kind Kind, points int) Option {
	return func(m *Monitor) { m.floors[kind] = points }
}

// WithCurveFloor overrides the minimum curve control point count accepted as
// a finished centerline.
func WithCurveFloor(points int) Option {
	return func(m *Monitor) { m.curveFloor = points }
}

// New constructs a Monitor over the given scene adapter.
func New(adapter scene.Adapter, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		adapter: adapter,
		logger:  logging.NewComponentLogger(logger, "operation-monitor"),
		now:     time.Now,
		floors: map[Kind]int{
			KindSegmentation: 1,
			KindCenterline:   11,
			KindCPR:          1,
		},
		curveFloor: 6,
		watches:    make(map[Token]*watch),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach begins observing an operation. Each token owns an independent
// timeout clock starting now.
func (m *Monitor) Attach(handle scene.OperationHandle, kind Kind, timeout time.Duration) Token {
	token := Token(uuid.NewString())
	m.mu.Lock()
	m.watches[token] = &watch{
		handle:     handle,
		kind:       kind,
		timeout:    timeout,
		attachedAt: m.now(),
	}
	m.mu.Unlock()
	m.logger.Debug("operation attached",
		logging.String("token", string(token)),
		logging.String("kind", string(kind)),
		logging.Duration("timeout", timeout),
	)
	return token
}

// Poll inspects the operation once and reports its status without blocking.
// Unknown tokens (never attached, or cancelled) return an error.
func (m *Monitor) Poll(ctx context.Context, token Token) (Status, error) {
	m.mu.Lock()
	w, ok := m.watches[token]
	m.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("unknown monitor token %s", token)
	}
	if w.latched != nil {
		return *w.latched, nil
	}

	elapsed := m.now().Sub(w.attachedAt)
	artifact, err := m.adapter.OperationArtifact(ctx, w.handle)
	if err != nil {
		// A scene query error is not an operation outcome; the caller
		// retries on the next cycle.
		return Status{}, fmt.Errorf("inspect artifact: %w", err)
	}

	if artifact.Failed {
		return m.latch(w, token, Status{
			State:   StateFailed,
			Reason:  artifact.Reason,
			Elapsed: elapsed,
		}), nil
	}

	if m.complete(w, artifact) {
		return m.latch(w, token, Status{
			State:   StateSucceeded,
			Result:  artifact.Ref,
			Curve:   artifact.CurveRef,
			Elapsed: elapsed,
		}), nil
	}

	if w.timeout > 0 && elapsed >= w.timeout {
		return Status{
			State:   StateTimedOut,
			Reason:  fmt.Sprintf("no result artifact after %s", w.timeout),
			Elapsed: elapsed,
		}, nil
	}
	return Status{State: StatePending, Elapsed: elapsed}, nil
}

// complete applies the stability debounce: an existing, non-empty artifact
// counts only once its revision matches the previous poll's.
func (m *Monitor) complete(w *watch, artifact scene.Artifact) bool {
	if !artifact.Exists || !m.enoughData(w.kind, artifact) {
		w.seenRevision = false
		return false
	}
	if w.seenRevision && artifact.Revision == w.lastRevision {
		return true
	}
	w.seenRevision = true
	w.lastRevision = artifact.Revision
	return false
}

// enoughData applies the per-kind data floor. A centerline counts when either
// of its outputs carries enough data: the host often finishes the curve's
// control points while the model polydata is still sparse.
func (m *Monitor) enoughData(kind Kind, artifact scene.Artifact) bool {
	if artifact.PointCount >= m.floors[kind] {
		return true
	}
	return kind == KindCenterline && m.curveFloor > 0 && artifact.CurvePointCount >= m.curveFloor
}

func (m *Monitor) latch(w *watch, token Token, status Status) Status {
	w.latched = &status
	m.logger.Debug("operation settled",
		logging.String("token", string(token)),
		logging.String("kind", string(w.kind)),
		logging.String("state", status.State.String()),
		logging.Duration("elapsed", status.Elapsed),
	)
	return status
}

// Extend adds time to a token's timeout window so the caller can keep
// waiting after a TimedOut report.
func (m *Monitor) Extend(token Token, extra time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[token]
	if !ok {
		return fmt.Errorf("unknown monitor token %s", token)
	}
	w.timeout += extra
	return nil
}

// Cancel detaches the observation. The host-owned computation is not
// stopped; the monitor only stops listening.
func (m *Monitor) Cancel(token Token) {
	m.mu.Lock()
	delete(m.watches, token)
	m.mu.Unlock()
}

// Active returns the number of live observations.
func (m *Monitor) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watches)
}
