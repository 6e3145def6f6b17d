package scene

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Operation kinds used by FakeHost scripting.
const (
	OpSegmentation = "segmentation"
	OpCenterline   = "centerline"
	OpCPR          = "cpr"
)

type fakeOp struct {
	kind        string
	result      NodeRef
	curve       NodeRef
	points      int
	curvePoints int
	inspections int
	// appearAfter is the number of artifact inspections before the result
	// node exists at all.
	appearAfter int
	// churn is the number of inspections after appearance during which the
	// revision keeps changing (a partial write in progress).
	churn    int
	revision uint64
	never    bool
	failed   bool
	reason   string
}

// FakeHost is an in-memory Adapter used by tests and the simulated run mode.
// Operations complete progressively: the result artifact first does not
// exist, then exists with a churning revision, then stabilizes. Completion
// pacing and failures are scriptable per operation kind.
type FakeHost struct {
	mu sync.Mutex

	nodes map[NodeRef]struct{}
	ops   map[OperationHandle]*fakeOp

	viewModes []ViewMode
	panels    []bool

	bounds map[NodeRef]Bounds

	appearAfter   map[string]int
	churn         map[string]int
	failNext      map[string]string
	neverComplete map[string]bool
	points        map[string]int
	curvePoints   map[string]int

	failViewMode bool
	failPanel    bool
	failCrop     bool
	failLaunch   map[string]string

	cropCount int
	segCount  int
	lineCount int
	cprCount  int
}

// NewFakeHost builds a fake scene host with one loaded volume.
func NewFakeHost(volume NodeRef) *FakeHost {
	h := &FakeHost{
		nodes:         make(map[NodeRef]struct{}),
		ops:           make(map[OperationHandle]*fakeOp),
		bounds:        make(map[NodeRef]Bounds),
		appearAfter:   map[string]int{OpSegmentation: 1, OpCenterline: 1, OpCPR: 1},
		churn:         map[string]int{OpSegmentation: 1, OpCenterline: 1, OpCPR: 1},
		failNext:      make(map[string]string),
		neverComplete: make(map[string]bool),
		points:        map[string]int{OpSegmentation: 5000, OpCenterline: 120, OpCPR: 4096},
		curvePoints:   map[string]int{OpCenterline: 12},
		failLaunch:    make(map[string]string),
	}
	if volume != "" {
		h.nodes[volume] = struct{}{}
		h.bounds[volume] = Bounds{Min: Point{-120, -120, -80}, Max: Point{120, 120, 80}}
	}
	return h
}

// SetAppearAfter scripts how many artifact inspections pass before the result
// node exists for the given operation kind.
func (h *FakeHost) SetAppearAfter(kind string, inspections int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appearAfter[kind] = inspections
}

// SetChurn scripts how many inspections the artifact revision keeps changing
// after it appears.
func (h *FakeHost) SetChurn(kind string, inspections int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.churn[kind] = inspections
}

// SetPointCount scripts the data size the finished artifact reports.
func (h *FakeHost) SetPointCount(kind string, points int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points[kind] = points
}

// SetCurvePointCount scripts the control point count the finished curve
// reports.
func (h *FakeHost) SetCurvePointCount(kind string, points int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.curvePoints[kind] = points
}

// FailNextOperation makes the next launched operation of the kind report a
// host-side failure.
func (h *FakeHost) FailNextOperation(kind, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext[kind] = reason
}

// SetNeverCompletes makes operations of the kind never produce an artifact.
func (h *FakeHost) SetNeverCompletes(kind string, never bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.neverComplete[kind] = never
}

// FailViewCommands makes cosmetic view/panel commands return errors.
func (h *FakeHost) FailViewCommands(fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failViewMode = fail
	h.failPanel = fail
}

// FailCrop makes CropVolume return an error.
func (h *FakeHost) FailCrop(fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failCrop = fail
}

// FailLaunch makes launching operations of the kind return an error.
func (h *FakeHost) FailLaunch(kind, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if reason == "" {
		delete(h.failLaunch, kind)
		return
	}
	h.failLaunch[kind] = reason
}

// ViewModeHistory returns every view-mode command received, in order.
func (h *FakeHost) ViewModeHistory() []ViewMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ViewMode, len(h.viewModes))
	copy(out, h.viewModes)
	return out
}

// PanelHistory returns every panel-visibility command received, in order.
func (h *FakeHost) PanelHistory() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]bool, len(h.panels))
	copy(out, h.panels)
	return out
}

// NodeCount reports how many scene nodes currently exist.
func (h *FakeHost) NodeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes)
}

// HasNode reports whether the ref currently exists in the scene.
func (h *FakeHost) HasNode(ref NodeRef) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.nodes[ref]
	return ok
}

func (h *FakeHost) SetViewMode(_ context.Context, mode ViewMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failViewMode {
		return fmt.Errorf("view command rejected: %s", mode)
	}
	h.viewModes = append(h.viewModes, mode)
	return nil
}

func (h *FakeHost) SetModulePanelVisible(_ context.Context, visible bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failPanel {
		return fmt.Errorf("panel command rejected: visible=%t", visible)
	}
	h.panels = append(h.panels, visible)
	return nil
}

func (h *FakeHost) VolumeBounds(_ context.Context, volume NodeRef) (Bounds, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[volume]; !ok {
		return Bounds{}, fmt.Errorf("volume %s not in scene", volume)
	}
	return h.bounds[volume], nil
}

func (h *FakeHost) CreateROI(_ context.Context, bounds Bounds) (NodeRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cropCount++
	ref := NodeRef(fmt.Sprintf("CropROI_%d", h.cropCount))
	h.nodes[ref] = struct{}{}
	h.bounds[ref] = bounds
	return ref, nil
}

func (h *FakeHost) CropVolume(_ context.Context, volume, roi NodeRef) (NodeRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failCrop {
		return "", fmt.Errorf("crop rejected for %s", volume)
	}
	if _, ok := h.nodes[volume]; !ok {
		return "", fmt.Errorf("volume %s not in scene", volume)
	}
	if _, ok := h.nodes[roi]; !ok {
		return "", fmt.Errorf("roi %s not in scene", roi)
	}
	ref := NodeRef(fmt.Sprintf("%s_cropped", volume))
	h.nodes[ref] = struct{}{}
	h.bounds[ref] = h.bounds[roi]
	return ref, nil
}

func (h *FakeHost) RunSegmentation(_ context.Context, volume NodeRef, _ ThresholdParams) (OperationHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[volume]; !ok {
		return "", fmt.Errorf("volume %s not in scene", volume)
	}
	h.segCount++
	return h.launchLocked(OpSegmentation, NodeRef(fmt.Sprintf("Segmentation_%d", h.segCount)), "")
}

func (h *FakeHost) RunCenterlineExtraction(_ context.Context, segment NodeRef, endpoints []Point) (OperationHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[segment]; !ok {
		return "", fmt.Errorf("segment %s not in scene", segment)
	}
	if len(endpoints) < 2 {
		return "", fmt.Errorf("centerline extraction needs at least 2 endpoints, got %d", len(endpoints))
	}
	h.lineCount++
	model := NodeRef(fmt.Sprintf("CenterlineModel_%d", h.lineCount))
	curve := NodeRef(fmt.Sprintf("CenterlineCurve_%d", h.lineCount))
	return h.launchLocked(OpCenterline, model, curve)
}

func (h *FakeHost) RunCPR(_ context.Context, model, curve NodeRef) (OperationHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ref := range []NodeRef{model, curve} {
		if _, ok := h.nodes[ref]; !ok {
			return "", fmt.Errorf("node %s not in scene", ref)
		}
	}
	h.cprCount++
	return h.launchLocked(OpCPR, NodeRef(fmt.Sprintf("CPRVolume_%d", h.cprCount)), "")
}

func (h *FakeHost) launchLocked(kind string, result, curve NodeRef) (OperationHandle, error) {
	if reason, ok := h.failLaunch[kind]; ok {
		return "", fmt.Errorf("launch %s: %s", kind, reason)
	}
	op := &fakeOp{
		kind:        kind,
		result:      result,
		curve:       curve,
		points:      h.points[kind],
		curvePoints: h.curvePoints[kind],
		appearAfter: h.appearAfter[kind],
		churn:       h.churn[kind],
		never:       h.neverComplete[kind],
	}
	if reason, ok := h.failNext[kind]; ok {
		op.failed = true
		op.reason = reason
		delete(h.failNext, kind)
	}
	handle := OperationHandle(uuid.NewString())
	h.ops[handle] = op
	return handle, nil
}

func (h *FakeHost) OperationArtifact(_ context.Context, handle OperationHandle) (Artifact, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	op, ok := h.ops[handle]
	if !ok {
		return Artifact{}, fmt.Errorf("unknown operation %s", handle)
	}
	if op.failed {
		return Artifact{Failed: true, Reason: op.reason}, nil
	}
	op.inspections++
	if op.never || op.inspections <= op.appearAfter {
		return Artifact{}, nil
	}
	if op.revision == 0 || op.churn > 0 {
		op.revision++
		if op.churn > 0 {
			op.churn--
		}
		// Materialize the result nodes the moment the artifact appears;
		// the host writes into them while the revision churns.
		h.nodes[op.result] = struct{}{}
		if op.curve != "" {
			h.nodes[op.curve] = struct{}{}
		}
	}
	return Artifact{
		Exists:          true,
		Ref:             op.result,
		CurveRef:        op.curve,
		Revision:        op.revision,
		PointCount:      op.points,
		CurvePointCount: op.curvePoints,
	}, nil
}

func (h *FakeHost) DeleteNode(_ context.Context, ref NodeRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[ref]; !ok {
		return fmt.Errorf("node %s not in scene", ref)
	}
	delete(h.nodes, ref)
	delete(h.bounds, ref)
	return nil
}

func (h *FakeHost) QueryNodeExists(_ context.Context, ref NodeRef) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.nodes[ref]
	return ok, nil
}
