package scene

import "context"

// NodeRef identifies a node in the host's scene graph.
type NodeRef string

// OperationHandle identifies an in-flight host-executed algorithm run.
type OperationHandle string

// ViewMode selects the host's view layout.
type ViewMode int

const (
	// MultiPlanarThreeUp shows the three orthogonal slice views.
	MultiPlanarThreeUp ViewMode = iota
	// ThreeDOnly shows a single 3D view.
	ThreeDOnly
)

func (m ViewMode) String() string {
	switch m {
	case MultiPlanarThreeUp:
		return "multi_planar_three_up"
	case ThreeDOnly:
		return "three_d_only"
	default:
		return "unknown"
	}
}

// Point is a position in the host's physical coordinate space, in mm.
type Point struct {
	X, Y, Z float64
}

// Bounds is an axis-aligned bounding box in physical coordinates.
type Bounds struct {
	Min Point
	Max Point
}

// ThresholdParams bound the intensity window used for threshold segmentation.
type ThresholdParams struct {
	Low  float64
	High float64
}

// Artifact is the externally visible result of a host operation. Completion
// is observed through it: the host offers no reliable completion callback, so
// the monitor inspects the artifact until it exists, carries enough data, and
// stops changing.
type Artifact struct {
	Exists bool
	// Ref is the primary result node (segment, centerline model, CPR volume).
	Ref NodeRef
	// CurveRef is the secondary curve node produced by centerline extraction.
	CurveRef NodeRef
	// Revision changes while the host is still writing the artifact.
	// Identical revisions across consecutive inspections mean stable.
	Revision uint64
	// PointCount is the artifact's data size (polydata points, control
	// points, or voxel count indicator). Zero means empty.
	PointCount int
	// CurvePointCount is the control point count of the secondary curve,
	// when the operation produces one. Zero otherwise.
	CurvePointCount int
	// Failed reports a host-signalled operation failure.
	Failed bool
	Reason string
}

// Adapter is the single gateway to the external data/rendering host. All
// scene mutation in this codebase funnels through it; no other component
// touches host state.
type Adapter interface {
	SetViewMode(ctx context.Context, mode ViewMode) error
	SetModulePanelVisible(ctx context.Context, visible bool) error

	VolumeBounds(ctx context.Context, volume NodeRef) (Bounds, error)
	CreateROI(ctx context.Context, bounds Bounds) (NodeRef, error)
	CropVolume(ctx context.Context, volume, roi NodeRef) (NodeRef, error)

	RunSegmentation(ctx context.Context, volume NodeRef, params ThresholdParams) (OperationHandle, error)
	RunCenterlineExtraction(ctx context.Context, segment NodeRef, endpoints []Point) (OperationHandle, error)
	RunCPR(ctx context.Context, model, curve NodeRef) (OperationHandle, error)

	OperationArtifact(ctx context.Context, handle OperationHandle) (Artifact, error)

	DeleteNode(ctx context.Context, ref NodeRef) error
	QueryNodeExists(ctx context.Context, ref NodeRef) (bool, error)
}
