package workflow

import "vesselflow/internal/scene"

// phasePolicy declares the view-mode and module-panel state a phase
// requires. A declarative registry keeps orchestration logic out of host
// widget lookup: the controller consults the table instead of probing UI
// state.
type phasePolicy struct {
	view         scene.ViewMode
	hasView      bool
	panelVisible bool
	hasPanel     bool
}

var phasePolicies = map[Phase]phasePolicy{
	PhaseCropping:       {view: scene.MultiPlanarThreeUp, hasView: true, panelVisible: false, hasPanel: true},
	PhaseRestartingCrop: {view: scene.MultiPlanarThreeUp, hasView: true, panelVisible: false, hasPanel: true},
	PhaseSegmenting:     {view: scene.MultiPlanarThreeUp, hasView: true, panelVisible: true, hasPanel: true},
	PhaseCenterline:     {view: scene.MultiPlanarThreeUp, hasView: true, panelVisible: true, hasPanel: true},
	PhaseAnalysis:       {view: scene.ThreeDOnly, hasView: true, panelVisible: true, hasPanel: true},
	// Idle and Complete leave the host layout alone.
}

func policyFor(phase Phase) (phasePolicy, bool) {
	policy, ok := phasePolicies[phase]
	return policy, ok
}
