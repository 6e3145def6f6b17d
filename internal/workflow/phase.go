package workflow

import "strings"

// Phase is one stage of the linear workflow state machine.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCropping   Phase = "cropping"
	PhaseSegmenting Phase = "segmenting"
	PhaseCenterline Phase = "centerline_extraction"
	PhaseAnalysis   Phase = "analysis"
	PhaseComplete   Phase = "complete"
	// PhaseRestartingCrop is the transient sub-state entered while a
	// restart tears down the entities of later phases. It is reachable
	// from any phase and always resolves to PhaseCropping.
	PhaseRestartingCrop Phase = "restarting_crop"
)

var phaseOrder = []Phase{
	PhaseIdle,
	PhaseCropping,
	PhaseSegmenting,
	PhaseCenterline,
	PhaseAnalysis,
	PhaseComplete,
}

var phaseSet = func() map[Phase]struct{} {
	set := make(map[Phase]struct{}, len(phaseOrder)+1)
	for _, phase := range phaseOrder {
		set[phase] = struct{}{}
	}
	set[PhaseRestartingCrop] = struct{}{}
	return set
}()

// AllPhases returns the ordered forward phases (the restart sub-state is not
// part of the linear order).
func AllPhases() []Phase {
	cp := make([]Phase, len(phaseOrder))
	copy(cp, phaseOrder)
	return cp
}

// ParsePhase converts a string into a known Phase.
func ParsePhase(value string) (Phase, bool) {
	normalized := Phase(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := phaseSet[normalized]
	return normalized, ok
}

// Next returns the phase following p in the forward order. The second return
// is false for the final phase and for the restart sub-state.
func (p Phase) Next() (Phase, bool) {
	for i, phase := range phaseOrder {
		if phase == p && i+1 < len(phaseOrder) {
			return phaseOrder[i+1], true
		}
	}
	return "", false
}

// Label returns the operator-facing name of the phase.
func (p Phase) Label() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseCropping:
		return "Volume Cropping"
	case PhaseSegmenting:
		return "Vessel Segmentation"
	case PhaseCenterline:
		return "Centerline Extraction"
	case PhaseAnalysis:
		return "CPR & Lesion Analysis"
	case PhaseComplete:
		return "Complete"
	case PhaseRestartingCrop:
		return "Restarting Crop"
	default:
		return string(p)
	}
}

// Trigger distinguishes how an advancement was requested.
type Trigger string

const (
	// TriggerOperator is an explicit operator request.
	TriggerOperator Trigger = "operator"
	// TriggerSkip completes the analysis phase without lesion points.
	TriggerSkip Trigger = "skip"
	// TriggerFirstCenterline is fired by the centerline set on its first
	// completed job.
	TriggerFirstCenterline Trigger = "first_centerline"
)
