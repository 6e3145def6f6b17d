package workflow_test

import (
	"testing"

	"vesselflow/internal/workflow"
)

func TestNextWalksTheForwardChain(t *testing.T) {
	want := []workflow.Phase{
		workflow.PhaseCropping,
		workflow.PhaseSegmenting,
		workflow.PhaseCenterline,
		workflow.PhaseAnalysis,
		workflow.PhaseComplete,
	}
	phase := workflow.PhaseIdle
	for _, next := range want {
		got, ok := phase.Next()
		if !ok {
			t.Fatalf("Next(%s) = none, want %s", phase, next)
		}
		if got != next {
			t.Fatalf("Next(%s) = %s, want %s", phase, got, next)
		}
		phase = got
	}
	if _, ok := workflow.PhaseComplete.Next(); ok {
		t.Fatal("Complete should have no successor")
	}
	if _, ok := workflow.PhaseRestartingCrop.Next(); ok {
		t.Fatal("RestartingCrop is a detour, not part of the forward chain")
	}
}

func TestParsePhase(t *testing.T) {
	for _, phase := range workflow.AllPhases() {
		got, ok := workflow.ParsePhase(string(phase))
		if !ok || got != phase {
			t.Fatalf("ParsePhase(%q) = %v, %t", phase, got, ok)
		}
	}
	if _, ok := workflow.ParsePhase("teleporting"); ok {
		t.Fatal("unknown phase should not parse")
	}
}

func TestLabelsAreHumanReadable(t *testing.T) {
	for _, phase := range workflow.AllPhases() {
		if phase.Label() == "" {
			t.Fatalf("phase %s has no label", phase)
		}
	}
}
