package workflow

import (
	"testing"

	"vesselflow/internal/logging"
	"vesselflow/internal/scene"
	"vesselflow/internal/services"
	"vesselflow/internal/testsupport"
)

func TestDelayBacksOffWhileErrorPending(t *testing.T) {
	cfg := testsupport.Config(t)
	cfg.Workflow.PollInterval = 2
	cfg.Workflow.ErrorRetryInterval = 10

	c := NewController(cfg, scene.NewFakeHost("Volume_1"), logging.NewNop())
	r := NewRunner(cfg, c, logging.NewNop())

	if got := r.delay(); got != cfg.PollInterval() {
		t.Fatalf("delay without error = %s, want %s", got, cfg.PollInterval())
	}

	c.mu.Lock()
	c.lastErr = services.Wrap(services.ErrOperation, string(PhaseSegmenting), "segmentation", "", nil)
	c.mu.Unlock()
	if got := r.delay(); got != cfg.ErrorRetryInterval() {
		t.Fatalf("delay with blocking error = %s, want %s", got, cfg.ErrorRetryInterval())
	}

	// Leak-guard conditions are warnings, not blockers; they must not slow
	// the loop.
	c.mu.Lock()
	c.lastErr = services.Wrap(services.ErrLeakGuard, string(PhaseCropping), "cleanup", "", nil)
	c.mu.Unlock()
	if got := r.delay(); got != cfg.PollInterval() {
		t.Fatalf("delay with leak warning = %s, want %s", got, cfg.PollInterval())
	}
}
