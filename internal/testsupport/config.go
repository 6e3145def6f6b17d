package testsupport

import (
	"path/filepath"
	"testing"

	"vesselflow/internal/config"
)

// Config returns a validated configuration rooted in a per-test tempdir, with
// timing knobs shrunk for fast tests.
func Config(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CaseDir = base
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.JournalDir = filepath.Join(base, "journal")
	cfg.Workflow.PollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Workflow.SettleDelayMs = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}
