package workflow

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"vesselflow/internal/config"
	"vesselflow/internal/logging"
	"vesselflow/internal/scene"
	"vesselflow/internal/services"
)

// Snapshot is a point-in-time copy of session state for observers.
type Snapshot struct {
	SessionID    string
	Phase        Phase
	ActiveVolume scene.NodeRef
	RestartCount int
	CreatedAt    time.Time
}

// Session holds the process-wide workflow state for one loaded case: current
// phase, active volume, and restart counters. Exactly one session may be
// current; starting a new one implicitly resets the old. A file lock on the
// log directory keeps a second vesselflow process off the same case.
type Session struct {
	cfg    *config.Config
	logger *slog.Logger

	mu     sync.Mutex
	lock   *flock.Flock
	locked bool
	active bool
	snap   Snapshot
}

// NewSession constructs an inactive session holder.
func NewSession(cfg *config.Config, logger *slog.Logger) *Session {
	return &Session{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "workflow-session"),
	}
}

// Start initializes the session for a loaded volume. The configured case data
// source must exist; beyond the existence check it is not parsed here.
func (s *Session) Start(volume scene.NodeRef) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.cfg.Paths.CaseDir); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "idle", "start session",
			fmt.Sprintf("case data source %s not accessible", s.cfg.Paths.CaseDir), err)
	}
	if err := s.cfg.EnsureDirectories(); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "idle", "start session", "", err)
	}

	if s.lock == nil {
		s.lock = flock.New(filepath.Join(s.cfg.Paths.LogDir, "vesselflow.lock"))
	}
	if !s.locked {
		ok, err := s.lock.TryLock()
		if err != nil {
			return "", services.Wrap(services.ErrConfiguration, "idle", "acquire case lock", "", err)
		}
		if !ok {
			return "", services.Wrap(services.ErrBusy, "idle", "acquire case lock",
				"another vesselflow process holds this case", nil)
		}
		s.locked = true
	}

	if s.active {
		s.logger.Info("replacing current session",
			logging.String(logging.FieldSessionID, s.snap.SessionID),
		)
	}
	s.snap = Snapshot{
		SessionID:    uuid.NewString(),
		Phase:        PhaseIdle,
		ActiveVolume: volume,
		CreatedAt:    time.Now().UTC(),
	}
	s.active = true
	s.logger.Info("session started",
		logging.String(logging.FieldSessionID, s.snap.SessionID),
		logging.String("volume", string(volume)),
	)
	return s.snap.SessionID, nil
}

// Reset tears the session back down to idle and releases the case lock.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("case lock release failed", logging.Error(err))
		}
		s.locked = false
	}
	s.snap = Snapshot{Phase: PhaseIdle}
	s.active = false
}

// Active reports whether a session is current.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Current returns a snapshot of session state.
func (s *Session) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Session) setPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Phase = phase
}

func (s *Session) bumpRestart() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.RestartCount++
	return s.snap.RestartCount
}
