package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"vesselflow/internal/centerline"
	"vesselflow/internal/config"
	"vesselflow/internal/journal"
	"vesselflow/internal/lesion"
	"vesselflow/internal/logging"
	"vesselflow/internal/monitor"
	"vesselflow/internal/scene"
	"vesselflow/internal/services"
)

// Controller drives the workflow state machine. It owns every scene entity a
// phase creates (ROI, cropped volume, segmentation output, CPR volume) and
// funnels all host mutation through the scene adapter. All orchestration runs
// on a single logical thread: external operations are never awaited, only
// polled via PumpOnce.
type Controller struct {
	cfg     *config.Config
	adapter scene.Adapter
	mon     *monitor.Monitor
	lines   *centerline.Manager
	lesions *lesion.Set
	session *Session
	diary   *journal.Journal
	logger  *slog.Logger

	mu            sync.Mutex
	roi           scene.NodeRef
	roiCommitted  bool
	croppedVolume scene.NodeRef
	seg           SegmentationTask
	cpr           CPRTask
	lastErr       error

	// firstCenterline is set by the centerline manager's first-success
	// callback, which fires inside lines.PumpOnce while the controller
	// already holds mu. PumpOnce consumes the flag on the same goroutine,
	// so no extra synchronization applies.
	firstCenterline bool
}

// ControllerOption customizes controller construction.
type ControllerOption func(*Controller)

// WithJournal attaches a diagnostics journal. Journal failures never block
// orchestration; they degrade to warnings.
func WithJournal(j *journal.Journal) ControllerOption {
	return func(c *Controller) { c.diary = j }
}

// WithMonitorOptions forwards options to the embedded operation monitor.
func WithMonitorOptions(opts ...monitor.Option) ControllerOption {
	return func(c *Controller) {
		c.mon = monitor.New(c.adapter, c.logger, c.monitorOptions(opts)...)
	}
}

// NewController wires the controller with its monitor, centerline manager,
// and lesion set.
func NewController(cfg *config.Config, adapter scene.Adapter, logger *slog.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		cfg:     cfg,
		adapter: adapter,
		logger:  logging.NewComponentLogger(logger, "workflow-controller"),
		lesions: lesion.NewSet(),
		session: NewSession(cfg, logger),
	}
	c.mon = monitor.New(adapter, logger, c.monitorOptions(nil)...)
	for _, opt := range opts {
		opt(c)
	}
	c.lines = centerline.NewManager(adapter, c.mon, logger, c.centerlineTimeout())
	c.lines.SetFirstSuccessHandler(func(ctx context.Context, id centerline.JobID) {
		c.firstCenterline = true
	})
	return c
}

func (c *Controller) monitorOptions(extra []monitor.Option) []monitor.Option {
	opts := []monitor.Option{
		monitor.WithDataFloor(monitor.KindCenterline, c.cfg.Thresholds.MinModelPoints),
		monitor.WithCurveFloor(c.cfg.Thresholds.MinCurvePoints),
	}
	return append(opts, extra...)
}

func (c *Controller) centerlineTimeout() time.Duration {
	return time.Duration(c.cfg.Timeouts.Centerline) * time.Second
}

func (c *Controller) segmentationTimeout() time.Duration {
	return time.Duration(c.cfg.Timeouts.Segmentation) * time.Second
}

func (c *Controller) cprTimeout() time.Duration {
	return time.Duration(c.cfg.Timeouts.CPR) * time.Second
}

// Session exposes the session holder.
func (c *Controller) Session() *Session { return c.session }

// Lesions exposes the lesion point set.
func (c *Controller) Lesions() *lesion.Set { return c.lesions }

// CurrentPhase returns the active phase.
func (c *Controller) CurrentPhase() Phase {
	return c.session.Current().Phase
}

// StartSession begins a fresh workflow for the given volume, replacing any
// session in progress. The new session starts Idle; the first Advance enters
// Cropping.
func (c *Controller) StartSession(ctx context.Context, volume scene.NodeRef) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Active() {
		if err := c.cleanupDerivedLocked(ctx); err != nil {
			c.logger.Warn("stale session cleanup left orphans", logging.Error(err))
		}
		c.releaseROILocked(ctx)
	}
	id, err := c.session.Start(volume)
	if err != nil {
		return "", err
	}
	c.lastErr = nil
	c.record(ctx, journal.EventSessionStart, string(PhaseIdle), "", "volume="+string(volume))
	return id, nil
}

// CommitROI crops the active volume to the current region of interest. The
// crop runs synchronously in the host; its result gates the Cropping to
// Segmenting transition.
func (c *Controller) CommitROI(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.session.Current()
	if snap.Phase != PhaseCropping {
		return services.Wrap(services.ErrNotReady, string(snap.Phase), "commit roi",
			"cropping is not the active phase", nil)
	}
	if c.roi == "" {
		return services.Wrap(services.ErrInvariant, string(snap.Phase), "commit roi",
			"no region of interest exists", nil)
	}
	cropped, err := c.adapter.CropVolume(ctx, snap.ActiveVolume, c.roi)
	if err != nil {
		return services.Wrap(services.ErrOperation, string(snap.Phase), "crop volume",
			"adjust the region and commit again", err)
	}
	c.croppedVolume = cropped
	c.roiCommitted = true
	c.logger.Info("region committed",
		logging.String(logging.FieldSessionID, snap.SessionID),
		logging.String("cropped_volume", string(cropped)),
	)
	return nil
}

// PlaceLesionPoint projects an operator pick onto a completed centerline and
// records it. Only valid during Analysis.
func (c *Controller) PlaceLesionPoint(jobID centerline.JobID, samples []lesion.Sample, position r3.Vec) (lesion.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.session.Current()
	if snap.Phase != PhaseAnalysis {
		return lesion.Point{}, services.Wrap(services.ErrNotReady, string(snap.Phase), "place lesion point",
			"lesion placement is only available during analysis", nil)
	}
	return c.lesions.Place(jobID, samples, position)
}

// AddCenterlineJob queues an extraction job for the vessel index. Jobs are
// managed while centerline extraction or analysis is the active phase; the
// background poll loop and operator calls share the controller's mutex, which
// is the only synchronization the job set relies on.
func (c *Controller) AddCenterlineJob(vesselIndex int, endpoints []scene.Point, segment scene.NodeRef) (centerline.JobID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.centerlinePhaseLocked("add centerline job"); err != nil {
		return "", err
	}
	return c.lines.AddJob(vesselIndex, endpoints, segment)
}

// StartCenterlineJob launches the host extraction for a pending job.
func (c *Controller) StartCenterlineJob(ctx context.Context, id centerline.JobID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.centerlinePhaseLocked("start centerline job"); err != nil {
		return err
	}
	_, err := c.lines.StartJob(ctx, id)
	return err
}

// RemoveCenterlineJob cancels a job and releases the scene entities it owns.
func (c *Controller) RemoveCenterlineJob(ctx context.Context, id centerline.JobID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines.RemoveJob(ctx, id)
}

func (c *Controller) centerlinePhaseLocked(operation string) error {
	phase := c.session.Current().Phase
	if phase != PhaseCenterline && phase != PhaseAnalysis {
		return services.Wrap(services.ErrNotReady, string(phase), operation,
			"centerline jobs are managed during extraction and analysis", nil)
	}
	return nil
}

// LastError returns the most recent blocking error surfaced by the pump, or
// nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Summary reports the full workflow state.
func (c *Controller) Summary() StatusSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.session.Current()
	summary := StatusSummary{
		SessionID:    snap.SessionID,
		Phase:        snap.Phase,
		PhaseLabel:   snap.Phase.Label(),
		ActiveVolume: snap.ActiveVolume,
		RestartCount: snap.RestartCount,
		Segmentation: c.seg,
		CPR:          c.cpr,
		Jobs:         c.lines.Jobs(),
		LesionPoints: c.lesions.Count(),
	}
	if c.lastErr != nil {
		summary.LastError = c.lastErr.Error()
	}
	return summary
}

// record appends a journal event, degrading to a warning on failure.
func (c *Controller) record(ctx context.Context, kind journal.EventKind, phase, jobID, detail string) {
	if c.diary == nil {
		return
	}
	event := journal.Event{
		SessionID: c.session.Current().SessionID,
		Kind:      kind,
		Phase:     phase,
		JobID:     jobID,
		Detail:    detail,
	}
	if err := c.diary.Record(ctx, event); err != nil {
		c.logger.Warn("journal write failed",
			logging.String(logging.FieldEventType, string(kind)),
			logging.Error(err),
		)
	}
}
