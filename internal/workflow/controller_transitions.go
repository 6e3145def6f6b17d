package workflow

import (
	"context"
	"time"

	"vesselflow/internal/journal"
	"vesselflow/internal/logging"
	"vesselflow/internal/monitor"
	"vesselflow/internal/scene"
	"vesselflow/internal/services"
)

// Advance attempts the transition out of the current phase. It fails without
// changing state unless the next phase's precondition holds, and any
// data-affecting launch for the next phase succeeds before the transition
// commits.
func (c *Controller) Advance(ctx context.Context, trigger Trigger) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advanceLocked(ctx, trigger)
}

func (c *Controller) advanceLocked(ctx context.Context, trigger Trigger) error {
	if !c.session.Active() {
		return services.Wrap(services.ErrNotReady, string(PhaseIdle), "advance",
			"start a session first", nil)
	}
	snap := c.session.Current()

	switch snap.Phase {
	case PhaseIdle:
		return c.enterCroppingLocked(ctx, snap.ActiveVolume)

	case PhaseCropping:
		if !c.roiCommitted || c.croppedVolume == "" {
			return services.Wrap(services.ErrNotReady, string(snap.Phase), "advance",
				"commit the region of interest first", nil)
		}
		if err := c.launchSegmentationLocked(ctx); err != nil {
			return err
		}
		c.enterPhaseLocked(ctx, PhaseSegmenting)
		return nil

	case PhaseSegmenting:
		if c.seg.Status != TaskSucceeded {
			return services.Wrap(services.ErrNotReady, string(snap.Phase), "advance",
				"segmentation has not completed; retry or extend the wait", nil)
		}
		c.enterPhaseLocked(ctx, PhaseCenterline)
		return nil

	case PhaseCenterline:
		done := c.lines.CompletedJobs()
		if len(done) == 0 {
			return services.Wrap(services.ErrNotReady, string(snap.Phase), "advance",
				"no centerline has completed yet", nil)
		}
		if err := c.launchCPRLocked(ctx, done[0].ResultModel, done[0].ResultCurve); err != nil {
			return err
		}
		c.enterPhaseLocked(ctx, PhaseAnalysis)
		return nil

	case PhaseAnalysis:
		if c.lesions.Count() == 0 && trigger != TriggerSkip {
			return services.Wrap(services.ErrNotReady, string(snap.Phase), "advance",
				"place a lesion point, or skip explicitly", nil)
		}
		c.enterPhaseLocked(ctx, PhaseComplete)
		return nil

	case PhaseComplete:
		return services.Wrap(services.ErrAlreadyComplete, string(snap.Phase), "advance",
			"the workflow has finished", nil)

	case PhaseRestartingCrop:
		return services.Wrap(services.ErrNotReady, string(snap.Phase), "advance",
			"a crop restart is in progress", nil)

	default:
		return services.Wrap(services.ErrInvariant, string(snap.Phase), "advance",
			"unknown phase", nil)
	}
}

// enterCroppingLocked creates a fresh full-volume region of interest and
// commits the Cropping phase. ROI creation is data-affecting: failure leaves
// the current phase unchanged.
func (c *Controller) enterCroppingLocked(ctx context.Context, volume scene.NodeRef) error {
	phase := string(c.session.Current().Phase)
	bounds, err := c.adapter.VolumeBounds(ctx, volume)
	if err != nil {
		return services.Wrap(services.ErrOperation, phase, "read volume bounds",
			"check that the volume is loaded", err)
	}
	roi, err := c.adapter.CreateROI(ctx, bounds)
	if err != nil {
		return services.Wrap(services.ErrOperation, phase, "create region of interest", "", err)
	}
	c.roi = roi
	c.roiCommitted = false
	c.croppedVolume = ""
	c.enterPhaseLocked(ctx, PhaseCropping)
	return nil
}

func (c *Controller) launchSegmentationLocked(ctx context.Context) error {
	params := scene.ThresholdParams{
		Low:  c.cfg.Thresholds.DefaultLow,
		High: c.cfg.Thresholds.DefaultHigh,
	}
	handle, err := c.adapter.RunSegmentation(ctx, c.croppedVolume, params)
	if err != nil {
		return services.Wrap(services.ErrOperation, string(c.session.Current().Phase),
			"launch segmentation", "retry the transition", err)
	}
	c.seg = SegmentationTask{
		Token:    c.mon.Attach(handle, monitor.KindSegmentation, c.segmentationTimeout()),
		Status:   TaskRunning,
		Attempts: c.seg.Attempts + 1,
	}
	return nil
}

func (c *Controller) launchCPRLocked(ctx context.Context, model, curve scene.NodeRef) error {
	handle, err := c.adapter.RunCPR(ctx, model, curve)
	if err != nil {
		return services.Wrap(services.ErrOperation, string(c.session.Current().Phase),
			"launch curved planar reconstruction", "retry the transition", err)
	}
	c.cpr = CPRTask{
		Token:  c.mon.Attach(handle, monitor.KindCPR, c.cprTimeout()),
		Status: TaskRunning,
	}
	return nil
}

// enterPhaseLocked commits a transition: persist the phase, journal it, apply
// the phase's view policy, and garbage-collect entities owned by the phase
// being left. View and panel commands are cosmetic; their failures downgrade
// to warnings and the transition still commits.
func (c *Controller) enterPhaseLocked(ctx context.Context, next Phase) {
	prev := c.session.Current().Phase
	c.session.setPhase(next)
	c.record(ctx, journal.EventPhaseEnter, string(next), "", "from="+string(prev))
	c.logger.Info("phase entered",
		logging.String(logging.FieldPhase, string(next)),
		logging.String("from", string(prev)),
		logging.String(logging.FieldEventType, "phase_enter"),
	)

	if policy, ok := policyFor(next); ok {
		if policy.hasView {
			if err := c.adapter.SetViewMode(ctx, policy.view); err != nil {
				c.logger.Warn("view command rejected",
					logging.String(logging.FieldPhase, string(next)),
					logging.Error(err),
				)
			}
			if policy.hasPanel {
				// The host applies view layout changes asynchronously;
				// give it a beat before touching the panel.
				if delay := c.cfg.SettleDelay(); delay > 0 {
					time.Sleep(delay)
				}
			}
		}
		if policy.hasPanel {
			if err := c.adapter.SetModulePanelVisible(ctx, policy.panelVisible); err != nil {
				c.logger.Warn("panel command rejected",
					logging.String(logging.FieldPhase, string(next)),
					logging.Error(err),
				)
			}
		}
	}

	if prev == PhaseCropping && next != PhaseRestartingCrop {
		c.releaseROILocked(ctx)
	}
}

// releaseROILocked deletes the current ROI node. A delete failure is a leak,
// not a stop: it is logged and orchestration continues.
func (c *Controller) releaseROILocked(ctx context.Context) {
	if c.roi == "" {
		return
	}
	if err := c.adapter.DeleteNode(ctx, c.roi); err != nil {
		c.logger.Warn("region of interest not released",
			logging.Error(services.Wrap(services.ErrLeakGuard, "", "delete roi", string(c.roi), err)),
		)
	}
	c.roi = ""
	c.roiCommitted = false
}
