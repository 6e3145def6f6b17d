package workflow

import (
	"context"
	"errors"
	"strconv"

	"vesselflow/internal/journal"
	"vesselflow/internal/logging"
	"vesselflow/internal/scene"
	"vesselflow/internal/services"
)

// RestartCropping abandons everything derived from the current crop —
// segmentation output, centerline jobs, lesion points, CPR volume — and
// returns the workflow to Cropping with a fresh full-volume region of
// interest. Reachable from any phase after Idle. Cleanup failures are leaks,
// not stops: they are logged, journaled, and the restart proceeds.
func (c *Controller) RestartCropping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.session.Current()
	if !c.session.Active() || snap.Phase == PhaseIdle {
		return services.Wrap(services.ErrNotReady, string(snap.Phase), "restart cropping",
			"no crop exists to restart", nil)
	}
	if snap.Phase == PhaseRestartingCrop {
		return services.Wrap(services.ErrNotReady, string(snap.Phase), "restart cropping",
			"a restart is already in progress", nil)
	}

	c.enterPhaseLocked(ctx, PhaseRestartingCrop)
	count := c.session.bumpRestart()
	c.record(ctx, journal.EventPhaseRestart, string(PhaseRestartingCrop), "",
		"restart_count="+strconv.Itoa(count))

	if err := c.cleanupDerivedLocked(ctx); err != nil {
		c.logger.Warn("restart left orphaned scene entities", logging.Error(err))
		c.record(ctx, journal.EventPhaseRestart, string(PhaseRestartingCrop), "",
			"leak: "+err.Error())
	}
	c.releaseROILocked(ctx)

	if err := c.enterCroppingLocked(ctx, snap.ActiveVolume); err != nil {
		// The derived state is already gone; surface the failure and stay
		// in RestartingCrop so the operator can retry.
		c.lastErr = err
		return err
	}
	return nil
}

// Reset tears the whole workflow back to Idle, releasing every scene entity
// and the case lock.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.Active() {
		return nil
	}
	leak := c.cleanupDerivedLocked(ctx)
	c.releaseROILocked(ctx)
	c.record(ctx, journal.EventSessionReset, string(c.session.Current().Phase), "", "")
	c.session.Reset()
	c.lastErr = nil
	return leak
}

// cleanupDerivedLocked cancels in-flight operations and deletes every scene
// entity derived from the committed crop. The ROI itself is left for the
// caller: a restart keeps no ROI, a reset releases it separately. Returns a
// joined leak-guard error for anything that would not release.
func (c *Controller) cleanupDerivedLocked(ctx context.Context) error {
	var leaks []error

	if c.seg.Token != "" {
		c.mon.Cancel(c.seg.Token)
	}
	if c.cpr.Token != "" {
		c.mon.Cancel(c.cpr.Token)
	}
	if err := c.lines.RemoveAll(ctx); err != nil {
		leaks = append(leaks, err)
	}
	c.lesions.Clear()

	for _, ref := range []scene.NodeRef{c.cpr.Result, c.seg.Result, c.croppedVolume} {
		if ref == "" {
			continue
		}
		if err := c.adapter.DeleteNode(ctx, ref); err != nil {
			leaks = append(leaks, services.Wrap(services.ErrLeakGuard, "", "delete node", string(ref), err))
		}
	}

	c.seg = SegmentationTask{}
	c.cpr = CPRTask{}
	c.croppedVolume = ""
	c.roiCommitted = false
	c.firstCenterline = false
	return errors.Join(leaks...)
}
