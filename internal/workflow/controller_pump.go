package workflow

import (
	"context"
	"time"

	"vesselflow/internal/journal"
	"vesselflow/internal/logging"
	"vesselflow/internal/monitor"
	"vesselflow/internal/services"
)

// PumpOnce runs one poll cycle: it inspects whichever monitored operation the
// current phase owns, reacts to completions, and drives automatic
// transitions (segmentation done, first centerline done). It never blocks on
// the host; a transient poll error is kept for the next cycle.
func (c *Controller) PumpOnce(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.session.Current().Phase {
	case PhaseSegmenting:
		c.pumpSegmentationLocked(ctx)
	case PhaseCenterline:
		c.lines.PumpOnce(ctx)
		if c.firstCenterline {
			c.firstCenterline = false
			if err := c.advanceLocked(ctx, TriggerFirstCenterline); err != nil {
				c.lastErr = err
				c.logger.Warn("automatic advance after first centerline failed", logging.Error(err))
			}
		}
	case PhaseAnalysis:
		// Centerlines added after the first success keep running while the
		// operator analyzes.
		c.lines.PumpOnce(ctx)
		c.pumpCPRLocked(ctx)
	}
}

func (c *Controller) pumpSegmentationLocked(ctx context.Context) {
	if c.seg.Status != TaskRunning {
		return
	}
	status, err := c.mon.Poll(ctx, c.seg.Token)
	if err != nil {
		c.logger.Warn("segmentation poll failed", logging.Error(err))
		return
	}
	switch status.State {
	case monitor.StatePending:
		return
	case monitor.StateSucceeded:
		c.seg.Status = TaskSucceeded
		c.seg.Result = status.Result
		c.record(ctx, journal.EventOperationDone, string(PhaseSegmenting), "",
			"segmentation result="+string(status.Result))
		c.logger.Info("segmentation completed",
			logging.String("result", string(status.Result)),
			logging.Duration("elapsed", status.Elapsed),
		)
		if err := c.advanceLocked(ctx, TriggerOperator); err != nil {
			c.lastErr = err
			c.logger.Warn("automatic advance after segmentation failed", logging.Error(err))
		}
	case monitor.StateFailed:
		c.seg.Status = TaskFailed
		c.seg.Reason = status.Reason
		c.lastErr = services.Wrap(services.ErrOperation, string(PhaseSegmenting), "segmentation",
			"retry segmentation or restart cropping", nil)
		c.record(ctx, journal.EventJobStatus, string(PhaseSegmenting), "",
			"segmentation failed: "+status.Reason)
		c.logger.Warn("segmentation failed", logging.String("reason", status.Reason))
	case monitor.StateTimedOut:
		c.seg.Status = TaskTimedOut
		c.seg.Reason = status.Reason
		c.lastErr = services.Wrap(services.ErrTimeout, string(PhaseSegmenting), "segmentation",
			"extend the wait, retry, or restart cropping", nil)
		c.record(ctx, journal.EventTimeout, string(PhaseSegmenting), "", status.Reason)
		c.logger.Warn("segmentation timed out",
			logging.Duration("elapsed", status.Elapsed),
			logging.String(logging.FieldErrorHint, "extend, retry, or restart"),
		)
	}
}

func (c *Controller) pumpCPRLocked(ctx context.Context) {
	if c.cpr.Status != TaskRunning {
		return
	}
	status, err := c.mon.Poll(ctx, c.cpr.Token)
	if err != nil {
		c.logger.Warn("reconstruction poll failed", logging.Error(err))
		return
	}
	switch status.State {
	case monitor.StateSucceeded:
		c.cpr.Status = TaskSucceeded
		c.cpr.Result = status.Result
		c.record(ctx, journal.EventOperationDone, string(PhaseAnalysis), "",
			"cpr result="+string(status.Result))
		c.logger.Info("reconstruction completed", logging.String("result", string(status.Result)))
	case monitor.StateFailed:
		c.cpr.Status = TaskFailed
		c.cpr.Reason = status.Reason
		c.lastErr = services.Wrap(services.ErrOperation, string(PhaseAnalysis),
			"curved planar reconstruction", "restart cropping to retry", nil)
		c.logger.Warn("reconstruction failed", logging.String("reason", status.Reason))
	case monitor.StateTimedOut:
		c.cpr.Status = TaskTimedOut
		c.cpr.Reason = status.Reason
		c.lastErr = services.Wrap(services.ErrTimeout, string(PhaseAnalysis),
			"curved planar reconstruction", "extend the wait or restart cropping", nil)
		c.record(ctx, journal.EventTimeout, string(PhaseAnalysis), "", status.Reason)
		c.logger.Warn("reconstruction timed out", logging.Duration("elapsed", status.Elapsed))
	}
}

// RetrySegmentation relaunches a failed or timed-out segmentation on the
// same cropped volume.
func (c *Controller) RetrySegmentation(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.session.Current()
	if snap.Phase != PhaseSegmenting {
		return services.Wrap(services.ErrNotReady, string(snap.Phase), "retry segmentation",
			"segmenting is not the active phase", nil)
	}
	if c.seg.Status == TaskRunning || c.seg.Status == TaskSucceeded {
		return services.Wrap(services.ErrNotReady, string(snap.Phase), "retry segmentation",
			"segmentation is not in a retryable state", nil)
	}
	c.mon.Cancel(c.seg.Token)
	c.lastErr = nil
	return c.launchSegmentationLocked(ctx)
}

// ExtendSegmentationWait grants a timed-out segmentation more time. The next
// pump cycle resumes observing it.
func (c *Controller) ExtendSegmentationWait(extra time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seg.Status != TaskTimedOut {
		return services.Wrap(services.ErrNotReady, string(c.session.Current().Phase),
			"extend segmentation wait", "segmentation has not timed out", nil)
	}
	if err := c.mon.Extend(c.seg.Token, extra); err != nil {
		return err
	}
	c.seg.Status = TaskRunning
	c.seg.Reason = ""
	c.lastErr = nil
	return nil
}
