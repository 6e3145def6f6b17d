package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"vesselflow/internal/lesion"
	"vesselflow/internal/logging"
	"vesselflow/internal/monitor"
	"vesselflow/internal/scene"
	"vesselflow/internal/services"
	"vesselflow/internal/testsupport"
	"vesselflow/internal/workflow"
)

var vesselEndpoints = []scene.Point{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 80}}

func newController(t *testing.T, opts ...workflow.ControllerOption) (context.Context, *workflow.Controller, *scene.FakeHost) {
	t.Helper()
	cfg := testsupport.Config(t)
	host := scene.NewFakeHost("Volume_1")
	c := workflow.NewController(cfg, host, logging.NewNop(), opts...)
	ctx := context.Background()
	if _, err := c.StartSession(ctx, "Volume_1"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	t.Cleanup(func() { _ = c.Reset(context.Background()) })
	return ctx, c, host
}

func pump(ctx context.Context, c *workflow.Controller, cycles int) {
	for i := 0; i < cycles; i++ {
		c.PumpOnce(ctx)
	}
}

// toSegmenting walks a fresh controller through Cropping into Segmenting.
func toSegmenting(t *testing.T, ctx context.Context, c *workflow.Controller) {
	t.Helper()
	if err := c.Advance(ctx, workflow.TriggerOperator); err != nil {
		t.Fatalf("advance into cropping: %v", err)
	}
	if err := c.CommitROI(ctx); err != nil {
		t.Fatalf("CommitROI: %v", err)
	}
	if err := c.Advance(ctx, workflow.TriggerOperator); err != nil {
		t.Fatalf("advance into segmenting: %v", err)
	}
}

// toCenterline additionally waits out the segmentation run.
func toCenterline(t *testing.T, ctx context.Context, c *workflow.Controller) {
	t.Helper()
	toSegmenting(t, ctx, c)
	pump(ctx, c, 3)
	if got := c.CurrentPhase(); got != workflow.PhaseCenterline {
		t.Fatalf("phase after segmentation = %s, want centerline_extraction", got)
	}
}

func TestAdvanceRequiresSession(t *testing.T) {
	cfg := testsupport.Config(t)
	c := workflow.NewController(cfg, scene.NewFakeHost("Volume_1"), logging.NewNop())

	err := c.Advance(context.Background(), workflow.TriggerOperator)
	if !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("Advance without session = %v, want ErrNotReady", err)
	}
}

func TestCroppingEntryAppliesViewPolicy(t *testing.T) {
	ctx, c, host := newController(t)

	if err := c.Advance(ctx, workflow.TriggerOperator); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got := c.CurrentPhase(); got != workflow.PhaseCropping {
		t.Fatalf("phase = %s, want cropping", got)
	}
	views := host.ViewModeHistory()
	if len(views) == 0 || views[0] != scene.MultiPlanarThreeUp {
		t.Fatalf("cropping view commands = %v, want three-up first", views)
	}
	panels := host.PanelHistory()
	if len(panels) == 0 || panels[0] {
		t.Fatalf("cropping panel commands = %v, want collapsed first", panels)
	}
	if !host.HasNode("CropROI_1") {
		t.Fatal("entering cropping should create a full-volume ROI")
	}
}

func TestAdvanceBlockedWithoutCommittedROI(t *testing.T) {
	ctx, c, _ := newController(t)

	if err := c.Advance(ctx, workflow.TriggerOperator); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	err := c.Advance(ctx, workflow.TriggerOperator)
	if !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("Advance without commit = %v, want ErrNotReady", err)
	}
	if got := c.CurrentPhase(); got != workflow.PhaseCropping {
		t.Fatalf("failed advance moved phase to %s", got)
	}
}

func TestCommitAndEnterSegmenting(t *testing.T) {
	ctx, c, host := newController(t)
	toSegmenting(t, ctx, c)

	if !host.HasNode("Volume_1_cropped") {
		t.Fatal("commit should have produced a cropped volume")
	}
	if host.HasNode("CropROI_1") {
		t.Fatal("ROI must be garbage-collected on leaving cropping")
	}
	if got := c.Summary().Segmentation.Status; got != workflow.TaskRunning {
		t.Fatalf("segmentation status = %s, want running", got)
	}
}

func TestSegmentationCompletionAdvances(t *testing.T) {
	ctx, c, host := newController(t)
	toSegmenting(t, ctx, c)

	pump(ctx, c, 2)
	if got := c.CurrentPhase(); got != workflow.PhaseSegmenting {
		t.Fatalf("advanced before the artifact stabilized, phase = %s", got)
	}
	pump(ctx, c, 1)
	summary := c.Summary()
	if summary.Phase != workflow.PhaseCenterline {
		t.Fatalf("phase = %s, want centerline_extraction", summary.Phase)
	}
	if summary.Segmentation.Status != workflow.TaskSucceeded {
		t.Fatalf("segmentation status = %s", summary.Segmentation.Status)
	}
	if summary.Segmentation.Result != "Segmentation_1" {
		t.Fatalf("segmentation result = %s", summary.Segmentation.Result)
	}
	panels := host.PanelHistory()
	if !panels[len(panels)-1] {
		t.Fatal("centerline extraction should expand the module panel")
	}
}

func TestCropFailureBlocksCommit(t *testing.T) {
	ctx, c, host := newController(t)
	if err := c.Advance(ctx, workflow.TriggerOperator); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	host.FailCrop(true)
	if err := c.CommitROI(ctx); !errors.Is(err, services.ErrOperation) {
		t.Fatalf("CommitROI with failing crop = %v, want ErrOperation", err)
	}
	if err := c.Advance(ctx, workflow.TriggerOperator); !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("Advance after failed commit = %v, want ErrNotReady", err)
	}

	host.FailCrop(false)
	if err := c.CommitROI(ctx); err != nil {
		t.Fatalf("CommitROI after recovery: %v", err)
	}
}

func TestSegmentationLaunchFailureKeepsPhase(t *testing.T) {
	ctx, c, host := newController(t)
	if err := c.Advance(ctx, workflow.TriggerOperator); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := c.CommitROI(ctx); err != nil {
		t.Fatalf("CommitROI: %v", err)
	}

	host.FailLaunch(scene.OpSegmentation, "no solver available")
	if err := c.Advance(ctx, workflow.TriggerOperator); !errors.Is(err, services.ErrOperation) {
		t.Fatalf("Advance with failing launch = %v, want ErrOperation", err)
	}
	if got := c.CurrentPhase(); got != workflow.PhaseCropping {
		t.Fatalf("failed launch moved phase to %s", got)
	}

	host.FailLaunch(scene.OpSegmentation, "")
	if err := c.Advance(ctx, workflow.TriggerOperator); err != nil {
		t.Fatalf("Advance after recovery: %v", err)
	}
	if got := c.CurrentPhase(); got != workflow.PhaseSegmenting {
		t.Fatalf("phase = %s, want segmenting", got)
	}
}

func TestViewCommandFailureIsNonFatal(t *testing.T) {
	ctx, c, host := newController(t)
	host.FailViewCommands(true)

	if err := c.Advance(ctx, workflow.TriggerOperator); err != nil {
		t.Fatalf("Advance with failing view commands = %v, want nil", err)
	}
	if got := c.CurrentPhase(); got != workflow.PhaseCropping {
		t.Fatalf("phase = %s, want cropping", got)
	}
}

func TestSegmentationTimeoutSurfacedWithoutAdvance(t *testing.T) {
	base := time.Now()
	var offset time.Duration
	clock := func() time.Time { return base.Add(offset) }

	ctx, c, host := newController(t, workflow.WithMonitorOptions(monitor.WithClock(clock)))
	host.SetNeverCompletes(scene.OpSegmentation, true)
	toSegmenting(t, ctx, c)

	pump(ctx, c, 1)
	if got := c.Summary().Segmentation.Status; got != workflow.TaskRunning {
		t.Fatalf("segmentation status before timeout = %s", got)
	}

	offset = 121 * time.Second
	pump(ctx, c, 1)
	summary := c.Summary()
	if summary.Segmentation.Status != workflow.TaskTimedOut {
		t.Fatalf("segmentation status = %s, want timed_out", summary.Segmentation.Status)
	}
	if summary.Phase != workflow.PhaseSegmenting {
		t.Fatalf("timeout advanced phase to %s", summary.Phase)
	}
	if err := c.LastError(); !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("LastError = %v, want ErrTimeout", err)
	}
	if err := c.Advance(ctx, workflow.TriggerOperator); !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("Advance after timeout = %v, want ErrNotReady", err)
	}

	if err := c.ExtendSegmentationWait(time.Hour); err != nil {
		t.Fatalf("ExtendSegmentationWait: %v", err)
	}
	pump(ctx, c, 1)
	if got := c.Summary().Segmentation.Status; got != workflow.TaskRunning {
		t.Fatalf("segmentation status after extend = %s, want running", got)
	}
}

func TestRetrySegmentationAfterFailure(t *testing.T) {
	ctx, c, host := newController(t)
	host.FailNextOperation(scene.OpSegmentation, "solver crashed")
	toSegmenting(t, ctx, c)

	pump(ctx, c, 1)
	summary := c.Summary()
	if summary.Segmentation.Status != workflow.TaskFailed {
		t.Fatalf("segmentation status = %s, want failed", summary.Segmentation.Status)
	}
	if err := c.LastError(); !errors.Is(err, services.ErrOperation) {
		t.Fatalf("LastError = %v, want ErrOperation", err)
	}

	if err := c.RetrySegmentation(ctx); err != nil {
		t.Fatalf("RetrySegmentation: %v", err)
	}
	pump(ctx, c, 3)
	summary = c.Summary()
	if summary.Phase != workflow.PhaseCenterline {
		t.Fatalf("phase after retry = %s", summary.Phase)
	}
	if summary.Segmentation.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", summary.Segmentation.Attempts)
	}
}

func TestFirstCenterlineTriggersAnalysis(t *testing.T) {
	ctx, c, host := newController(t)
	toCenterline(t, ctx, c)

	segment := c.Summary().Segmentation.Result
	id, err := c.AddCenterlineJob(1, vesselEndpoints, segment)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := c.StartCenterlineJob(ctx, id); err != nil {
		t.Fatalf("StartCenterlineJob: %v", err)
	}

	pump(ctx, c, 3)
	summary := c.Summary()
	if summary.Phase != workflow.PhaseAnalysis {
		t.Fatalf("phase after first centerline = %s, want analysis", summary.Phase)
	}
	if summary.CPR.Status != workflow.TaskRunning {
		t.Fatalf("CPR status = %s, want running", summary.CPR.Status)
	}
	views := host.ViewModeHistory()
	if views[len(views)-1] != scene.ThreeDOnly {
		t.Fatal("analysis should switch to the 3D-only view")
	}

	pump(ctx, c, 3)
	if got := c.Summary().CPR.Status; got != workflow.TaskSucceeded {
		t.Fatalf("CPR status = %s, want succeeded", got)
	}
}

func TestAnalysisGateLesionPointOrSkip(t *testing.T) {
	ctx, c, _ := newController(t)
	toCenterline(t, ctx, c)

	id, err := c.AddCenterlineJob(1, vesselEndpoints, c.Summary().Segmentation.Result)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := c.StartCenterlineJob(ctx, id); err != nil {
		t.Fatalf("StartCenterlineJob: %v", err)
	}
	pump(ctx, c, 6)

	if err := c.Advance(ctx, workflow.TriggerOperator); !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("Advance without lesion point = %v, want ErrNotReady", err)
	}

	samples := []lesion.Sample{
		{Position: r3.Vec{X: 0, Y: 0, Z: 0}, RadiusMm: 4},
		{Position: r3.Vec{X: 0, Y: 0, Z: 80}, RadiusMm: 4},
	}
	if _, err := c.PlaceLesionPoint(id, samples, r3.Vec{X: 0, Y: 0, Z: 40}); err != nil {
		t.Fatalf("PlaceLesionPoint: %v", err)
	}
	if err := c.Advance(ctx, workflow.TriggerOperator); err != nil {
		t.Fatalf("Advance with lesion point: %v", err)
	}
	if got := c.CurrentPhase(); got != workflow.PhaseComplete {
		t.Fatalf("phase = %s, want complete", got)
	}
	if err := c.Advance(ctx, workflow.TriggerOperator); !errors.Is(err, services.ErrAlreadyComplete) {
		t.Fatalf("Advance past complete = %v, want ErrAlreadyComplete", err)
	}
}

func TestAnalysisSkipTrigger(t *testing.T) {
	ctx, c, _ := newController(t)
	toCenterline(t, ctx, c)

	id, err := c.AddCenterlineJob(1, vesselEndpoints, c.Summary().Segmentation.Result)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := c.StartCenterlineJob(ctx, id); err != nil {
		t.Fatalf("StartCenterlineJob: %v", err)
	}
	pump(ctx, c, 6)

	if err := c.Advance(ctx, workflow.TriggerSkip); err != nil {
		t.Fatalf("skip advance: %v", err)
	}
	if got := c.CurrentPhase(); got != workflow.PhaseComplete {
		t.Fatalf("phase = %s, want complete", got)
	}
}

func TestCenterlineJobsGatedToExtractionPhases(t *testing.T) {
	ctx, c, _ := newController(t)
	toSegmenting(t, ctx, c)

	_, err := c.AddCenterlineJob(1, vesselEndpoints, "Segmentation_1")
	if !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("AddCenterlineJob during segmenting = %v, want ErrNotReady", err)
	}
	if err := c.StartCenterlineJob(ctx, "job"); !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("StartCenterlineJob during segmenting = %v, want ErrNotReady", err)
	}
}

func TestLesionPlacementOnlyDuringAnalysis(t *testing.T) {
	ctx, c, _ := newController(t)
	toCenterline(t, ctx, c)

	samples := []lesion.Sample{
		{Position: r3.Vec{X: 0, Y: 0, Z: 0}, RadiusMm: 4},
		{Position: r3.Vec{X: 0, Y: 0, Z: 80}, RadiusMm: 4},
	}
	_, err := c.PlaceLesionPoint("job", samples, r3.Vec{})
	if !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("PlaceLesionPoint outside analysis = %v, want ErrNotReady", err)
	}
}

func TestRestartCroppingLeavesNoOrphans(t *testing.T) {
	ctx, c, host := newController(t)
	toCenterline(t, ctx, c)

	id, err := c.AddCenterlineJob(1, vesselEndpoints, c.Summary().Segmentation.Result)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := c.StartCenterlineJob(ctx, id); err != nil {
		t.Fatalf("StartCenterlineJob: %v", err)
	}
	pump(ctx, c, 6)
	if got := c.CurrentPhase(); got != workflow.PhaseAnalysis {
		t.Fatalf("setup phase = %s, want analysis", got)
	}

	if err := c.RestartCropping(ctx); err != nil {
		t.Fatalf("RestartCropping: %v", err)
	}
	summary := c.Summary()
	if summary.Phase != workflow.PhaseCropping {
		t.Fatalf("phase after restart = %s, want cropping", summary.Phase)
	}
	if summary.RestartCount != 1 {
		t.Fatalf("restart count = %d, want 1", summary.RestartCount)
	}
	if summary.Segmentation.Status != workflow.TaskIdle || summary.CPR.Status != workflow.TaskIdle {
		t.Fatalf("tasks not reset: seg=%s cpr=%s", summary.Segmentation.Status, summary.CPR.Status)
	}
	if len(summary.Jobs) != 0 {
		t.Fatalf("centerline jobs survived restart: %d", len(summary.Jobs))
	}
	if summary.LesionPoints != 0 {
		t.Fatalf("lesion points survived restart: %d", summary.LesionPoints)
	}
	// Only the source volume and the fresh ROI may remain.
	if got := host.NodeCount(); got != 2 {
		t.Fatalf("scene node count after restart = %d, want 2", got)
	}
	if !host.HasNode("Volume_1") || !host.HasNode("CropROI_2") {
		t.Fatal("restart should keep the source volume and create a fresh ROI")
	}
}

func TestRestartFromCroppingReplacesROI(t *testing.T) {
	ctx, c, host := newController(t)
	if err := c.Advance(ctx, workflow.TriggerOperator); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if err := c.RestartCropping(ctx); err != nil {
		t.Fatalf("RestartCropping: %v", err)
	}
	if host.HasNode("CropROI_1") {
		t.Fatal("old ROI survived the restart")
	}
	if !host.HasNode("CropROI_2") {
		t.Fatal("restart did not create a fresh ROI")
	}
	if err := c.Advance(ctx, workflow.TriggerOperator); !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("new ROI should be uncommitted, Advance = %v", err)
	}
}

func TestRestartRequiresStartedWorkflow(t *testing.T) {
	ctx, c, _ := newController(t)
	if err := c.RestartCropping(ctx); !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("RestartCropping while idle = %v, want ErrNotReady", err)
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	ctx, c, host := newController(t)
	toSegmenting(t, ctx, c)

	if err := c.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if c.Session().Active() {
		t.Fatal("session still active after Reset")
	}
	if got := c.CurrentPhase(); got != workflow.PhaseIdle {
		t.Fatalf("phase after reset = %s, want idle", got)
	}
	if got := host.NodeCount(); got != 1 {
		t.Fatalf("scene node count after reset = %d, want just the volume", got)
	}
}
