package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"vesselflow/internal/centerline"
	"vesselflow/internal/config"
	"vesselflow/internal/journal"
	"vesselflow/internal/lesion"
	"vesselflow/internal/logging"
	"vesselflow/internal/scene"
	"vesselflow/internal/services"
	"vesselflow/internal/workflow"
)

func newRunCommand(cmdCtx *commandContext) *cobra.Command {
	var vessels int
	var volume string
	var skipLesion bool
	var failFirstSeg bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Walk a simulated analysis case through every workflow phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Dir:    cfg.Paths.LogDir,
			})
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			diary, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer diary.Close()

			return runSimulation(cmd.Context(), simulationParams{
				cfg:          cfg,
				logger:       logger,
				diary:        diary,
				out:          cmd.OutOrStdout(),
				volume:       scene.NodeRef(volume),
				vessels:      vessels,
				interval:     cfg.PollInterval(),
				skipLesion:   skipLesion,
				failFirstSeg: failFirstSeg,
			})
		},
	}

	cmd.Flags().IntVar(&vessels, "vessels", 1, "Number of vessel centerlines to extract")
	cmd.Flags().StringVar(&volume, "volume", "Volume_1", "Name of the simulated source volume")
	cmd.Flags().BoolVar(&skipLesion, "skip-lesion", false, "Finish without placing a lesion point")
	cmd.Flags().BoolVar(&failFirstSeg, "fail-first-segmentation", false,
		"Make the first segmentation run fail, then exercise the retry path")
	return cmd
}

type simulationParams struct {
	cfg          *config.Config
	logger       *slog.Logger
	diary        *journal.Journal
	out          io.Writer
	volume       scene.NodeRef
	vessels      int
	interval     time.Duration
	skipLesion   bool
	failFirstSeg bool
}

// runSimulation drives a complete workflow against the in-memory fake host.
// It exercises the same orchestration path a live host integration uses; only
// the adapter differs.
func runSimulation(ctx context.Context, p simulationParams) error {
	if p.vessels < 1 {
		p.vessels = 1
	}
	colorize := shouldColorize(p.out)
	say := func(label string, kind statusKind, format string, args ...any) {
		fmt.Fprintln(p.out, renderStatusLine(label, kind, fmt.Sprintf(format, args...), colorize))
	}
	for _, line := range renderSectionHeader("vesselflow simulated run", colorize) {
		fmt.Fprintln(p.out, line)
	}

	host := scene.NewFakeHost(p.volume)
	controller := workflow.NewController(p.cfg, host, p.logger, workflow.WithJournal(p.diary))
	defer controller.Reset(context.Background())

	sessionID, err := controller.StartSession(ctx, p.volume)
	if err != nil {
		return err
	}
	say("session", statusOK, "%s", sessionID)

	if err := controller.Advance(ctx, workflow.TriggerOperator); err != nil {
		return err
	}
	say("cropping", statusInfo, "region of interest spans the full volume")
	if err := controller.CommitROI(ctx); err != nil {
		return err
	}
	if p.failFirstSeg {
		host.FailNextOperation(scene.OpSegmentation, "injected failure")
	}
	if err := controller.Advance(ctx, workflow.TriggerOperator); err != nil {
		return err
	}
	say("segmentation", statusInfo, "threshold run launched")

	if p.failFirstSeg {
		err := pumpUntil(ctx, controller, p.interval, func() bool {
			return controller.CurrentPhase() == workflow.PhaseCenterline
		})
		if !errors.Is(err, services.ErrOperation) {
			return fmt.Errorf("expected injected segmentation failure, got: %w", err)
		}
		say("segmentation", statusWarn, "failed, retrying")
		if err := controller.RetrySegmentation(ctx); err != nil {
			return err
		}
	}

	if err := pumpUntil(ctx, controller, p.interval, func() bool {
		return controller.CurrentPhase() == workflow.PhaseCenterline
	}); err != nil {
		return err
	}
	say("segmentation", statusOK, "%s", controller.Summary().Segmentation.Result)

	jobs, err := queueVessels(controller, p.vessels)
	if err != nil {
		return err
	}
	for i, id := range jobs {
		if err := controller.StartCenterlineJob(ctx, id); err != nil {
			return err
		}
		if err := pumpUntil(ctx, controller, p.interval, func() bool {
			return jobTerminal(controller, id)
		}); err != nil {
			return err
		}
		say("centerline", statusOK, "vessel %d extracted", i+1)
	}

	if err := pumpUntil(ctx, controller, p.interval, func() bool {
		summary := controller.Summary()
		return summary.Phase == workflow.PhaseAnalysis && summary.CPR.Status.Terminal()
	}); err != nil {
		return err
	}
	summary := controller.Summary()
	if summary.CPR.Status != workflow.TaskSucceeded {
		return services.Wrap(services.ErrOperation, string(summary.Phase),
			"curved planar reconstruction", summary.CPR.Reason, nil)
	}
	say("reconstruction", statusOK, "%s", summary.CPR.Result)

	trigger := workflow.TriggerOperator
	if p.skipLesion {
		trigger = workflow.TriggerSkip
		say("lesion", statusWarn, "skipped by request")
	} else {
		ratio, err := placeSyntheticLesion(controller, jobs[0])
		if err != nil {
			return err
		}
		say("lesion", statusOK, "%d point(s) placed, %.0f%% diameter reduction",
			controller.Lesions().Count(), ratio)
	}
	if err := controller.Advance(ctx, trigger); err != nil {
		return err
	}
	say("workflow", statusOK, "complete after %d restart(s)", controller.Summary().RestartCount)

	fmt.Fprintln(p.out, renderJobTable(controller.Summary().Jobs))
	return nil
}

// pumpUntil drives poll cycles until done reports true, a blocking error
// surfaces, or maxCycles passes without progress.
func pumpUntil(ctx context.Context, c *workflow.Controller, interval time.Duration, done func() bool) error {
	const maxCycles = 600
	for i := 0; i < maxCycles; i++ {
		if done() {
			return nil
		}
		c.PumpOnce(ctx)
		if err := c.LastError(); services.Blocking(err) {
			return err
		}
		if done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return services.Wrap(services.ErrTimeout, string(c.CurrentPhase()), "simulation",
		"workflow made no progress", nil)
}

func queueVessels(c *workflow.Controller, vessels int) ([]centerline.JobID, error) {
	segment := c.Summary().Segmentation.Result
	ids := make([]centerline.JobID, 0, vessels)
	for i := 1; i <= vessels; i++ {
		endpoints := []scene.Point{
			{X: float64(10 * i), Y: 0, Z: 0},
			{X: float64(10 * i), Y: 0, Z: 80},
		}
		id, err := c.AddCenterlineJob(i, endpoints, segment)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func jobTerminal(c *workflow.Controller, id centerline.JobID) bool {
	for _, job := range c.Summary().Jobs {
		if job.ID == id {
			return job.Status.Terminal()
		}
	}
	return false
}

// placeSyntheticLesion drops a reference point near the vessel origin and a
// measurement point at the synthetic narrowing, then returns the stenosis
// ratio between them.
func placeSyntheticLesion(c *workflow.Controller, id centerline.JobID) (float64, error) {
	samples := []lesion.Sample{
		{Position: r3.Vec{X: 0, Y: 0, Z: 0}, RadiusMm: 4},
		{Position: r3.Vec{X: 0, Y: 0, Z: 40}, RadiusMm: 1.5},
		{Position: r3.Vec{X: 0, Y: 0, Z: 80}, RadiusMm: 4},
	}
	reference, err := c.PlaceLesionPoint(id, samples, r3.Vec{X: 0, Y: 0, Z: 4})
	if err != nil {
		return 0, err
	}
	narrowed, err := c.PlaceLesionPoint(id, samples, r3.Vec{X: 0, Y: 0, Z: 40})
	if err != nil {
		return 0, err
	}
	return lesion.StenosisRatio(reference, narrowed)
}

func renderJobTable(jobs []centerline.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", job.VesselIndex),
			string(job.Status),
			string(job.ResultModel),
			string(job.ResultCurve),
		})
	}
	return renderTable([]string{"Vessel", "Status", "Model", "Curve"}, rows, 0)
}
