package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vesselflow/internal/config"
	"vesselflow/internal/logging"
	"vesselflow/internal/services"
)

// Runner drives the controller's poll loop on a background goroutine. All
// reaction to host operations happens inside PumpOnce on that single
// goroutine; operator commands interleave through the controller's mutex.
type Runner struct {
	controller    *Controller
	interval      time.Duration
	retryInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner wraps a controller with a poll loop at the configured cadence.
// While a blocking error is pending operator action the loop slows to the
// error retry interval.
func NewRunner(cfg *config.Config, controller *Controller, logger *slog.Logger) *Runner {
	return &Runner{
		controller:    controller,
		interval:      cfg.PollInterval(),
		retryInterval: cfg.ErrorRetryInterval(),
		logger:        logging.NewComponentLogger(logger, "workflow-runner"),
	}
}

// Start launches the poll loop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return services.Wrap(services.ErrBusy, "", "start runner", "poll loop already running", nil)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	go r.loop(loopCtx)
	r.logger.Info("poll loop started", logging.Duration("interval", r.interval))
	return nil
}

// Stop halts the poll loop and waits for the in-flight cycle to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.logger.Info("poll loop stopped")
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	r.controller.PumpOnce(ctx)

	timer := time.NewTimer(r.delay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.controller.PumpOnce(ctx)
			timer.Reset(r.delay())
		}
	}
}

// delay picks the next poll wait. Once a blocking error is latched the
// workflow cannot progress without an operator command, so polling slows to
// the retry cadence until the error clears.
func (r *Runner) delay() time.Duration {
	if r.retryInterval > 0 && services.Blocking(r.controller.LastError()) {
		return r.retryInterval
	}
	return r.interval
}
