package monitor_test

import (
	"context"
	"testing"
	"time"

	"vesselflow/internal/logging"
	"vesselflow/internal/monitor"
	"vesselflow/internal/scene"
)

func newMonitored(t *testing.T, opts ...monitor.Option) (*scene.FakeHost, *monitor.Monitor) {
	t.Helper()
	host := scene.NewFakeHost("Volume_1")
	return host, monitor.New(host, logging.NewNop(), opts...)
}

func launchSegmentation(t *testing.T, host *scene.FakeHost) scene.OperationHandle {
	t.Helper()
	handle, err := host.RunSegmentation(context.Background(), "Volume_1", scene.ThresholdParams{Low: 200, High: 600})
	if err != nil {
		t.Fatalf("RunSegmentation failed: %v", err)
	}
	return handle
}

func TestPollDebouncesFirstAppearance(t *testing.T) {
	ctx := context.Background()
	host, mon := newMonitored(t)
	host.SetAppearAfter(scene.OpSegmentation, 0)
	host.SetChurn(scene.OpSegmentation, 0)

	token := mon.Attach(launchSegmentation(t, host), monitor.KindSegmentation, time.Minute)

	// First poll sees the artifact appear; that alone must not count.
	status, err := mon.Poll(ctx, token)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if status.State != monitor.StatePending {
		t.Fatalf("first-appearance poll must stay pending, got %s", status.State)
	}

	// Second poll sees the same revision: stable, so succeeded.
	status, err = mon.Poll(ctx, token)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if status.State != monitor.StateSucceeded {
		t.Fatalf("expected success on stable second poll, got %s", status.State)
	}
	if status.Result == "" {
		t.Fatal("succeeded status must carry the result ref")
	}
}

func TestPollWaitsOutRevisionChurn(t *testing.T) {
	ctx := context.Background()
	host, mon := newMonitored(t)
	host.SetAppearAfter(scene.OpSegmentation, 0)
	host.SetChurn(scene.OpSegmentation, 3)

	token := mon.Attach(launchSegmentation(t, host), monitor.KindSegmentation, time.Minute)

	// Revision changes on each of the churn polls; none may succeed.
	for i := 0; i < 3; i++ {
		status, err := mon.Poll(ctx, token)
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if status.State != monitor.StatePending {
			t.Fatalf("poll %d: expected pending while churning, got %s", i+1, status.State)
		}
	}
	status, err := mon.Poll(ctx, token)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if status.State != monitor.StateSucceeded {
		t.Fatalf("expected success once revision settled, got %s", status.State)
	}
}

func TestPollTimesOutWithoutArtifact(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	host := scene.NewFakeHost("Volume_1")
	host.SetNeverCompletes(scene.OpSegmentation, true)
	mon := monitor.New(host, logging.NewNop(), monitor.WithClock(func() time.Time { return now }))

	token := mon.Attach(launchSegmentation(t, host), monitor.KindSegmentation, 120*time.Second)

	if status, err := mon.Poll(ctx, token); err != nil || status.State != monitor.StatePending {
		t.Fatalf("expected pending before timeout, got %v (%v)", status.State, err)
	}

	now = now.Add(121 * time.Second)
	status, err := mon.Poll(ctx, token)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if status.State != monitor.StateTimedOut {
		t.Fatalf("expected timeout, got %s", status.State)
	}

	// Extend keeps the token alive and returns to pending.
	if err := mon.Extend(token, 5*time.Minute); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	status, err = mon.Poll(ctx, token)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if status.State != monitor.StatePending {
		t.Fatalf("expected pending after extend, got %s", status.State)
	}
}

func TestFailureLatches(t *testing.T) {
	ctx := context.Background()
	host, mon := newMonitored(t)
	host.FailNextOperation(scene.OpSegmentation, "host crashed")

	token := mon.Attach(launchSegmentation(t, host), monitor.KindSegmentation, time.Minute)

	for i := 0; i < 3; i++ {
		status, err := mon.Poll(ctx, token)
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if status.State != monitor.StateFailed {
			t.Fatalf("poll %d: expected latched failure, got %s", i+1, status.State)
		}
		if status.Reason != "host crashed" {
			t.Fatalf("expected failure reason, got %q", status.Reason)
		}
	}
}

func TestDataFloorGuardsCompletion(t *testing.T) {
	ctx := context.Background()
	host := scene.NewFakeHost("Volume_1")
	host.SetAppearAfter(scene.OpCenterline, 0)
	host.SetChurn(scene.OpCenterline, 0)
	host.SetPointCount(scene.OpCenterline, 4) // endpoint markers only, not a centerline
	host.SetCurvePointCount(scene.OpCenterline, 2)
	mon := monitor.New(host, logging.NewNop())

	handle, err := host.RunCenterlineExtraction(ctx, "Volume_1", []scene.Point{{X: 1}, {X: 2}})
	if err != nil {
		t.Fatalf("RunCenterlineExtraction failed: %v", err)
	}
	token := mon.Attach(handle, monitor.KindCenterline, time.Minute)

	for i := 0; i < 3; i++ {
		status, err := mon.Poll(ctx, token)
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		if status.State != monitor.StatePending {
			t.Fatalf("undersized artifact must not complete, got %s", status.State)
		}
	}
}

func TestCurveFloorCompletesSparseModel(t *testing.T) {
	ctx := context.Background()
	host := scene.NewFakeHost("Volume_1")
	host.SetAppearAfter(scene.OpCenterline, 0)
	host.SetChurn(scene.OpCenterline, 0)
	host.SetPointCount(scene.OpCenterline, 4)
	host.SetCurvePointCount(scene.OpCenterline, 6)
	mon := monitor.New(host, logging.NewNop())

	handle, err := host.RunCenterlineExtraction(ctx, "Volume_1", []scene.Point{{X: 1}, {X: 2}})
	if err != nil {
		t.Fatalf("RunCenterlineExtraction failed: %v", err)
	}
	token := mon.Attach(handle, monitor.KindCenterline, time.Minute)

	// The curve holds its control points before the model densifies; either
	// output reaching its floor completes the extraction.
	mon.Poll(ctx, token)
	status, err := mon.Poll(ctx, token)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if status.State != monitor.StateSucceeded {
		t.Fatalf("curve at floor should complete, got %s", status.State)
	}
	if status.Curve == "" {
		t.Fatal("succeeded status must carry the curve ref")
	}
}

func TestCancelDetaches(t *testing.T) {
	ctx := context.Background()
	host, mon := newMonitored(t)
	token := mon.Attach(launchSegmentation(t, host), monitor.KindSegmentation, time.Minute)

	mon.Cancel(token)
	if _, err := mon.Poll(ctx, token); err == nil {
		t.Fatal("polling a cancelled token must error")
	}
	if mon.Active() != 0 {
		t.Fatalf("expected zero active watches, got %d", mon.Active())
	}
}

func TestConcurrentTokensIndependent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	host := scene.NewFakeHost("Volume_1")
	mon := monitor.New(host, logging.NewNop(), monitor.WithClock(func() time.Time { return now }))

	host.SetAppearAfter(scene.OpSegmentation, 0)
	host.SetChurn(scene.OpSegmentation, 0)
	fast := mon.Attach(launchSegmentation(t, host), monitor.KindSegmentation, time.Minute)

	host.SetNeverCompletes(scene.OpSegmentation, true)
	slow := mon.Attach(launchSegmentation(t, host), monitor.KindSegmentation, 10*time.Second)

	mon.Poll(ctx, fast)
	status, err := mon.Poll(ctx, fast)
	if err != nil || status.State != monitor.StateSucceeded {
		t.Fatalf("fast token should succeed, got %v (%v)", status.State, err)
	}

	now = now.Add(11 * time.Second)
	status, err = mon.Poll(ctx, slow)
	if err != nil || status.State != monitor.StateTimedOut {
		t.Fatalf("slow token should time out independently, got %v (%v)", status.State, err)
	}
	// The fast token stays latched regardless of the slow token's clock.
	status, _ = mon.Poll(ctx, fast)
	if status.State != monitor.StateSucceeded {
		t.Fatalf("latched success must persist, got %s", status.State)
	}
}
