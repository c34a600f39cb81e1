package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/buildsync/bridge/platform"
	"github.com/buildsync/bridge/runner"
)

func TestCancelQueuedRunRemovesQueueItem(t *testing.T) {
	ctx := context.Background()
	queue := &fakeQueue{items: []runner.QueueItem{
		&fakeQueueItem{id: 1, causes: []runner.Cause{{UID: "b-other", BuildConfigUID: "bc-1"}}},
		&fakeQueueItem{id: 2, causes: []runner.Cause{{UID: "b-1", BuildConfigUID: "bc-1"}}},
	}}
	job := linkedJob("demo-app", platform.RunPolicyParallel)
	engine, recorder := newTestEngine(t, &fakePlatform{}, &fakeRunner{queue: queue})

	cancelled, err := engine.CancelQueuedRun(ctx, job, newBuild("b-1", "demo", "app-1", "app", "1"))
	if err != nil {
		t.Fatalf("cancel queued run: %v", err)
	}
	if !cancelled {
		t.Fatal("expected the queued item cancelled")
	}
	if len(queue.cancelled) != 1 || queue.cancelled[0] != 2 {
		t.Fatalf("expected item 2 cancelled, got %v", queue.cancelled)
	}
	if got := recorder.actions(); len(got) != 1 || got[0] != "QUEUE_CANCELLED" {
		t.Fatalf("expected QUEUE_CANCELLED journal entry, got %v", got)
	}
}

func TestCancelQueuedRunFallsBackToNotStartedRun(t *testing.T) {
	ctx := context.Background()
	run := &fakeRun{cause: &runner.Cause{UID: "b-1"}, building: true, started: false}
	job := linkedJob("demo-app", platform.RunPolicyParallel)
	job.runs = []runner.Run{run}
	engine, _ := newTestEngine(t, &fakePlatform{}, &fakeRunner{})

	cancelled, err := engine.CancelQueuedRun(ctx, job, newBuild("b-1", "demo", "app-1", "app", "1"))
	if err != nil {
		t.Fatalf("cancel queued run: %v", err)
	}
	if !cancelled {
		t.Fatal("expected the not-yet-started run cancelled")
	}
	stopped, killed := run.terminated()
	if !stopped || !killed {
		t.Fatalf("expected stop then kill, stopped=%v killed=%v", stopped, killed)
	}
}

func TestCancelQueuedRunIgnoresStartedRuns(t *testing.T) {
	ctx := context.Background()
	run := &fakeRun{cause: &runner.Cause{UID: "b-1"}, building: true, started: true}
	job := linkedJob("demo-app", platform.RunPolicyParallel)
	job.runs = []runner.Run{run}
	engine, _ := newTestEngine(t, &fakePlatform{}, &fakeRunner{})

	cancelled, err := engine.CancelQueuedRun(ctx, job, newBuild("b-1", "demo", "app-1", "app", "1"))
	if err != nil {
		t.Fatalf("cancel queued run: %v", err)
	}
	if cancelled {
		t.Fatal("a started run is not a queued cancellation")
	}
	if stopped, killed := run.terminated(); stopped || killed {
		t.Fatal("a queued cancel must not touch a started run")
	}
}

func TestCancelQueuedRunsForBuildConfigMatchesByConfigUID(t *testing.T) {
	ctx := context.Background()
	queue := &fakeQueue{items: []runner.QueueItem{
		&fakeQueueItem{id: 1, causes: []runner.Cause{{UID: "b-1", BuildConfigUID: "bc-1", Namespace: "demo", Name: "app-1"}}},
		&fakeQueueItem{id: 2, causes: []runner.Cause{{UID: "b-2", BuildConfigUID: "bc-other", Namespace: "demo", Name: "other-1"}}},
		&fakeQueueItem{id: 3, causes: []runner.Cause{{UID: "b-3", BuildConfigUID: "bc-1", Namespace: "demo", Name: "app-3"}}},
	}}
	job := linkedJob("demo-app", platform.RunPolicySerialLatestOnly)
	engine, _ := newTestEngine(t, &fakePlatform{}, &fakeRunner{queue: queue})

	if err := engine.CancelQueuedRunsForBuildConfig(ctx, job, "bc-1"); err != nil {
		t.Fatalf("cancel for build config: %v", err)
	}
	if len(queue.cancelled) != 2 {
		t.Fatalf("expected items 1 and 3 cancelled, got %v", queue.cancelled)
	}
	for _, id := range queue.cancelled {
		if id == 2 {
			t.Fatal("item of another build config must survive")
		}
	}
}

func TestCancelNotYetStartedRunsForBuildConfig(t *testing.T) {
	ctx := context.Background()
	pending := &fakeRun{cause: &runner.Cause{UID: "b-1", BuildConfigUID: "bc-1"}, building: true, started: false}
	started := &fakeRun{cause: &runner.Cause{UID: "b-2", BuildConfigUID: "bc-1"}, building: true, started: true}
	foreign := &fakeRun{cause: &runner.Cause{UID: "x-1", BuildConfigUID: "bc-other"}, building: true, started: false}
	job := linkedJob("demo-app", platform.RunPolicySerialLatestOnly)
	job.runs = []runner.Run{started, pending, foreign}
	engine, _ := newTestEngine(t, &fakePlatform{}, &fakeRunner{})

	if err := engine.CancelNotYetStartedRunsForBuildConfig(ctx, job, "bc-1"); err != nil {
		t.Fatalf("cancel for build config: %v", err)
	}
	if stopped, _ := pending.terminated(); !stopped {
		t.Fatal("the pending run of the config must be terminated")
	}
	if stopped, _ := started.terminated(); stopped {
		t.Fatal("a started run must survive")
	}
	if stopped, _ := foreign.terminated(); stopped {
		t.Fatal("another config's run must survive")
	}
}

func TestCancelBuildAlwaysMovesPhase(t *testing.T) {
	ctx := context.Background()
	job := linkedJob("demo-app", platform.RunPolicyParallel)
	platformClient := &fakePlatform{}
	engine, _ := newTestEngine(t, platformClient, &fakeRunner{})

	// Nothing queued, nothing running: the phase still moves to Cancelled.
	if err := engine.CancelBuild(ctx, job, newBuild("b-1", "demo", "app-1", "app", "1")); err != nil {
		t.Fatalf("cancel build: %v", err)
	}
	if len(platformClient.updates) != 1 || platformClient.updates[0].phase != platform.BuildPhaseCancelled {
		t.Fatalf("expected phase update to Cancelled, got %+v", platformClient.updates)
	}
}

func TestCancelBuildReturnsPhaseUpdateError(t *testing.T) {
	ctx := context.Background()
	job := linkedJob("demo-app", platform.RunPolicyParallel)
	wantErr := errors.New("platform unavailable")
	engine, _ := newTestEngine(t, &fakePlatform{updateErr: wantErr}, &fakeRunner{})

	err := engine.CancelBuild(ctx, job, newBuild("b-1", "demo", "app-1", "app", "1"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the phase update error, got %v", err)
	}
}
