package dispatch

import (
	"context"

	"github.com/buildsync/bridge/journal"
	"github.com/buildsync/bridge/platform"
	"github.com/buildsync/bridge/runner"
)

// CancelQueuedRun removes the queued item belonging to the build from the
// runner's queue, falling back to terminating a matching run that has not
// started yet. It reports whether anything was cancelled.
func (e *Engine) CancelQueuedRun(ctx context.Context, job runner.Job, build platform.Build) (bool, error) {
	queue := e.runner.Queue()
	items, err := queue.Items(ctx)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		for _, cause := range item.Causes() {
			if cause.UID == "" || cause.UID != build.Metadata.UID {
				continue
			}
			if err := queue.Cancel(ctx, item); err != nil {
				return false, err
			}
			e.metrics.IncCancellation("queued")
			e.record(ctx, build, cause.BuildConfigUID, journal.ActionQueueCancelled, "")
			return true, nil
		}
	}
	return e.cancelNotYetStartedRun(ctx, job, build)
}

func (e *Engine) cancelNotYetStartedRun(ctx context.Context, job runner.Job, build platform.Build) (bool, error) {
	run, err := e.runForBuildUID(ctx, job, build.Metadata.UID)
	if err != nil {
		return false, err
	}
	if run == nil || !run.HasNotStartedYet() {
		return false, nil
	}
	e.terminateRun(ctx, run)
	e.metrics.IncCancellation("not_started")
	e.record(ctx, build, "", journal.ActionRunTerminated, "not started yet")
	return true, nil
}

func (e *Engine) cancelRunningRun(ctx context.Context, job runner.Job, build platform.Build) (bool, error) {
	run, err := e.runForBuildUID(ctx, job, build.Metadata.UID)
	if err != nil {
		return false, err
	}
	if run == nil || !run.IsBuilding() {
		return false, nil
	}
	e.terminateRun(ctx, run)
	e.metrics.IncCancellation("running")
	e.record(ctx, build, "", journal.ActionRunTerminated, "running")
	return true, nil
}

// CancelQueuedRunsForBuildConfig cancels every queued item whose cause
// belongs to the given build config.
func (e *Engine) CancelQueuedRunsForBuildConfig(ctx context.Context, job runner.Job, buildConfigUID string) error {
	items, err := e.runner.Queue().Items(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		for _, cause := range item.Causes() {
			if cause.BuildConfigUID != buildConfigUID {
				continue
			}
			build := platform.Build{Metadata: platform.ObjectMeta{
				Namespace: cause.Namespace,
				Name:      cause.Name,
				UID:       cause.UID,
			}}
			if _, err := e.CancelQueuedRun(ctx, job, build); err != nil {
				return err
			}
		}
	}
	return nil
}

// CancelNotYetStartedRunsForBuildConfig cancels the build config's queued
// items, then terminates every run of the job that belongs to the config
// and has not started yet.
func (e *Engine) CancelNotYetStartedRunsForBuildConfig(ctx context.Context, job runner.Job, buildConfigUID string) error {
	if err := e.CancelQueuedRunsForBuildConfig(ctx, job, buildConfigUID); err != nil {
		return err
	}
	runs, err := job.Runs(ctx)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if !run.HasNotStartedYet() {
			continue
		}
		if cause, ok := run.Cause(); ok && cause.BuildConfigUID == buildConfigUID {
			e.terminateRun(ctx, run)
			e.metrics.IncCancellation("not_started")
		}
	}
	return nil
}

// CancelBuild cancels the build in the runner best-effort, then always marks
// the platform build Cancelled. The runner-side steps are mutually exclusive
// process-wide; a failure updating the platform phase is returned verbatim
// so the caller can retry.
func (e *Engine) CancelBuild(ctx context.Context, job runner.Job, build platform.Build) error {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()

	cancelled, err := e.CancelQueuedRun(ctx, job, build)
	if err != nil {
		e.logger.Warn("failed to cancel queued run",
			"event", "queue_cancel_failed",
			"namespace", build.Metadata.Namespace, "name", build.Metadata.Name, "error", err)
	}
	if !cancelled {
		if _, err := e.cancelRunningRun(ctx, job, build); err != nil {
			e.logger.Warn("failed to cancel running run",
				"event", "run_cancel_failed",
				"namespace", build.Metadata.Namespace, "name", build.Metadata.Name, "error", err)
		}
	}

	if err := e.platform.UpdateBuildPhase(ctx, build, platform.BuildPhaseCancelled); err != nil {
		return err
	}
	e.record(ctx, build, "", journal.ActionBuildCancelled, "")
	return nil
}

// terminateRun requests a graceful stop immediately and schedules a hard
// kill after the grace period. The kill runs whether or not the stop
// already ended the run; Kill is idempotent.
func (e *Engine) terminateRun(ctx context.Context, run runner.Run) {
	if err := run.StopGracefully(ctx); err != nil {
		e.logger.Warn("graceful stop failed", "event", "run_stop_failed", "error", err)
	}
	e.after(e.killDelay, func() {
		if err := run.Kill(context.Background()); err != nil {
			e.logger.Warn("hard kill failed", "event", "run_kill_failed", "error", err)
		}
	})
}
