package dispatch

import (
	"context"
	"errors"

	"github.com/buildsync/bridge/platform"
	"github.com/buildsync/bridge/runner"
)

// RunForBuild scans the job's runs newest-first and returns the one whose
// cause carries the build's uid, or nil. A non-nil result is the engine's
// idempotency guard: the build has already been dispatched.
func (e *Engine) RunForBuild(ctx context.Context, job runner.Job, build platform.Build) (runner.Run, error) {
	return e.runForBuildUID(ctx, job, build.Metadata.UID)
}

func (e *Engine) runForBuildUID(ctx context.Context, job runner.Job, buildUID string) (runner.Run, error) {
	if buildUID == "" {
		return nil, nil
	}
	runs, err := job.Runs(ctx)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if cause, ok := run.Cause(); ok && cause.UID == buildUID {
			return run, nil
		}
	}
	return nil, nil
}

// JobForBuild resolves the runner job owning a build: the job named after
// the build's config whose link uid matches the live config. Returns nil
// when the build config or the job is gone, or the link disagrees.
func (e *Engine) JobForBuild(ctx context.Context, build platform.Build) (runner.Job, error) {
	buildConfigName := build.BuildConfigName()
	if buildConfigName == "" {
		return nil, nil
	}
	config, err := e.platform.GetBuildConfig(ctx, build.Metadata.Namespace, buildConfigName)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	job, err := e.runner.LookupJob(ctx, runner.JobName(config.Metadata.Namespace, config.Metadata.Name))
	if err != nil {
		if errors.Is(err, runner.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if link, ok := job.BuildConfigLink(); ok && link.UID == config.Metadata.UID {
		return job, nil
	}
	return nil, nil
}
