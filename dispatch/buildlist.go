package dispatch

import (
	"context"
	"sort"

	"github.com/buildsync/bridge/platform"
	"github.com/buildsync/bridge/runner"
)

// HandleBuildList reconciles the current set of NEW builds for the job's
// build config: cancellations are processed first, the rest oldest build
// number first, and per-build dispatch honors the run policy.
func (e *Engine) HandleBuildList(ctx context.Context, job runner.Job, builds []platform.Build, link runner.BuildConfigLink) error {
	if len(builds) == 0 {
		return nil
	}

	serialLatestOnly := link.RunPolicy == platform.RunPolicySerialLatestOnly
	if serialLatestOnly {
		// Cancel anything that has not grabbed an executor yet; only the
		// latest requested build should ever run.
		if err := e.CancelNotYetStartedRunsForBuildConfig(ctx, job, link.UID); err != nil {
			return err
		}
	}

	sorted := e.sortBuilds(builds)
	serial := link.RunPolicy == platform.RunPolicySerial
	jobBuilding := job.IsBuilding()

	for i, build := range sorted {
		if serialLatestOnly {
			// A run is already in flight; stop at the first build that is
			// not a cancellation so no new run is queued behind it.
			if jobBuilding && !build.Status.Cancelled {
				return nil
			}
			if i < len(sorted)-1 {
				if _, err := e.CancelQueuedRun(ctx, job, build); err != nil {
					return err
				}
				if err := e.platform.UpdateBuildPhase(ctx, build, platform.BuildPhaseCancelled); err != nil {
					return err
				}
				continue
			}
		}

		added, err := e.buildAdded(ctx, build)
		if err != nil {
			e.logger.Warn("failed to add new build",
				"event", "build_add_failed",
				"namespace", build.Metadata.Namespace, "name", build.Metadata.Name, "error", err)
		}
		// Under Serial only the first admitted build is scheduled; the rest
		// wait for the next reconciliation.
		if serial && added {
			return nil
		}
	}
	return nil
}

// MaybeScheduleNext lists the platform's NEW builds for the job's build
// config and reconciles them.
func (e *Engine) MaybeScheduleNext(ctx context.Context, job runner.Job) error {
	link, ok := job.BuildConfigLink()
	if !ok {
		return nil
	}
	builds, err := e.platform.ListNewBuilds(ctx, link.Namespace, link.Name)
	if err != nil {
		return err
	}
	return e.HandleBuildList(ctx, job, builds, link)
}

// sortBuilds orders cancellations first so they are processed before newer
// entries, then ascending build number, tie-broken by uid so the order is
// deterministic.
func (e *Engine) sortBuilds(builds []platform.Build) []platform.Build {
	type key struct {
		build     platform.Build
		cancelled bool
		number    int64
	}
	keys := make([]key, 0, len(builds))
	for _, build := range builds {
		number, err := build.Number()
		if err != nil {
			e.logger.Warn("invalid build number annotation",
				"event", "build_number_invalid",
				"namespace", build.Metadata.Namespace, "name", build.Metadata.Name, "error", err)
			number = 0
		}
		keys = append(keys, key{build: build, cancelled: build.Status.Cancelled, number: number})
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].cancelled != keys[j].cancelled {
			return keys[i].cancelled
		}
		if keys[i].number != keys[j].number {
			return keys[i].number < keys[j].number
		}
		return keys[i].build.Metadata.UID < keys[j].build.Metadata.UID
	})
	sorted := make([]platform.Build, len(keys))
	for i, k := range keys {
		sorted[i] = k.build
	}
	return sorted
}
