package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/buildsync/bridge/internal/giturl"
	"github.com/buildsync/bridge/internal/observability"
	"github.com/buildsync/bridge/journal"
	"github.com/buildsync/bridge/platform"
	"github.com/buildsync/bridge/runner"
)

const (
	// defaultSchedulePause guards against the runner coalescing the causes
	// of two near-simultaneous schedule calls onto one queue item.
	defaultSchedulePause = 50 * time.Millisecond
	// defaultKillDelay is the grace period between the stop request and the
	// hard kill of a terminated run.
	defaultKillDelay = 5 * time.Second
)

// CredentialSyncer pushes a build config's source credentials into the
// runner before a dispatch.
type CredentialSyncer interface {
	UpdateSourceCredentials(ctx context.Context, config platform.BuildConfig) error
}

// NoopSyncer is a placeholder syncer for deployments without source secrets.
type NoopSyncer struct{}

func (NoopSyncer) UpdateSourceCredentials(ctx context.Context, config platform.BuildConfig) error {
	return nil
}

// Recorder persists dispatch and cancellation decisions.
type Recorder interface {
	Record(ctx context.Context, entry journal.Entry) error
}

// Engine decides when a platform build is dispatched into the runner and
// cancels queued or in-flight runs. It keeps no state of its own: the
// runner's queue and run history are the source of truth, and re-presenting
// a build never creates a second run.
type Engine struct {
	platform platform.Client
	runner   runner.Client
	creds    CredentialSyncer
	logger   *slog.Logger
	metrics  *observability.Metrics
	recorder Recorder

	schedulePause time.Duration
	killDelay     time.Duration
	sleep         func(time.Duration)
	after         func(time.Duration, func())
	buildAdded    func(ctx context.Context, build platform.Build) (bool, error)

	// cancelMu serializes CancelBuild process-wide so two concurrent
	// cancels of the same build do not race the queue and the run list.
	cancelMu sync.Mutex
}

// NewEngine constructs a dispatch engine with sensible defaults. creds,
// logger, metrics and recorder may be nil.
func NewEngine(platformClient platform.Client, runnerClient runner.Client, creds CredentialSyncer, logger *slog.Logger, metrics *observability.Metrics, recorder Recorder) *Engine {
	if creds == nil {
		creds = NoopSyncer{}
	}
	if logger == nil {
		logger = observability.NewLogger("bridge.dispatch")
	}
	e := &Engine{
		platform:      platformClient,
		runner:        runnerClient,
		creds:         creds,
		logger:        logger,
		metrics:       metrics,
		recorder:      recorder,
		schedulePause: defaultSchedulePause,
		killDelay:     defaultKillDelay,
		sleep:         time.Sleep,
	}
	e.after = func(d time.Duration, fn func()) {
		time.AfterFunc(d, fn)
	}
	e.buildAdded = e.addBuild
	return e
}

// Trigger attempts to dispatch a single build into the runner. It returns
// false without error when the build is already dispatched, invalid, gated
// by the run policy, or rejected by the runner.
func (e *Engine) Trigger(ctx context.Context, job runner.Job, build platform.Build) (bool, error) {
	run, err := e.RunForBuild(ctx, job, build)
	if err != nil {
		return false, err
	}
	if run != nil {
		return false, nil
	}

	buildConfigName := build.BuildConfigName()
	if buildConfigName == "" {
		return false, nil
	}

	link, ok := job.BuildConfigLink()
	if !ok {
		return false, nil
	}

	switch link.RunPolicy {
	case platform.RunPolicySerialLatestOnly:
		if err := e.CancelQueuedRunsForBuildConfig(ctx, job, link.UID); err != nil {
			return false, err
		}
		if job.IsBuilding() {
			return false, nil
		}
	case platform.RunPolicySerial:
		if job.IsInQueue() || job.IsBuilding() {
			return false, nil
		}
	default:
	}

	config, err := e.platform.GetBuildConfig(ctx, build.Metadata.Namespace, buildConfigName)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := e.creds.UpdateSourceCredentials(ctx, config); err != nil {
		return false, err
	}

	log := observability.WithBuild(observability.WithJob(e.logger, job.Name()), build.Metadata.Namespace, build.Metadata.Name)

	actions := []runner.Action{runner.CauseAction{Cause: runner.Cause{
		UID:            build.Metadata.UID,
		BuildConfigUID: link.UID,
		Namespace:      build.Metadata.Namespace,
		Name:           build.Metadata.Name,
	}}}

	if git := build.Spec.Source.Git; git != nil && build.Spec.Revision != nil && build.Spec.Revision.Git != nil {
		repo, err := giturl.Parse(git.URI)
		if err != nil {
			log.Error("failed to parse git repo URL",
				"event", "git_uri_parse_failed", "uri", git.URI, "error", err)
		} else {
			actions = append(actions, runner.RevisionAction{
				Commit: build.Spec.Revision.Git.Commit,
				URL:    repo.String(),
			})
		}
	}

	// Take envs from the actual build in case defaults were overridden per
	// build. New definitions only: pre-existing defaults stay intact, the
	// per-run values below carry the real values.
	env := build.Env()
	if err := e.ReconcileJobParams(ctx, job, env, false); err != nil {
		return false, err
	}
	actions, err = e.RunParamsFromEnv(ctx, job, env, actions)
	if err != nil {
		return false, err
	}

	scheduled, err := job.ScheduleRun(ctx, 0, actions)
	if err != nil {
		return false, err
	}
	if !scheduled {
		e.metrics.IncScheduleRejection(job.Name())
		e.record(ctx, build, link.UID, journal.ActionScheduleRejected, "")
		return false, nil
	}

	if err := e.platform.UpdateBuildPhase(ctx, build, platform.BuildPhasePending); err != nil {
		// Best effort; the platform reconciles the phase on resync.
		log.Warn("failed to update build phase",
			"event", "build_phase_update_failed",
			"phase", platform.BuildPhasePending, "error", err)
	}
	e.metrics.IncDispatch(string(link.RunPolicy))
	e.record(ctx, build, link.UID, journal.ActionDispatched, e.runner.RootURL()+"job/"+job.Name()+"/")
	// Two schedule calls in close succession can have their causes coalesced
	// by the runner's queue; give the first one time to materialize.
	e.sleep(e.schedulePause)
	return true, nil
}

// addBuild is the default build-added hook: resolve the owning job, then
// cancel or trigger depending on the build's cancelled flag.
func (e *Engine) addBuild(ctx context.Context, build platform.Build) (bool, error) {
	job, err := e.JobForBuild(ctx, build)
	if err != nil || job == nil {
		return false, err
	}
	if build.Status.Cancelled {
		if err := e.CancelBuild(ctx, job, build); err != nil {
			return false, err
		}
		return false, nil
	}
	return e.Trigger(ctx, job, build)
}

func (e *Engine) record(ctx context.Context, build platform.Build, buildConfigUID, action, detail string) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.Record(ctx, journal.Entry{
		BuildUID:       build.Metadata.UID,
		BuildConfigUID: buildConfigUID,
		Namespace:      build.Metadata.Namespace,
		Name:           build.Metadata.Name,
		Action:         action,
		Detail:         detail,
	})
	if err != nil {
		e.logger.Warn("failed to record decision", "event", "journal_record_failed", "action", action, "error", err)
	}
}
