package runner

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested runner resource does not exist.
var ErrNotFound = errors.New("runner: not found")

// Job is a handle on a runner job. State predicates read the snapshot taken
// when the handle was resolved; everything else talks to the runner.
type Job interface {
	Name() string

	// BuildConfigLink returns the build-config property of the job,
	// reporting false when the job is not linked.
	BuildConfigLink() (BuildConfigLink, bool)

	IsBuilding() bool
	IsInQueue() bool

	// Runs returns the job's runs newest-first. Linear scans over the
	// result are the expected access pattern.
	Runs(ctx context.Context) ([]Run, error)

	ParameterDefinitions(ctx context.Context) ([]ParameterDefinition, error)

	// SetParameterDefinitions replaces the job's parameter set. The swap is
	// atomic from the runner's perspective.
	SetParameterDefinitions(ctx context.Context, defs []ParameterDefinition) error

	// ScheduleRun asks the runner to schedule the job with the given
	// actions. It reports false without error when the runner rejects the
	// request (no handle returned).
	ScheduleRun(ctx context.Context, delay time.Duration, actions []Action) (bool, error)
}

// Run is an instance of a job execution.
type Run interface {
	// Cause returns the build cause attached to the run, reporting false
	// when the run was started by something other than the bridge.
	Cause() (Cause, bool)

	IsBuilding() bool

	// HasNotStartedYet reports whether the run exists but no executor has
	// picked it up.
	HasNotStartedYet() bool

	// StopGracefully requests an orderly stop.
	StopGracefully(ctx context.Context) error

	// Kill terminates the run immediately. It must be idempotent: killing
	// an already-dead run succeeds.
	Kill(ctx context.Context) error
}

// QueueItem is a pending scheduling record in the runner's queue.
type QueueItem interface {
	ID() int64
	Causes() []Cause
}

// Queue is the runner's global scheduling queue. Mutations execute under
// the service account the client was constructed with.
type Queue interface {
	Items(ctx context.Context) ([]QueueItem, error)
	Cancel(ctx context.Context, item QueueItem) error
}

// Client is the subset of the runner API the bridge consumes.
type Client interface {
	// LookupJob resolves a job by name, returning ErrNotFound when absent.
	LookupJob(ctx context.Context, name string) (Job, error)

	Queue() Queue

	// RootURL returns the runner's base URL, falling back to
	// DefaultRootURL when none is configured.
	RootURL() string
}
