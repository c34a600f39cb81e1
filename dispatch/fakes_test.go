package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/buildsync/bridge/journal"
	"github.com/buildsync/bridge/platform"
	"github.com/buildsync/bridge/runner"
)

type phaseUpdate struct {
	uid   string
	phase platform.BuildPhase
}

type fakePlatform struct {
	configs   map[string]platform.BuildConfig
	newBuilds []platform.Build

	updates   []phaseUpdate
	updateErr error
}

func configKey(namespace, name string) string {
	return namespace + "/" + name
}

func (p *fakePlatform) GetBuildConfig(ctx context.Context, namespace, name string) (platform.BuildConfig, error) {
	config, ok := p.configs[configKey(namespace, name)]
	if !ok {
		return platform.BuildConfig{}, fmt.Errorf("build config %s/%s: %w", namespace, name, platform.ErrNotFound)
	}
	return config, nil
}

func (p *fakePlatform) ListNewBuilds(ctx context.Context, namespace, buildConfigName string) ([]platform.Build, error) {
	return p.newBuilds, nil
}

func (p *fakePlatform) UpdateBuildPhase(ctx context.Context, build platform.Build, phase platform.BuildPhase) error {
	if p.updateErr != nil {
		return p.updateErr
	}
	p.updates = append(p.updates, phaseUpdate{uid: build.Metadata.UID, phase: phase})
	return nil
}

type scheduleCall struct {
	delay   time.Duration
	actions []runner.Action
}

type fakeJob struct {
	name     string
	link     *runner.BuildConfigLink
	building bool
	inQueue  bool

	runs    []runner.Run
	runsErr error

	params    []runner.ParameterDefinition
	setParams [][]runner.ParameterDefinition

	scheduleCalls  []scheduleCall
	scheduleResult bool
	scheduleErr    error
}

func (j *fakeJob) Name() string { return j.name }

func (j *fakeJob) BuildConfigLink() (runner.BuildConfigLink, bool) {
	if j.link == nil {
		return runner.BuildConfigLink{}, false
	}
	return *j.link, true
}

func (j *fakeJob) IsBuilding() bool { return j.building }
func (j *fakeJob) IsInQueue() bool  { return j.inQueue }

func (j *fakeJob) Runs(ctx context.Context) ([]runner.Run, error) {
	return j.runs, j.runsErr
}

func (j *fakeJob) ParameterDefinitions(ctx context.Context) ([]runner.ParameterDefinition, error) {
	return j.params, nil
}

func (j *fakeJob) SetParameterDefinitions(ctx context.Context, defs []runner.ParameterDefinition) error {
	j.setParams = append(j.setParams, defs)
	j.params = defs
	return nil
}

func (j *fakeJob) ScheduleRun(ctx context.Context, delay time.Duration, actions []runner.Action) (bool, error) {
	j.scheduleCalls = append(j.scheduleCalls, scheduleCall{delay: delay, actions: actions})
	return j.scheduleResult, j.scheduleErr
}

type fakeRun struct {
	mu       sync.Mutex
	cause    *runner.Cause
	building bool
	started  bool
	stopped  bool
	killed   bool
}

func (r *fakeRun) Cause() (runner.Cause, bool) {
	if r.cause == nil {
		return runner.Cause{}, false
	}
	return *r.cause, true
}

func (r *fakeRun) IsBuilding() bool { return r.building }

func (r *fakeRun) HasNotStartedYet() bool { return r.building && !r.started }

func (r *fakeRun) StopGracefully(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

func (r *fakeRun) Kill(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.killed = true
	return nil
}

func (r *fakeRun) terminated() (stopped, killed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped, r.killed
}

type fakeQueueItem struct {
	id     int64
	causes []runner.Cause
}

func (i *fakeQueueItem) ID() int64              { return i.id }
func (i *fakeQueueItem) Causes() []runner.Cause { return i.causes }

type fakeQueue struct {
	items     []runner.QueueItem
	cancelled []int64
}

func (q *fakeQueue) Items(ctx context.Context) ([]runner.QueueItem, error) {
	return q.items, nil
}

func (q *fakeQueue) Cancel(ctx context.Context, item runner.QueueItem) error {
	q.cancelled = append(q.cancelled, item.ID())
	remaining := q.items[:0]
	for _, existing := range q.items {
		if existing.ID() != item.ID() {
			remaining = append(remaining, existing)
		}
	}
	q.items = remaining
	return nil
}

type fakeRunner struct {
	jobs  map[string]runner.Job
	queue *fakeQueue
}

func (c *fakeRunner) LookupJob(ctx context.Context, name string) (runner.Job, error) {
	job, ok := c.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", name, runner.ErrNotFound)
	}
	return job, nil
}

func (c *fakeRunner) Queue() runner.Queue { return c.queue }

func (c *fakeRunner) RootURL() string { return runner.DefaultRootURL }

type fakeRecorder struct {
	entries []journal.Entry
}

func (r *fakeRecorder) Record(ctx context.Context, entry journal.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeRecorder) actions() []string {
	actions := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

// newTestEngine wires an engine against the fakes with the pause removed
// and the deferred kill firing inline.
func newTestEngine(t *testing.T, platformClient *fakePlatform, runnerClient *fakeRunner) (*Engine, *fakeRecorder) {
	t.Helper()
	if platformClient.configs == nil {
		platformClient.configs = map[string]platform.BuildConfig{}
	}
	if runnerClient.queue == nil {
		runnerClient.queue = &fakeQueue{}
	}
	if runnerClient.jobs == nil {
		runnerClient.jobs = map[string]runner.Job{}
	}
	recorder := &fakeRecorder{}
	e := NewEngine(platformClient, runnerClient, nil, nil, nil, recorder)
	e.sleep = func(time.Duration) {}
	e.after = func(d time.Duration, fn func()) { fn() }
	return e, recorder
}

func newBuild(uid, namespace, name, configName, number string) platform.Build {
	return platform.Build{
		Metadata: platform.ObjectMeta{
			Namespace: namespace,
			Name:      name,
			UID:       uid,
			Labels:    map[string]string{platform.BuildConfigLabel: configName},
			Annotations: map[string]string{
				platform.BuildNumberAnnotation: number,
			},
		},
		Status: platform.BuildStatus{
			Phase:  platform.BuildPhaseNew,
			Config: &platform.ConfigRef{Namespace: namespace, Name: configName},
		},
	}
}
