package dispatch

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/buildsync/bridge/platform"
	"github.com/buildsync/bridge/runner"
)

func TestReconcileJobParamsAddMissing(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, &fakePlatform{}, &fakeRunner{})
	job := &fakeJob{
		name: "demo-app",
		params: []runner.ParameterDefinition{
			{Name: "USER_PARAM", Kind: runner.KindChoice, Choices: []string{"a", "b"}},
			runner.ManagedStringParameter("KEPT_ENV", "old-default"),
			runner.ManagedStringParameter("STALE_ENV", "gone"),
		},
	}

	env := []platform.EnvVar{
		{Name: "KEPT_ENV", Value: "new-value"},
		{Name: "ADDED_ENV", Value: "added-value"},
	}
	if err := engine.ReconcileJobParams(ctx, job, env, false); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	want := []runner.ParameterDefinition{
		runner.ManagedStringParameter("ADDED_ENV", ""),
		runner.ManagedStringParameter("KEPT_ENV", "old-default"),
		{Name: "USER_PARAM", Kind: runner.KindChoice, Choices: []string{"a", "b"}},
	}
	if len(job.setParams) != 1 {
		t.Fatalf("expected one parameter update, got %d", len(job.setParams))
	}
	if diff := cmp.Diff(want, job.setParams[0]); diff != "" {
		t.Fatalf("unexpected definitions (-want +got):\n%s", diff)
	}
}

func TestReconcileJobParamsReplaceExisting(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, &fakePlatform{}, &fakeRunner{})
	job := &fakeJob{
		name: "demo-app",
		params: []runner.ParameterDefinition{
			runner.ManagedStringParameter("KEPT_ENV", "old-default"),
		},
	}

	env := []platform.EnvVar{{Name: "KEPT_ENV", Value: "new-value"}}
	if err := engine.ReconcileJobParams(ctx, job, env, true); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	want := []runner.ParameterDefinition{
		runner.ManagedStringParameter("KEPT_ENV", "new-value"),
	}
	if diff := cmp.Diff(want, job.setParams[0]); diff != "" {
		t.Fatalf("unexpected definitions (-want +got):\n%s", diff)
	}
}

func TestReconcileJobParamsEmptyEnvIsNoop(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, &fakePlatform{}, &fakeRunner{})
	job := &fakeJob{
		name:   "demo-app",
		params: []runner.ParameterDefinition{runner.ManagedStringParameter("STALE_ENV", "x")},
	}

	if err := engine.ReconcileJobParams(ctx, job, nil, false); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(job.setParams) != 0 {
		t.Fatal("an empty environment must not rewrite the job config")
	}
}

func TestRunParamsFromEnvPrefersEnvOverDefaults(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, &fakePlatform{}, &fakeRunner{})
	job := &fakeJob{
		name: "demo-app",
		params: []runner.ParameterDefinition{
			{Name: "OVERRIDDEN", Kind: runner.KindString, Default: "config-default"},
			{Name: "CHOICE", Kind: runner.KindChoice, Choices: []string{"first", "second"}},
			{Name: "EMPTY_OTHER", Kind: runner.KindOther},
		},
	}

	env := []platform.EnvVar{{Name: "OVERRIDDEN", Value: "build-value"}}
	actions, err := engine.RunParamsFromEnv(ctx, job, env, nil)
	if err != nil {
		t.Fatalf("run params: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected one parameters action, got %d", len(actions))
	}

	want := []runner.ParameterValue{
		{Name: "OVERRIDDEN", Value: "build-value"},
		{Name: "CHOICE", Value: "first"},
	}
	got := actions[0].(runner.ParametersAction).Parameters
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected values (-want +got):\n%s", diff)
	}
}

func TestRunParamsFromEnvNoValuesNoAction(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, &fakePlatform{}, &fakeRunner{})
	job := &fakeJob{name: "demo-app"}

	actions, err := engine.RunParamsFromEnv(ctx, job, nil, nil)
	if err != nil {
		t.Fatalf("run params: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("expected no actions, got %+v", actions)
	}
}
