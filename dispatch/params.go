package dispatch

import (
	"context"
	"sort"

	"github.com/buildsync/bridge/platform"
	"github.com/buildsync/bridge/runner"
)

// ReconcileJobParams projects the build-strategy environment into the job's
// parameter definitions. User-owned parameters are always preserved; a
// managed parameter survives only while its env var still exists upstream.
// With replaceExisting the managed definition's default is overwritten with
// the env value, otherwise a pre-existing definition keeps its default and
// only missing names are added with an empty default (the per-run values
// carry the real value).
func (e *Engine) ReconcileJobParams(ctx context.Context, job runner.Job, env []platform.EnvVar, replaceExisting bool) error {
	if len(env) == 0 {
		return nil
	}

	envKeys := make(map[string]struct{}, len(env))
	for _, v := range env {
		envKeys[v.Name] = struct{}{}
	}

	existing, err := job.ParameterDefinitions(ctx)
	if err != nil {
		return err
	}

	params := make(map[string]runner.ParameterDefinition, len(existing)+len(env))
	for _, def := range existing {
		if !def.Managed() {
			params[def.Name] = def
			continue
		}
		if _, ok := envKeys[def.Name]; ok {
			// The env var still exists on the platform side, keep it.
			params[def.Name] = def
		}
	}

	for _, v := range env {
		if replaceExisting {
			params[v.Name] = runner.ManagedStringParameter(v.Name, v.Value)
		} else if _, ok := params[v.Name]; !ok {
			// Env var added per build rather than on the config; the
			// default stays empty on purpose.
			params[v.Name] = runner.ManagedStringParameter(v.Name, "")
		}
	}

	defs := make([]runner.ParameterDefinition, 0, len(params))
	for _, def := range params {
		defs = append(defs, def)
	}
	// Order is not part of the contract but a stable one avoids spurious
	// job config churn.
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	if err := job.SetParameterDefinitions(ctx, defs); err != nil {
		return err
	}
	mode := "add_missing"
	if replaceExisting {
		mode = "replace"
	}
	e.metrics.IncReconcile(mode)
	return nil
}

// RunParamsFromEnv appends a parameters action carrying exactly one value
// per job parameter: env entries first in env order, then the defaults of
// every remaining definition in definition order. Definitions without a
// usable default are skipped.
func (e *Engine) RunParamsFromEnv(ctx context.Context, job runner.Job, env []platform.EnvVar, actions []runner.Action) ([]runner.Action, error) {
	envKeys := make(map[string]struct{}, len(env))
	values := make([]runner.ParameterValue, 0, len(env))
	for _, v := range env {
		envKeys[v.Name] = struct{}{}
		values = append(values, runner.ParameterValue{Name: v.Name, Value: v.Value})
	}

	defs, err := job.ParameterDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if _, ok := envKeys[def.Name]; ok {
			continue
		}
		if value, ok := def.DefaultParameterValue(); ok {
			values = append(values, value)
		}
	}

	if len(values) > 0 {
		actions = append(actions, runner.ParametersAction{Parameters: values})
	}
	return actions, nil
}
