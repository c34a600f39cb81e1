package runner

import "github.com/buildsync/bridge/platform"

// ParamFromEnvDescription marks a job parameter as owned by the bridge.
// The string is the sole identity of managed parameters; existing jobs
// carry it verbatim, so it must never change.
const ParamFromEnvDescription = "From OpenShift Build Environment Variable"

// DefaultRootURL is used when the runner has no base URL configured.
const DefaultRootURL = "http://localhost:8080/"

// Cause links a run or queue item back to the originating platform build.
type Cause struct {
	UID            string `json:"uid"`
	BuildConfigUID string `json:"buildConfigUid"`
	Namespace      string `json:"namespace"`
	Name           string `json:"name"`
}

// BuildConfigLink is the job property tying a runner job to exactly one
// platform build config. At most one job exists per build-config UID.
type BuildConfigLink struct {
	Namespace string             `json:"namespace"`
	Name      string             `json:"name"`
	UID       string             `json:"uid"`
	RunPolicy platform.RunPolicy `json:"runPolicy,omitempty"`
}

// JobName derives the runner job name for a build config.
func JobName(namespace, name string) string {
	return namespace + "-" + name
}

// ParameterKind discriminates job parameter definitions.
type ParameterKind string

const (
	KindString      ParameterKind = "string"
	KindBoolean     ParameterKind = "boolean"
	KindChoice      ParameterKind = "choice"
	KindFile        ParameterKind = "file"
	KindPassword    ParameterKind = "password"
	KindRun         ParameterKind = "run"
	KindCredentials ParameterKind = "credentials"
	KindOther       ParameterKind = "other"
)

// ParameterDefinition describes one parameter on a runner job.
type ParameterDefinition struct {
	Name        string        `json:"name"`
	Kind        ParameterKind `json:"kind"`
	Default     string        `json:"default,omitempty"`
	Choices     []string      `json:"choices,omitempty"`
	Description string        `json:"description,omitempty"`
}

// Managed reports whether the definition is owned by the bridge.
func (d ParameterDefinition) Managed() bool {
	return d.Description == ParamFromEnvDescription
}

// DefaultParameterValue returns the run value carrying the definition's
// default. It reports false when no usable default exists: a choice
// parameter without default or choices, or any other kind whose default
// is absent.
func (d ParameterDefinition) DefaultParameterValue() (ParameterValue, bool) {
	switch d.Kind {
	case KindString, KindBoolean, KindFile, KindPassword, KindRun, KindCredentials:
		return ParameterValue{Name: d.Name, Value: d.Default}, true
	case KindChoice:
		if d.Default != "" {
			return ParameterValue{Name: d.Name, Value: d.Default}, true
		}
		if len(d.Choices) > 0 {
			return ParameterValue{Name: d.Name, Value: d.Choices[0]}, true
		}
		return ParameterValue{}, false
	default:
		if d.Default == "" {
			return ParameterValue{}, false
		}
		return ParameterValue{Name: d.Name, Value: d.Default}, true
	}
}

// ManagedStringParameter builds a bridge-owned string parameter.
func ManagedStringParameter(name, value string) ParameterDefinition {
	return ParameterDefinition{
		Name:        name,
		Kind:        KindString,
		Default:     value,
		Description: ParamFromEnvDescription,
	}
}

// ParameterValue is a concrete per-run parameter value.
type ParameterValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Action is metadata attached to a scheduled run.
type Action interface {
	action()
}

// CauseAction attaches the originating-build cause to a run.
type CauseAction struct {
	Cause Cause
}

func (CauseAction) action() {}

// RevisionAction pins the run to an exact source revision.
type RevisionAction struct {
	Commit string
	URL    string
}

func (RevisionAction) action() {}

// ParametersAction supplies the per-run parameter values.
type ParametersAction struct {
	Parameters []ParameterValue
}

func (ParametersAction) action() {}
