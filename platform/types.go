package platform

import (
	"fmt"
	"strconv"
)

const (
	// BuildNumberAnnotation holds the sequential per-build-config build
	// number as a decimal string.
	BuildNumberAnnotation = "openshift.io/build.number"
	// BuildConfigLabel is the label on a Build carrying the name of its
	// owning BuildConfig.
	BuildConfigLabel = "openshift.io/build-config.name"
	// NewBuildFieldSelector selects builds that have not been dispatched yet.
	NewBuildFieldSelector = "status.phase=New"
)

// BuildPhase represents the status of a build at a point in time.
type BuildPhase string

const (
	BuildPhaseNew       BuildPhase = "New"
	BuildPhasePending   BuildPhase = "Pending"
	BuildPhaseRunning   BuildPhase = "Running"
	BuildPhaseComplete  BuildPhase = "Complete"
	BuildPhaseFailed    BuildPhase = "Failed"
	BuildPhaseError     BuildPhase = "Error"
	BuildPhaseCancelled BuildPhase = "Cancelled"
)

// RunPolicy governs how new builds created from a build config are admitted
// into the runner. Anything unrecognized is treated as Parallel.
type RunPolicy string

const (
	RunPolicyParallel         RunPolicy = "Parallel"
	RunPolicySerial           RunPolicy = "Serial"
	RunPolicySerialLatestOnly RunPolicy = "SerialLatestOnly"
)

// EnvVar is a single (name, value) pair from a build strategy environment.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ObjectMeta carries the identifying metadata of a platform resource.
type ObjectMeta struct {
	Namespace   string            `json:"namespace"`
	Name        string            `json:"name"`
	UID         string            `json:"uid"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// GitBuildSource describes where the build's source is fetched from.
type GitBuildSource struct {
	URI string `json:"uri"`
	Ref string `json:"ref,omitempty"`
}

// BuildSource holds the optional source inputs of a build.
type BuildSource struct {
	Git *GitBuildSource `json:"git,omitempty"`
}

// GitSourceRevision pins the exact commit a build is running against.
type GitSourceRevision struct {
	Commit string `json:"commit"`
}

// SourceRevision holds the resolved revision of a build's source.
type SourceRevision struct {
	Git *GitSourceRevision `json:"git,omitempty"`
}

// BuildStrategy carries the environment projected into the runner job.
type BuildStrategy struct {
	Env []EnvVar `json:"env,omitempty"`
}

// BuildSpec is the read-mostly input half of a Build.
type BuildSpec struct {
	Source   BuildSource     `json:"source"`
	Revision *SourceRevision `json:"revision,omitempty"`
	Strategy BuildStrategy   `json:"strategy"`
}

// ConfigRef names the build config a build was created from.
type ConfigRef struct {
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

// BuildStatus is the platform-owned status half of a Build.
type BuildStatus struct {
	Phase     BuildPhase `json:"phase"`
	Cancelled bool       `json:"cancelled,omitempty"`
	Config    *ConfigRef `json:"config,omitempty"`
}

// Build is a single requested execution of a build config. Builds are
// created and destroyed by the platform; the bridge only reads them and
// writes their phase.
type Build struct {
	Metadata ObjectMeta  `json:"metadata"`
	Spec     BuildSpec   `json:"spec"`
	Status   BuildStatus `json:"status"`
}

// BuildConfigName returns the name of the owning build config, or "".
func (b Build) BuildConfigName() string {
	if b.Status.Config == nil {
		return ""
	}
	return b.Status.Config.Name
}

// Number parses the build's sequential number from its annotation.
func (b Build) Number() (int64, error) {
	raw, ok := b.Metadata.Annotations[BuildNumberAnnotation]
	if !ok {
		return 0, fmt.Errorf("build %s/%s: missing annotation %s", b.Metadata.Namespace, b.Metadata.Name, BuildNumberAnnotation)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("build %s/%s: annotation %s: %w", b.Metadata.Namespace, b.Metadata.Name, BuildNumberAnnotation, err)
	}
	return n, nil
}

// Env returns the build-strategy environment of the build.
func (b Build) Env() []EnvVar {
	return b.Spec.Strategy.Env
}

// BuildConfigSpec holds the template and admission policy for builds.
type BuildConfigSpec struct {
	RunPolicy RunPolicy     `json:"runPolicy,omitempty"`
	Strategy  BuildStrategy `json:"strategy"`
}

// BuildConfig is the template plus run policy owning many Builds.
type BuildConfig struct {
	Metadata ObjectMeta      `json:"metadata"`
	Spec     BuildConfigSpec `json:"spec"`
}

// EffectiveRunPolicy normalizes the run policy, falling through to
// Parallel for empty or unrecognized values.
func (c BuildConfig) EffectiveRunPolicy() RunPolicy {
	switch c.Spec.RunPolicy {
	case RunPolicySerial, RunPolicySerialLatestOnly:
		return c.Spec.RunPolicy
	default:
		return RunPolicyParallel
	}
}
