package platform

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested platform resource does not exist.
var ErrNotFound = errors.New("platform: not found")

// Client is the subset of the platform REST API the bridge consumes.
type Client interface {
	// GetBuildConfig fetches a build config by namespace and name,
	// returning ErrNotFound when it does not exist.
	GetBuildConfig(ctx context.Context, namespace, name string) (BuildConfig, error)

	// ListNewBuilds lists builds in phase New belonging to the named build
	// config, using NewBuildFieldSelector and BuildConfigLabel verbatim.
	ListNewBuilds(ctx context.Context, namespace, buildConfigName string) ([]Build, error)

	// UpdateBuildPhase writes the build's status phase.
	UpdateBuildPhase(ctx context.Context, build Build, phase BuildPhase) error
}
