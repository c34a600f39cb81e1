package protocol

import "github.com/buildsync/bridge/platform"

// BuildEvent is posted by the watcher when a platform build appears or
// changes.
type BuildEvent struct {
	Type  string         `json:"type"` // always "BuildEvent"
	Build platform.Build `json:"build"`
}

// BuildListEvent carries the watcher's current set of NEW builds for one
// runner job.
type BuildListEvent struct {
	Type    string           `json:"type"` // always "BuildListEvent"
	JobName string           `json:"job_name"`
	Builds  []platform.Build `json:"builds"`
}

// ResyncRequest asks the bridge to re-list NEW builds for a job and
// reconcile them.
type ResyncRequest struct {
	JobName string `json:"job_name"`
}

// TriggerResult reports whether a build was admitted into the runner.
type TriggerResult struct {
	Triggered bool `json:"triggered"`
}
