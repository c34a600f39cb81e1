package jenkins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/buildsync/bridge/platform"
	"github.com/buildsync/bridge/runner"
)

type jobJSON struct {
	Name     string         `json:"name"`
	InQueue  bool           `json:"inQueue"`
	Color    string         `json:"color"`
	Property []propertyJSON `json:"property"`
}

type propertyJSON struct {
	Class                string         `json:"_class"`
	UID                  string         `json:"uid,omitempty"`
	Namespace            string         `json:"namespace,omitempty"`
	Name                 string         `json:"name,omitempty"`
	BuildRunPolicy       string         `json:"buildRunPolicy,omitempty"`
	ParameterDefinitions []paramDefJSON `json:"parameterDefinitions,omitempty"`
}

type paramDefJSON struct {
	Name                  string   `json:"name"`
	Type                  string   `json:"type"`
	Description           string   `json:"description,omitempty"`
	Choices               []string `json:"choices,omitempty"`
	DefaultParameterValue *struct {
		Value any `json:"value"`
	} `json:"defaultParameterValue,omitempty"`
}

const buildConfigPropertyClass = "BuildConfigJobProperty"

// LookupJob resolves a job by name and snapshots its queue/build state and
// parameter definitions.
func (c *Client) LookupJob(ctx context.Context, name string) (runner.Job, error) {
	query := url.Values{}
	query.Set("tree", "name,inQueue,color,property[_class,uid,namespace,name,buildRunPolicy,parameterDefinitions[name,type,description,choices,defaultParameterValue[value]]]")

	var payload jobJSON
	err := c.getJSON(ctx, "/job/"+url.PathEscape(name)+"/api/json", query, &payload)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, errors.Wrapf(runner.ErrNotFound, "job %s", name)
		}
		return nil, errors.Wrapf(err, "lookup job %s", name)
	}

	j := &job{
		client:   c,
		name:     name,
		inQueue:  payload.InQueue,
		building: strings.Contains(payload.Color, "_anime"),
	}
	for _, prop := range payload.Property {
		if strings.Contains(prop.Class, buildConfigPropertyClass) {
			j.link = &runner.BuildConfigLink{
				Namespace: prop.Namespace,
				Name:      prop.Name,
				UID:       prop.UID,
				RunPolicy: platform.RunPolicy(prop.BuildRunPolicy),
			}
		}
		for _, def := range prop.ParameterDefinitions {
			j.params = append(j.params, decodeParamDef(def))
		}
	}
	return j, nil
}

type job struct {
	client   *Client
	name     string
	inQueue  bool
	building bool
	link     *runner.BuildConfigLink
	params   []runner.ParameterDefinition
}

func (j *job) Name() string {
	return j.name
}

func (j *job) BuildConfigLink() (runner.BuildConfigLink, bool) {
	if j.link == nil {
		return runner.BuildConfigLink{}, false
	}
	return *j.link, true
}

func (j *job) IsBuilding() bool {
	return j.building
}

func (j *job) IsInQueue() bool {
	return j.inQueue
}

type buildJSON struct {
	Number   int64         `json:"number"`
	Building bool          `json:"building"`
	Result   string        `json:"result"`
	Executor *struct{}     `json:"executor"`
	Actions  []actionsJSON `json:"actions"`
}

// Runs returns the job's runs newest-first, which is the order the runner
// reports them.
func (j *job) Runs(ctx context.Context) ([]runner.Run, error) {
	query := url.Values{}
	query.Set("tree", "builds[number,building,result,executor[*],actions[causes[uid,buildConfigUid,namespace,name]]]")

	var payload struct {
		Builds []buildJSON `json:"builds"`
	}
	if err := j.client.getJSON(ctx, "/job/"+url.PathEscape(j.name)+"/api/json", query, &payload); err != nil {
		return nil, errors.Wrapf(err, "list runs of job %s", j.name)
	}

	runs := make([]runner.Run, 0, len(payload.Builds))
	for _, b := range payload.Builds {
		r := &run{client: j.client, jobName: j.name, number: b.Number, building: b.Building, started: b.Executor != nil || b.Result != ""}
		causes := decodeCauses(b.Actions)
		if len(causes) > 0 {
			r.cause = &causes[0]
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func (j *job) ParameterDefinitions(ctx context.Context) ([]runner.ParameterDefinition, error) {
	defs := make([]runner.ParameterDefinition, len(j.params))
	copy(defs, j.params)
	return defs, nil
}

// SetParameterDefinitions rewrites the parameters block of the job's
// config.xml and refreshes the snapshot.
func (j *job) SetParameterDefinitions(ctx context.Context, defs []runner.ParameterDefinition) error {
	current, err := j.client.getConfigXML(ctx, j.name)
	if err != nil {
		return errors.Wrapf(err, "fetch config of job %s", j.name)
	}
	updated, err := spliceParametersProperty(current, defs)
	if err != nil {
		return errors.Wrapf(err, "rewrite parameters of job %s", j.name)
	}
	if err := j.client.postConfigXML(ctx, j.name, updated); err != nil {
		return errors.Wrapf(err, "update config of job %s", j.name)
	}
	j.params = append([]runner.ParameterDefinition(nil), defs...)
	return nil
}

// scheduleRequest is the remote equivalent of scheduling with actions.
type scheduleRequest struct {
	DelaySeconds int                     `json:"delay_seconds"`
	Cause        *runner.Cause           `json:"cause,omitempty"`
	Commit       string                  `json:"commit,omitempty"`
	RepoURL      string                  `json:"repo_url,omitempty"`
	Parameters   []runner.ParameterValue `json:"parameters,omitempty"`
}

// ScheduleRun posts a schedule request carrying the cause, the pinned
// revision, and the per-run parameter values. A conflict answer means the
// runner declined to queue the job.
func (j *job) ScheduleRun(ctx context.Context, delay time.Duration, actions []runner.Action) (bool, error) {
	req := scheduleRequest{DelaySeconds: int(delay / time.Second)}
	for _, action := range actions {
		switch a := action.(type) {
		case runner.CauseAction:
			cause := a.Cause
			req.Cause = &cause
		case runner.RevisionAction:
			req.Commit = a.Commit
			req.RepoURL = a.URL
		case runner.ParametersAction:
			req.Parameters = a.Parameters
		}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return false, err
	}
	body, status, err := j.client.do(ctx, http.MethodPost, "/job/"+url.PathEscape(j.name)+"/schedule", nil, "application/json", bytes.NewReader(data))
	if err != nil {
		return false, errors.Wrapf(err, "schedule job %s", j.name)
	}
	switch {
	case status >= 200 && status < 300:
		return true, nil
	case status == http.StatusConflict || status == http.StatusNotFound:
		return false, nil
	default:
		return false, errors.Wrapf(&APIError{StatusCode: status, Message: string(body)}, "schedule job %s", j.name)
	}
}

type run struct {
	client   *Client
	jobName  string
	number   int64
	building bool
	started  bool
	cause    *runner.Cause
}

func (r *run) Cause() (runner.Cause, bool) {
	if r.cause == nil {
		return runner.Cause{}, false
	}
	return *r.cause, true
}

func (r *run) IsBuilding() bool {
	return r.building
}

func (r *run) HasNotStartedYet() bool {
	return r.building && !r.started
}

func (r *run) StopGracefully(ctx context.Context) error {
	if err := r.client.post(ctx, r.path("term"), nil); err != nil {
		return errors.Wrapf(err, "stop run %s#%d", r.jobName, r.number)
	}
	return nil
}

// Kill is idempotent: a run that already finished answers 404, which is
// success for our purposes.
func (r *run) Kill(ctx context.Context) error {
	err := r.client.post(ctx, r.path("kill"), nil)
	if err != nil && isStatus(err, http.StatusNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "kill run %s#%d", r.jobName, r.number)
	}
	return nil
}

func (r *run) path(verb string) string {
	return fmt.Sprintf("/job/%s/%s/%s", url.PathEscape(r.jobName), strconv.FormatInt(r.number, 10), verb)
}

func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

func decodeParamDef(def paramDefJSON) runner.ParameterDefinition {
	out := runner.ParameterDefinition{
		Name:        def.Name,
		Kind:        kindFromType(def.Type),
		Choices:     def.Choices,
		Description: def.Description,
	}
	if def.DefaultParameterValue != nil && def.DefaultParameterValue.Value != nil {
		out.Default = fmt.Sprintf("%v", def.DefaultParameterValue.Value)
	}
	return out
}

var typeToKind = map[string]runner.ParameterKind{
	"StringParameterDefinition":      runner.KindString,
	"BooleanParameterDefinition":     runner.KindBoolean,
	"ChoiceParameterDefinition":      runner.KindChoice,
	"FileParameterDefinition":        runner.KindFile,
	"PasswordParameterDefinition":    runner.KindPassword,
	"RunParameterDefinition":         runner.KindRun,
	"CredentialsParameterDefinition": runner.KindCredentials,
}

func kindFromType(paramType string) runner.ParameterKind {
	if kind, ok := typeToKind[paramType]; ok {
		return kind
	}
	return runner.KindOther
}
