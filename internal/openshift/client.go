// Package openshift implements platform.Client against the OpenShift build
// API.
package openshift

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/buildsync/bridge/platform"
)

const buildAPIPrefix = "/apis/build.openshift.io/v1"

// APIError captures non-2xx responses from the platform.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api error: status=%d message=%s", e.StatusCode, e.Message)
}

// Client talks to the platform's build API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	UserAgent  string
}

// NewClient constructs a platform client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		UserAgent:  "buildsync-bridge",
	}
}

var _ platform.Client = (*Client)(nil)

// GetBuildConfig fetches a build config, mapping 404 to platform.ErrNotFound.
func (c *Client) GetBuildConfig(ctx context.Context, namespace, name string) (platform.BuildConfig, error) {
	path := fmt.Sprintf("%s/namespaces/%s/buildconfigs/%s", buildAPIPrefix, namespace, name)
	var config platform.BuildConfig
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &config); err != nil {
		if isNotFound(err) {
			return platform.BuildConfig{}, errors.Wrapf(platform.ErrNotFound, "buildconfig %s/%s", namespace, name)
		}
		return platform.BuildConfig{}, errors.Wrapf(err, "get buildconfig %s/%s", namespace, name)
	}
	return config, nil
}

type buildList struct {
	Items []platform.Build `json:"items"`
}

// ListNewBuilds lists builds in phase New owned by the named build config.
func (c *Client) ListNewBuilds(ctx context.Context, namespace, buildConfigName string) ([]platform.Build, error) {
	query := url.Values{}
	query.Set("fieldSelector", platform.NewBuildFieldSelector)
	query.Set("labelSelector", platform.BuildConfigLabel+"="+buildConfigName)
	path := fmt.Sprintf("%s/namespaces/%s/builds", buildAPIPrefix, namespace)

	var list buildList
	if err := c.doJSON(ctx, http.MethodGet, path, query.Encode(), nil, &list); err != nil {
		return nil, errors.Wrapf(err, "list new builds for %s/%s", namespace, buildConfigName)
	}
	return list.Items, nil
}

// UpdateBuildPhase merge-patches the build's status phase.
func (c *Client) UpdateBuildPhase(ctx context.Context, build platform.Build, phase platform.BuildPhase) error {
	path := fmt.Sprintf("%s/namespaces/%s/builds/%s", buildAPIPrefix, build.Metadata.Namespace, build.Metadata.Name)
	patch := map[string]any{
		"status": map[string]any{
			"phase": phase,
		},
	}
	if err := c.doJSON(ctx, http.MethodPatch, path, "", patch, nil); err != nil {
		return errors.Wrapf(err, "update build %s/%s phase to %s", build.Metadata.Namespace, build.Metadata.Name, phase)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path, rawQuery string, payload any, out any) error {
	if c.BaseURL == "" {
		return errors.New("platform base URL missing")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + path
	if rawQuery != "" {
		endpoint += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if payload != nil {
		if method == http.MethodPatch {
			req.Header.Set("Content-Type", "application/merge-patch+json")
		} else {
			req.Header.Set("Content-Type", "application/json")
		}
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return err
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
