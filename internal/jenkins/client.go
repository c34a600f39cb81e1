// Package jenkins implements runner.Client against the runner's remote API.
// Queue cancellation and run termination execute under the service-account
// token the client is constructed with.
package jenkins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/buildsync/bridge/runner"
)

// APIError captures non-2xx responses from the runner.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("runner api error: status=%d message=%s", e.StatusCode, e.Message)
}

// Client talks to the runner's remote API.
type Client struct {
	BaseURL    string
	User       string
	Token      string
	HTTPClient *http.Client
	UserAgent  string
}

// NewClient constructs a runner client authenticated with a service-account
// token.
func NewClient(baseURL, user, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		User:       user,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		UserAgent:  "buildsync-bridge",
	}
}

var _ runner.Client = (*Client)(nil)

// RootURL returns the runner's base URL with a trailing slash, falling back
// to runner.DefaultRootURL when none is configured.
func (c *Client) RootURL() string {
	if c.BaseURL == "" {
		return runner.DefaultRootURL
	}
	return strings.TrimRight(c.BaseURL, "/") + "/"
}

// Queue returns a handle on the runner's global scheduling queue.
func (c *Client) Queue() runner.Queue {
	return &queue{client: c}
}

type queue struct {
	client *Client
}

type queueItemJSON struct {
	ID      int64         `json:"id"`
	Actions []actionsJSON `json:"actions"`
}

type actionsJSON struct {
	Causes []causeJSON `json:"causes"`
}

type causeJSON struct {
	UID            string `json:"uid"`
	BuildConfigUID string `json:"buildConfigUid"`
	Namespace      string `json:"namespace"`
	Name           string `json:"name"`
}

func (q *queue) Items(ctx context.Context) ([]runner.QueueItem, error) {
	var payload struct {
		Items []queueItemJSON `json:"items"`
	}
	query := url.Values{}
	query.Set("tree", "items[id,actions[causes[uid,buildConfigUid,namespace,name]]]")
	if err := q.client.getJSON(ctx, "/queue/api/json", query, &payload); err != nil {
		return nil, errors.Wrap(err, "list queue items")
	}

	items := make([]runner.QueueItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, &queueItem{id: item.ID, causes: decodeCauses(item.Actions)})
	}
	return items, nil
}

func (q *queue) Cancel(ctx context.Context, item runner.QueueItem) error {
	query := url.Values{}
	query.Set("id", strconv.FormatInt(item.ID(), 10))
	if err := q.client.post(ctx, "/queue/cancelItem", query); err != nil {
		return errors.Wrapf(err, "cancel queue item %d", item.ID())
	}
	return nil
}

type queueItem struct {
	id     int64
	causes []runner.Cause
}

func (i *queueItem) ID() int64 {
	return i.id
}

func (i *queueItem) Causes() []runner.Cause {
	return i.causes
}

func decodeCauses(actions []actionsJSON) []runner.Cause {
	var causes []runner.Cause
	for _, action := range actions {
		for _, cause := range action.Causes {
			if cause.UID == "" && cause.BuildConfigUID == "" {
				// Not a bridge cause (e.g. started by a user).
				continue
			}
			causes = append(causes, runner.Cause{
				UID:            cause.UID,
				BuildConfigUID: cause.BuildConfigUID,
				Namespace:      cause.Namespace,
				Name:           cause.Name,
			})
		}
	}
	return causes
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, status, err := c.do(ctx, http.MethodGet, path, query, "", nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &APIError{StatusCode: status, Message: string(body)}
	}
	return json.Unmarshal(body, out)
}

func (c *Client) post(ctx context.Context, path string, query url.Values) error {
	body, status, err := c.do(ctx, http.MethodPost, path, query, "", nil)
	if err != nil {
		return err
	}
	// The runner answers queue and run mutations with redirects.
	if status >= 200 && status < 400 {
		return nil
	}
	return &APIError{StatusCode: status, Message: string(body)}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, payload io.Reader) ([]byte, int, error) {
	if c.BaseURL == "" {
		return nil, 0, errors.New("runner base URL missing")
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.User != "" || c.Token != "" {
		req.SetBasicAuth(c.User, c.Token)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	client = noRedirect(client)
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return body, resp.StatusCode, nil
}

// noRedirect keeps redirect statuses visible to callers instead of chasing
// them; mutations answer with 302 to pages we have no use for.
func noRedirect(base *http.Client) *http.Client {
	clone := *base
	clone.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &clone
}
