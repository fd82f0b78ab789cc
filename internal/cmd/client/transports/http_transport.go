package transports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rzbill/buildlog/internal/eventlog"
	buildsvc "github.com/rzbill/buildlog/internal/services/builds"
)

// HTTPTransport talks to the HTTP API. It also serves the read paths the
// gRPC service does not expose.
type HTTPTransport struct {
	base   func() string
	client *http.Client
}

// NewHTTPTransport returns a transport rooted at base(). A nil client uses
// http.DefaultClient.
func NewHTTPTransport(base func() string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{base: base, client: client}
}

func (t *HTTPTransport) buildsURL(project string) string {
	return t.base() + "/v1/projects/" + url.PathEscape(project) + "/builds"
}

// Ingest posts r as a new build.
func (t *HTTPTransport) Ingest(ctx context.Context, project, source string, r io.Reader) (eventlog.BuildInfo, error) {
	u := t.buildsURL(project)
	if source != "" {
		u += "?source=" + url.QueryEscape(source)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, r)
	if err != nil {
		return eventlog.BuildInfo{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := t.client.Do(req)
	if err != nil {
		return eventlog.BuildInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusCreated {
		var info eventlog.BuildInfo
		return info, json.NewDecoder(resp.Body).Decode(&info)
	}
	var body struct {
		Error string             `json:"error"`
		Build eventlog.BuildInfo `json:"build"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return body.Build, &StatusError{Code: resp.StatusCode, Message: body.Error}
}

// Build fetches one build's info.
func (t *HTTPTransport) Build(ctx context.Context, project, build string) (eventlog.BuildInfo, error) {
	var info eventlog.BuildInfo
	err := t.getJSON(ctx, t.buildsURL(project)+"/"+url.PathEscape(build), &info)
	return info, err
}

// Builds lists the builds of project.
func (t *HTTPTransport) Builds(ctx context.Context, project string) ([]eventlog.BuildInfo, error) {
	var out struct {
		Builds []eventlog.BuildInfo `json:"builds"`
	}
	err := t.getJSON(ctx, t.buildsURL(project), &out)
	return out.Builds, err
}

// Events fetches one page of events.
func (t *HTTPTransport) Events(ctx context.Context, req EventsRequest) (buildsvc.Page, error) {
	q := url.Values{}
	if req.Filter != "" {
		q.Set("filter", req.Filter)
	}
	if req.After > 0 {
		q.Set("after", strconv.FormatUint(req.After, 10))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Group != "" {
		q.Set("group", req.Group)
	}
	if req.WaitMs > 0 {
		q.Set("wait_ms", strconv.FormatInt(req.WaitMs, 10))
	}
	u := t.buildsURL(req.Project) + "/" + url.PathEscape(req.Build) + "/events"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var page buildsvc.Page
	err := t.getJSON(ctx, u, &page)
	return page, err
}

// Export copies the build's stream, encoded at version (zero for the
// server default), into w.
func (t *HTTPTransport) Export(ctx context.Context, project, build string, version uint64, w io.Writer) (int64, error) {
	u := t.buildsURL(project) + "/" + url.PathEscape(build) + "/binlog"
	if version > 0 {
		u += "?version=" + strconv.FormatUint(version, 10)
	}
	resp, err := t.get(ctx, u)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

func (t *HTTPTransport) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, &StatusError{Code: resp.StatusCode, Message: body.Error}
	}
	return resp, nil
}

func (t *HTTPTransport) getJSON(ctx context.Context, u string, out any) error {
	resp, err := t.get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is a non-success HTTP response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}
