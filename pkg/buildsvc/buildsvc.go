// Package buildsvc is the client of the external image build service.
package buildsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

// BuildStatus is the build service's lifecycle vocabulary.
type BuildStatus string

const (
	BuildPending     BuildStatus = "pending"
	BuildSuccessful  BuildStatus = "successful"
	BuildFailed      BuildStatus = "failed"
	BuildInterrupted BuildStatus = "interrupted"
)

func (s BuildStatus) Terminal() bool {
	switch s {
	case BuildSuccessful, BuildFailed, BuildInterrupted:
		return true
	default:
		return false
	}
}

// BuildRequest is the submit payload.
type BuildRequest struct {
	VersionInfo   domain.VersionInfo `json:"version_info"`
	SourceTarPath string             `json:"source_tar_path"`
	Procfile      map[string]string  `json:"procfile"`
	Env           map[string]string  `json:"env"`
}

// BuildState is the poll response.
type BuildState struct {
	Status  BuildStatus `json:"build_status"`
	BuildID string      `json:"build_id,omitempty"`
	Message string      `json:"message,omitempty"`

	// image reference of the artifact, set alongside build_id.
	Image string `json:"image,omitempty"`
}

// Event is one line of build output history.
type Event struct {
	ID      int    `json:"id"`
	Message string `json:"message"`
}

type Client interface {
	// Submit starts a build and returns its build_process_id.
	Submit(ctx context.Context, req BuildRequest) (string, error)

	// State polls a running build.
	State(ctx context.Context, buildProcessID string) (BuildState, error)

	// Events returns build output events with id greater than after,
	// in order.
	Events(ctx context.Context, buildProcessID string, after int) ([]Event, error)
}

type client struct {
	base string
	http *http.Client
}

func New(baseURL string, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{base: baseURL, http: httpClient}
}

func (c *client) Submit(ctx context.Context, req BuildRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", xe.Wrap(err)
	}
	hreq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.base+"/build", bytes.NewReader(payload),
	)
	if err != nil {
		return "", xe.Wrap(err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(hreq)
	if err != nil {
		return "", xe.Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", buildServiceError(resp)
	}

	var body struct {
		BuildProcessID string `json:"build_process_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", xe.Wrap(err)
	}
	if body.BuildProcessID == "" {
		return "", xe.Wrap(fmt.Errorf("build service returned no build_process_id"))
	}
	return body.BuildProcessID, nil
}

func (c *client) State(ctx context.Context, buildProcessID string) (BuildState, error) {
	hreq, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.base+"/build/"+url.PathEscape(buildProcessID), nil,
	)
	if err != nil {
		return BuildState{}, xe.Wrap(err)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return BuildState{}, xe.Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return BuildState{}, buildServiceError(resp)
	}

	var state BuildState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return BuildState{}, xe.Wrap(err)
	}
	return state, nil
}

func (c *client) Events(ctx context.Context, buildProcessID string, after int) ([]Event, error) {
	u := fmt.Sprintf(
		"%s/build/%s/events?after=%d", c.base, url.PathEscape(buildProcessID), after,
	)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, buildServiceError(resp)
	}

	var body struct {
		Events []Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, xe.Wrap(err)
	}
	return body.Events, nil
}

func buildServiceError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return domain.NewExternal(
		"BUILD_SERVICE_ERROR",
		fmt.Sprintf("build service returned %d: %s", resp.StatusCode, string(raw)),
		nil,
	)
}
