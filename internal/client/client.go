// Package client provides the bugzoo CLI client for the bugzood HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/squareslab/bugzood/internal/daemon/types"
)

// Client provides access to the bugzood daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a new client connected to the daemon at the configured
// address.
func New() (*Client, error) {
	addr, err := ResolveAddress()
	if err != nil {
		return nil, err
	}
	return NewWithAddress(addr)
}

// NewWithAddress creates a client for a specific daemon address.
func NewWithAddress(addr string) (*Client, error) {
	if !IsDaemonRunningAt(addr) {
		return nil, fmt.Errorf("daemon not running at %s (start it with 'bugzood')", addr)
	}

	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// CreateRunRequest is the body of POST /v1/runs.
type CreateRunRequest struct {
	Scenario string `json:"scenario"`
	Retain   bool   `json:"retain,omitempty"`
}

// Health checks daemon liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// CreateScenario registers a scenario with the daemon.
func (c *Client) CreateScenario(ctx context.Context, scenario *types.Scenario) (*types.Scenario, error) {
	var created types.Scenario
	if err := c.do(ctx, http.MethodPost, "/v1/scenarios", scenario, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListScenarios returns all registered scenarios.
func (c *Client) ListScenarios(ctx context.Context) ([]*types.Scenario, error) {
	var scenarios []*types.Scenario
	if err := c.do(ctx, http.MethodGet, "/v1/scenarios", nil, &scenarios); err != nil {
		return nil, err
	}
	return scenarios, nil
}

// GetScenario fetches one scenario by name.
func (c *Client) GetScenario(ctx context.Context, name string) (*types.Scenario, error) {
	var scenario types.Scenario
	if err := c.do(ctx, http.MethodGet, "/v1/scenarios/"+url.PathEscape(name), nil, &scenario); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// DeleteScenario removes a scenario. The daemon refuses while the
// scenario has a run in flight.
func (c *Client) DeleteScenario(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/v1/scenarios/"+url.PathEscape(name), nil, nil)
}

// CreateRun submits a run for the named scenario.
func (c *Client) CreateRun(ctx context.Context, scenario string, retain bool) (*types.Run, error) {
	var run types.Run
	req := CreateRunRequest{Scenario: scenario, Retain: retain}
	if err := c.do(ctx, http.MethodPost, "/v1/runs", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs, optionally filtered by scenario.
func (c *Client) ListRuns(ctx context.Context, scenario string) ([]*types.Run, error) {
	path := "/v1/runs"
	if scenario != "" {
		path += "?scenario=" + url.QueryEscape(scenario)
	}
	var runs []*types.Run
	if err := c.do(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun fetches one run by name.
func (c *Client) GetRun(ctx context.Context, name string) (*types.Run, error) {
	var run types.Run
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(name), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteRun cancels an executing run or deletes a finished run record.
func (c *Client) DeleteRun(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/v1/runs/"+url.PathEscape(name), nil, nil)
}

// WaitForRun polls until the run reaches a terminal phase. The
// onPhase callback, when non-nil, is invoked on every phase change.
func (c *Client) WaitForRun(ctx context.Context, name string, onPhase func(phase, message string)) (*types.Run, error) {
	lastPhase := ""
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		run, err := c.GetRun(ctx, name)
		if err != nil {
			return nil, err
		}
		if run.Status.Phase != lastPhase {
			lastPhase = run.Status.Phase
			if onPhase != nil {
				onPhase(run.Status.Phase, run.Status.Message)
			}
		}
		if run.Terminal() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

// do performs one API request, decoding a JSON response into out when
// non-nil and mapping non-2xx responses to *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		message := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
