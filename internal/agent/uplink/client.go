// Package uplink is the agent's HTTP client for the coordinator API
// (spec.md §4.4, §6): register, heartbeat, fetch targets, submit
// results. Grounded on the teacher's internal/uplink.Client — same
// Config/Dependencies split — generalized
// from a fixed result-envelope protocol to Storm's register/heartbeat/
// targets/results verbs and its 3-retry exponential backoff policy.
package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/iRazvan2745/Storm/pkg/stormapi"
)

const (
	pathRegister      = "/api/register"
	pathHeartbeat     = "/api/heartbeat"
	pathTargets       = "/api/targets"
	pathCheckUpdates  = "/api/targets/check-updates"
	pathResults       = "/api/results"
	requestTimeout    = 10 * time.Second
	maxRetries        = 3
	maxBackoff        = 10 * time.Second
)

// Config holds the static client configuration.
type Config struct {
	ServerURL string
	APIKey    string
	AgentName string
}

// Dependencies allow test overrides for HTTP client and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client is the agent's coordinator-facing HTTP client.
type Client struct {
	httpClient *http.Client
	serverURL  string
	apiKey     string
	agentName  string
	agentID    string
	logger     *log.Logger
}

func NewClient(cfg Config, deps Dependencies) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		httpClient: httpClient,
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		apiKey:     cfg.APIKey,
		agentName:  cfg.AgentName,
		logger:     logger,
	}, nil
}

// SetAgentID records the id returned by Register, so later calls
// (Heartbeat, SubmitResults) can stamp x-agent-id.
func (c *Client) SetAgentID(id string) {
	c.agentID = id
}

func (c *Client) AgentID() string {
	return c.agentID
}

// Register posts {name, location} and retries per spec.md §4.4.
// A failed register is fatal at startup — the caller decides that; this
// only reports the final error.
func (c *Client) Register(ctx context.Context, name, location string) (stormapi.RegisterResponse, error) {
	var out stormapi.RegisterResponse
	body, err := json.Marshal(stormapi.RegisterRequest{Name: name, Location: location})
	if err != nil {
		return out, fmt.Errorf("marshal register request: %w", err)
	}

	err = c.withRetry(ctx, "register", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, pathRegister, body, true, &out)
	})
	return out, err
}

// Heartbeat posts an empty body with x-agent-id set.
func (c *Client) Heartbeat(ctx context.Context) (stormapi.HeartbeatResponse, error) {
	var out stormapi.HeartbeatResponse
	err := c.doJSON(ctx, http.MethodPost, pathHeartbeat, nil, true, &out)
	return out, err
}

// FetchTargets retries per spec.md §4.4 and returns the full target list.
func (c *Client) FetchTargets(ctx context.Context) (stormapi.TargetsResponse, error) {
	var out stormapi.TargetsResponse
	err := c.withRetry(ctx, "fetch-targets", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, pathTargets, nil, false, &out)
	})
	return out, err
}

// CheckUpdates polls the coordinator's TargetSetVersion.
func (c *Client) CheckUpdates(ctx context.Context, lastChecked time.Time) (stormapi.CheckUpdatesResponse, error) {
	var out stormapi.CheckUpdatesResponse
	path := fmt.Sprintf("%s?lastChecked=%d", pathCheckUpdates, lastChecked.UnixMilli())
	err := c.doJSON(ctx, http.MethodGet, path, nil, false, &out)
	return out, err
}

// SubmitResults posts a batch of results. Per spec.md §4.4/§9, a
// submission that exhausts its retries is dropped (logged, not
// queued) unless the caller has wired a backfill spill on top.
func (c *Client) SubmitResults(ctx context.Context, results []stormapi.CheckResult) error {
	if len(results) == 0 {
		return nil
	}
	body, err := json.Marshal(stormapi.SubmitResultsRequest{Results: results})
	if err != nil {
		return fmt.Errorf("marshal results batch: %w", err)
	}
	return c.withRetry(ctx, "submit-results", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, pathResults, body, true, nil)
	})
}

func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1000*(1<<uint(attempt-1))) * time.Millisecond
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		c.logger.Printf("%s attempt %d/%d failed: %v", op, attempt+1, maxRetries+1, lastErr)
	}
	return fmt.Errorf("%s: exhausted %d retries: %w", op, maxRetries, lastErr)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, authenticated bool, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Storm/"+c.agentName)
	if c.agentID != "" {
		req.Header.Set("x-agent-id", c.agentID)
	}
	if authenticated {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
