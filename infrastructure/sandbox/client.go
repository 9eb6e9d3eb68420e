// Package sandbox implements the ResourceClient port over an HTTP sandbox
// provisioning API. Each sandbox is an isolated execution environment with
// create / status / exec / delete endpoints.
package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"

	"github.com/ahrav/go-rollout/internal/ports"
)

// Config holds the sandbox API connection settings.
type Config struct {
	// APIURL is the base URL of the sandbox provisioning service.
	APIURL string `env:"SANDBOX_API_URL" validate:"required,url"`

	// APIKey authenticates requests; empty disables the auth header.
	APIKey string `env:"SANDBOX_API_KEY"`

	// Timeout bounds each individual HTTP request.
	Timeout time.Duration `env:"SANDBOX_API_TIMEOUT, default=30s"`
}

// LoadConfig reads the sandbox connection settings from the environment.
func LoadConfig(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("process sandbox env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("sandbox config validation failed: %w", err)
	}
	return &cfg, nil
}

var _ ports.ResourceClient = (*Client)(nil)

// Client is a ResourceClient over the sandbox HTTP API.
type Client struct {
	http *resty.Client
}

// NewClient builds a sandbox API client from the given config.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	client := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Client{http: client}, nil
}

type createResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type execRequest struct {
	Command string `json:"command"`
}

type execResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Create provisions a new sandbox and returns its id. The sandbox may not
// be immediately visible to Status; callers poll for readiness.
func (c *Client) Create(ctx context.Context, cfg ports.ResourceConfig) (string, error) {
	var result createResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(cfg).
		SetResult(&result).
		Post("/v1/sandboxes")
	if err != nil {
		return "", fmt.Errorf("create sandbox: %w", err)
	}
	if resp.IsError() {
		return "", apiError("create", resp)
	}
	if result.ID == "" {
		return "", fmt.Errorf("create sandbox: %w: response missing id", ports.ErrInvalidResponse)
	}

	log.Debug().Str("sandbox_id", result.ID).Msg("sandbox created")
	return result.ID, nil
}

// Status reports the sandbox's lifecycle state. A 404 maps to
// ports.ErrResourceNotFound so callers can treat just-created sandboxes as
// transiently invisible.
func (c *Client) Status(ctx context.Context, id string) (ports.ResourceStatus, error) {
	var result statusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v1/sandboxes/" + id)
	if err != nil {
		return "", fmt.Errorf("sandbox status: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", ports.ErrResourceNotFound
	}
	if resp.IsError() {
		return "", apiError("status", resp)
	}

	switch s := ports.ResourceStatus(result.Status); s {
	case ports.ResourcePending, ports.ResourceProvisioning, ports.ResourceRunning,
		ports.ResourceError, ports.ResourceTerminated:
		return s, nil
	default:
		return "", fmt.Errorf("sandbox status: %w: unknown status %q", ports.ErrInvalidResponse, result.Status)
	}
}

// Execute runs a command in the sandbox and returns its output streams.
func (c *Client) Execute(ctx context.Context, id, command string) (ports.ExecResult, error) {
	var result execResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(execRequest{Command: command}).
		SetResult(&result).
		Post("/v1/sandboxes/" + id + "/exec")
	if err != nil {
		return ports.ExecResult{}, fmt.Errorf("sandbox exec: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ports.ExecResult{}, ports.ErrResourceNotFound
	}
	if resp.IsError() {
		return ports.ExecResult{}, apiError("exec", resp)
	}

	return ports.ExecResult{Stdout: result.Stdout, Stderr: result.Stderr}, nil
}

// Destroy deletes the sandbox. Deleting a sandbox that no longer exists is
// treated as success so teardown stays idempotent.
func (c *Client) Destroy(ctx context.Context, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/v1/sandboxes/" + id)
	if err != nil {
		return fmt.Errorf("destroy sandbox: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return apiError("destroy", resp)
	}

	log.Debug().Str("sandbox_id", id).Msg("sandbox destroyed")
	return nil
}

// apiError maps a non-2xx response to a sentinel-wrapped error so callers
// can classify failures without parsing bodies.
func apiError(op string, resp *resty.Response) error {
	var sentinel error
	switch resp.StatusCode() {
	case http.StatusTooManyRequests:
		sentinel = ports.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ports.ErrAuthenticationFailed
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		sentinel = ports.ErrServiceUnavailable
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		sentinel = ports.ErrTimeout
	default:
		return fmt.Errorf("sandbox %s: status %d: %s", op, resp.StatusCode(), resp.String())
	}
	return fmt.Errorf("sandbox %s: status %d: %w", op, resp.StatusCode(), sentinel)
}
