// Package client provides a typed HTTP client for the voxd control API. The
// API binds loopback only and carries no authentication, so the client speaks
// plain HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Client communicates with a running voxd daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8900/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new voxd API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8900/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// LaunchRequest mirrors the daemon's engine launch config.
type LaunchRequest struct {
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	Voice       string `json:"voice,omitempty"`
	AutoRestart bool   `json:"auto_restart"`
}

// EngineStatus mirrors the supervisor snapshot returned by the daemon.
type EngineStatus struct {
	Status          string    `json:"status"`
	PID             int       `json:"pid,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	LastHealthCheck time.Time `json:"last_health_check,omitempty"`
	RestartAttempts int       `json:"restart_attempts"`
	PackageVersion  string    `json:"package_version,omitempty"`
}

// SpeakRequest mirrors the daemon's synthesis request.
type SpeakRequest struct {
	Input  string  `json:"input"`
	Voice  string  `json:"voice,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
	Format string  `json:"response_format,omitempty"`
}

// IsReachable probes the daemon's health endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Install asks the daemon to install or repair the engine runtime.
func (c *Client) Install(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, c.baseURL+"/engine/install", nil, nil)
}

// StartEngine starts the engine with the given launch parameters. Zero fields
// fall back to the daemon's configured defaults.
func (c *Client) StartEngine(ctx context.Context, req LaunchRequest) (EngineStatus, error) {
	var st EngineStatus
	body, err := json.Marshal(req)
	if err != nil {
		return st, err
	}
	err = c.doJSON(ctx, http.MethodPost, c.baseURL+"/engine/start", body, &st)
	return st, err
}

// StopEngine stops the engine; idempotent on the daemon side.
func (c *Client) StopEngine(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, c.baseURL+"/engine/stop", nil, nil)
}

// RestartEngine stops then starts the engine with the given parameters.
func (c *Client) RestartEngine(ctx context.Context, req LaunchRequest) (EngineStatus, error) {
	var st EngineStatus
	body, err := json.Marshal(req)
	if err != nil {
		return st, err
	}
	err = c.doJSON(ctx, http.MethodPost, c.baseURL+"/engine/restart", body, &st)
	return st, err
}

// Status returns the engine snapshot.
func (c *Client) Status(ctx context.Context) (EngineStatus, error) {
	var st EngineStatus
	err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/engine/status", nil, &st)
	return st, err
}

// Logs returns up to n recent engine log lines.
func (c *Client) Logs(ctx context.Context, n int) ([]string, error) {
	url := c.baseURL + "/engine/logs"
	if n > 0 {
		url += "?n=" + strconv.Itoa(n)
	}
	var out struct {
		Lines []string `json:"lines"`
	}
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &out); err != nil {
		return nil, err
	}
	return out.Lines, nil
}

// Voices lists the voices the engine currently offers.
func (c *Client) Voices(ctx context.Context) ([]string, error) {
	var out struct {
		Voices []string `json:"voices"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/voices", nil, &out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}

// Speak synthesizes req and returns the audio stream. The caller must close
// the returned reader.
func (c *Client) Speak(ctx context.Context, req SpeakRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/speak", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, errorFromResponse(resp)
	}
	return resp.Body, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.logger.Debug("control API request", "method", method, "url", url)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorFromResponse(resp *http.Response) error {
	var er struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &er) == nil && er.Error != "" {
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, er.Error)
	}
	return fmt.Errorf("daemon returned status %d", resp.StatusCode)
}
