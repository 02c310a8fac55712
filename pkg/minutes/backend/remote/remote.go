// Package remote is an inference backend that calls an HTTP inference
// server. Calls go through a circuit breaker and are retried on transient
// failures.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/buildinfo"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/credentials"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/resilience"
)

// DefaultBaseURL is used when no URL is configured.
const DefaultBaseURL = "http://localhost:8500"

// StatusError is a non-2xx response from the inference server.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference server returned status %d: %s", e.Status, e.Body)
}

// Transient reports whether the request may succeed if repeated.
func (e *StatusError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Breaker resilience.BreakerConfig
	Retry   resilience.RetryConfig
}

// Client implements backend.Backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	keys    credentials.Source
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	logger  logging.Logger

	mu     sync.RWMutex
	device string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCredentials sets the API key source. Without one, requests are sent
// unauthenticated.
func WithCredentials(src credentials.Source) Option {
	return func(c *Client) {
		c.keys = src
	}
}

// New creates a remote backend client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		retry:   cfg.Retry,
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.Component("remote-backend"), logging.F("base_url", c.baseURL))
	c.breaker = resilience.NewBreaker("inference", cfg.Breaker, c.logger)
	c.retry.IsRetryable = isTransient
	return c
}

func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

type loadRequest struct {
	Model string       `json:"model"`
	Task  backend.Task `json:"task"`
}

type loadResponse struct {
	ID     string `json:"id"`
	Device string `json:"device"`
}

type inferRequest struct {
	ModelID string         `json:"model_id"`
	Inputs  []string       `json:"inputs"`
	Params  backend.Params `json:"params"`
}

type inferResponse struct {
	Outputs []backend.Output `json:"outputs"`
}

type unloadRequest struct {
	ModelID string `json:"model_id"`
}

type deviceResponse struct {
	Device     string `json:"device"`
	FreeMemory uint64 `json:"free_memory"`
	HasGPU     bool   `json:"accelerator"`
}

// Load asks the server to load model for task.
func (c *Client) Load(ctx context.Context, model string, task backend.Task) (backend.ModelRef, error) {
	var resp loadResponse
	if err := c.call(ctx, "/v1/models/load", loadRequest{Model: model, Task: task}, &resp); err != nil {
		return backend.ModelRef{}, fmt.Errorf("loading %s: %w", model, err)
	}
	if resp.ID == "" {
		return backend.ModelRef{}, fmt.Errorf("loading %s: server returned no model id", model)
	}
	if resp.Device != "" {
		c.mu.Lock()
		c.device = resp.Device
		c.mu.Unlock()
	}
	return backend.ModelRef{
		ID:       resp.ID,
		Model:    model,
		Task:     task,
		Device:   resp.Device,
		LoadedAt: time.Now(),
	}, nil
}

// Infer runs a batch through ref.
func (c *Client) Infer(ctx context.Context, ref backend.ModelRef, batch []string, params backend.Params) ([]backend.Output, error) {
	var resp inferResponse
	req := inferRequest{ModelID: ref.ID, Inputs: batch, Params: params}
	if err := c.call(ctx, "/v1/infer", req, &resp); err != nil {
		return nil, fmt.Errorf("inference with %s: %w", ref.Model, err)
	}
	return resp.Outputs, nil
}

// Unload releases ref on the server.
func (c *Client) Unload(ctx context.Context, ref backend.ModelRef) error {
	if err := c.call(ctx, "/v1/models/unload", unloadRequest{ModelID: ref.ID}, nil); err != nil {
		return fmt.Errorf("unloading %s: %w", ref.Model, err)
	}
	return nil
}

// Device returns the device reported by the last load, or "remote".
func (c *Client) Device() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.device == "" {
		return "remote"
	}
	return c.device
}

// FreeMemory asks the server for free accelerator memory. It reports false
// when the server has no accelerator or cannot be reached.
func (c *Client) FreeMemory() (uint64, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var resp deviceResponse
	if err := c.do(ctx, http.MethodGet, "/v1/device", nil, &resp); err != nil {
		c.logger.Debug("Device probe failed", logging.Err(err))
		return 0, false
	}
	return resp.FreeMemory, resp.HasGPU
}

// BreakerState exposes the circuit breaker state for health reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *Client) call(ctx context.Context, path string, body, out any) error {
	return resilience.Retry(ctx, c.retry, c.logger, func(ctx context.Context) error {
		_, err := resilience.Execute(c.breaker, isTransient, func() (struct{}, error) {
			return struct{}{}, c.do(ctx, http.MethodPost, path, body, out)
		})
		return err
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent("minutes"))
	if c.keys != nil {
		key, err := c.keys.APIKey()
		switch {
		case err == nil:
			req.Header.Set("Authorization", "Bearer "+key)
		case !errors.Is(err, credentials.ErrNoAPIKey):
			return fmt.Errorf("reading API key: %w", err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling inference server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
