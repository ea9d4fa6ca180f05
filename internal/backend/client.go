// Package backend implements the HTTP BackendClient against an
// Ollama-compatible model server: loading is an empty generate call with
// a keep_alive horizon, unloading sets keep_alive to zero, and the live
// loaded set comes from /api/ps.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"agentd/internal/orchestrator"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultRequestTimeout = 10 * time.Minute
	defaultConnectTimeout = 5 * time.Second
)

// Config encapsulates HTTP client tunables.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

// Client talks to the model server over HTTP. Requests carry
// context-based deadlines; the http.Client timeout stays 0 so long model
// loads are governed by ctx alone.
type Client struct {
	baseURL    string
	reqTimeout time.Duration
	httpClient *http.Client
}

// New constructs a Client.
func New(cfg Config) *Client {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	reqTimeout := cfg.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = defaultRequestTimeout
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		reqTimeout: reqTimeout,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
	}
}

type generateRequest struct {
	Model string `json:"model"`
	// Prompt intentionally omitted on load/unload calls: an empty generate
	// request only (un)loads the model.
	Prompt    string `json:"prompt,omitempty"`
	Stream    bool   `json:"stream"`
	KeepAlive any    `json:"keep_alive,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type psResponse struct {
	Models []struct {
		Name     string `json:"name"`
		Model    string `json:"model"`
		SizeVRAM int64  `json:"size_vram"`
		Size     int64  `json:"size"`
	} `json:"models"`
}

// Load asks the server to hold the model resident for keepAlive.
func (c *Client) Load(ctx context.Context, id string, keepAlive time.Duration) error {
	body := generateRequest{Model: id, Stream: false, KeepAlive: keepAlive.String()}
	var out generateResponse
	if err := c.postJSON(ctx, "/api/generate", body, &out); err != nil {
		return fmt.Errorf("load %s: %w", id, err)
	}
	return nil
}

// Unload drops the model by setting keep_alive to zero.
func (c *Client) Unload(ctx context.Context, id string) error {
	body := generateRequest{Model: id, Stream: false, KeepAlive: 0}
	var out generateResponse
	if err := c.postJSON(ctx, "/api/generate", body, &out); err != nil {
		return fmt.Errorf("unload %s: %w", id, err)
	}
	return nil
}

// ListLoaded reports the server's live loaded-model list.
func (c *Client) ListLoaded(ctx context.Context) ([]orchestrator.BackendResource, error) {
	ctx, cancel := context.WithTimeout(ctx, c.reqTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ps", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list loaded: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list loaded: unexpected status %d", resp.StatusCode)
	}
	var ps psResponse
	if err := json.NewDecoder(resp.Body).Decode(&ps); err != nil {
		return nil, fmt.Errorf("list loaded: decode: %w", err)
	}
	out := make([]orchestrator.BackendResource, 0, len(ps.Models))
	for _, m := range ps.Models {
		id := m.Model
		if id == "" {
			id = m.Name
		}
		size := m.SizeVRAM
		if size == 0 {
			size = m.Size
		}
		out = append(out, orchestrator.BackendResource{ID: id, SizeMB: int(size / (1024 * 1024))})
	}
	return out, nil
}

// HealthCheck verifies the server answers at all.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}

// Generate runs a blocking completion against a loaded model.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	body := generateRequest{Model: model, Prompt: prompt, Stream: false}
	var out generateResponse
	if err := c.postJSON(ctx, "/api/generate", body, &out); err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return out.Response, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
