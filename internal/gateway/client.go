// Package gateway is the only component allowed to talk to the remote
// reasoning service. Everything it sends has already been redacted and
// bounded upstream; this package adds transport, auth, timeouts, and the
// error taxonomy, nothing semantic.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/reverie-app/reverie/internal/capsule"
	"github.com/reverie-app/reverie/internal/errors"
)

const (
	generativeTimeout = 90 * time.Second
	metadataTimeout   = 30 * time.Second

	// Prompt metadata barely changes; cache it so list views and repeated
	// reflections don't hammer /v1/meta.
	metaCacheTTL = 5 * time.Minute
	metaCacheKey = "prompt_version"
)

// Request is the body for the generative endpoints. Text MUST be the
// redacted transcript; raw text never crosses this boundary.
type Request struct {
	Text               string            `json:"text"`
	RecordedAt         int64             `json:"recorded_at,omitempty"`
	Client             string            `json:"client"`
	AppVersion         string            `json:"app_version,omitempty"`
	PreviousResponseID string            `json:"previous_response_id,omitempty"`
	Capsule            *capsule.Snapshot `json:"capsule,omitempty"`
}

// Response is what the generative endpoints return.
type Response struct {
	Text          string `json:"text"`
	ResponseID    string `json:"response_id,omitempty"`
	PromptVersion string `json:"prompt_version"`
}

type metaResponse struct {
	PromptVersion string `json:"prompt_version"`
}

// Client calls the remote reasoning service.
type Client struct {
	baseURL    string
	apiKey     string
	clientName string
	appVersion string

	generative *http.Client
	metadata   *http.Client
	meta       *cache.Cache
	log        *zap.Logger
}

// NewClient builds a gateway client. baseURL may be empty, in which case
// every call fails fast with GATEWAY_UNAVAILABLE and the caller falls back
// to local seed content.
func NewClient(baseURL, apiKey, clientName, appVersion string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		clientName: clientName,
		appVersion: appVersion,
		generative: &http.Client{Timeout: generativeTimeout},
		metadata:   &http.Client{Timeout: metadataTimeout},
		meta:       cache.New(metaCacheTTL, 10*time.Minute),
		log:        log,
	}
}

// Available reports whether the gateway is configured.
func (c *Client) Available() bool {
	return c.baseURL != ""
}

// Reflect requests a reflection prompt for a finished turn.
func (c *Client) Reflect(ctx context.Context, req Request) (*Response, error) {
	return c.generate(ctx, "/v1/reflect", req)
}

// Continue requests a follow-up in an ongoing exchange. The request's
// PreviousResponseID ties it to the reflection it continues.
func (c *Client) Continue(ctx context.Context, req Request) (*Response, error) {
	return c.generate(ctx, "/v1/talk", req)
}

// PromptVersion returns the remote prompt revision, cached briefly.
func (c *Client) PromptVersion(ctx context.Context) (string, error) {
	if !c.Available() {
		return "", errors.NewGatewayUnavailable("gateway base URL is not configured")
	}
	if v, ok := c.meta.Get(metaCacheKey); ok {
		return v.(string), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/meta", nil)
	if err != nil {
		return "", fmt.Errorf("create meta request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.metadata.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gateway meta request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read meta response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.NewGatewayHTTP(resp.StatusCode, string(body))
	}

	var meta metaResponse
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", errors.NewGatewayDecode(err)
	}
	c.meta.Set(metaCacheKey, meta.PromptVersion, cache.DefaultExpiration)
	return meta.PromptVersion, nil
}

func (c *Client) generate(ctx context.Context, path string, req Request) (*Response, error) {
	if !c.Available() {
		return nil, errors.NewGatewayUnavailable("gateway base URL is not configured")
	}

	req.Client = c.clientName
	if req.AppVersion == "" {
		req.AppVersion = c.appVersion
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.generative.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("gateway returned error status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)))
		return nil, errors.NewGatewayHTTP(resp.StatusCode, string(body))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.NewGatewayDecode(err)
	}
	c.log.Debug("gateway call completed",
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(start)))
	return &out, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-Client", c.clientName)
}
