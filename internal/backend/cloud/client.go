// Package cloud implements the hosted generation service backend. It is
// the only built-in backend type; on-device engines are registered by the
// embedding application.
package cloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/storyloom/storyloom-orchestrator/internal/domain"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client is an HTTP client for the hosted generation API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	RequestID string         `json:"request_id,omitempty"`
	Prompt    string         `json:"prompt"`
	Params    map[string]any `json:"params,omitempty"`
}

type textResponse struct {
	Text string `json:"text"`
}

type audioResponse struct {
	AudioBase64 string `json:"audio_base64"`
	MIMEType    string `json:"mime_type"`
}

type apiError struct {
	Message string `json:"message"`
}

// GenerateText requests a text artifact from the hosted service.
func (c *Client) GenerateText(ctx context.Context, req *domain.GenerationRequest) (*domain.Artifact, error) {
	body, err := c.post(ctx, "/v1/generate/text", req)
	if err != nil {
		return nil, err
	}

	var result textResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &domain.Artifact{Kind: domain.KindText, Text: result.Text}, nil
}

// GenerateAudio requests an audio artifact from the hosted service.
func (c *Client) GenerateAudio(ctx context.Context, req *domain.GenerationRequest) (*domain.Artifact, error) {
	body, err := c.post(ctx, "/v1/generate/audio", req)
	if err != nil {
		return nil, err
	}

	var result audioResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(result.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}

	return &domain.Artifact{Kind: domain.KindAudio, Audio: audio, MIMEType: result.MIMEType}, nil
}

func (c *Client) post(ctx context.Context, path string, req *domain.GenerationRequest) ([]byte, error) {
	payload, err := json.Marshal(generateRequest{
		RequestID: req.RequestID,
		Prompt:    req.Prompt,
		Params:    req.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
