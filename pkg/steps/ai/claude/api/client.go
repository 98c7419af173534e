// Package api is a small client for the Anthropic Messages API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/parley/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"
)

// ErrorResponse represents the API's error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// APIError is returned for non-200 responses.
type APIError struct {
	StatusCode int
	Detail     ErrorDetail
}

func (e *APIError) Error() string {
	if e.Detail.Message == "" {
		return "claude API returned status " + http.StatusText(e.StatusCode)
	}
	return "claude API error (" + e.Detail.Type + "): " + e.Detail.Message
}

// Client represents the Claude API client.
type Client struct {
	httpClient *http.Client
	apiKey     string
	APIVersion string
	BaseURL    string
	urlOptions security.OutboundURLOptions
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) { client.httpClient = c }
}

func WithAPIVersion(v string) ClientOption {
	return func(client *Client) { client.APIVersion = v }
}

// WithURLOptions relaxes base URL validation, for proxies and tests.
func WithURLOptions(opts security.OutboundURLOptions) ClientOption {
	return func(client *Client) { client.urlOptions = opts }
}

// NewClient initializes and returns a new API client.
func NewClient(apiKey string, baseURL string, options ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIVersion: defaultAPIVersion,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.APIVersion)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) post(ctx context.Context, req *MessageRequest) (*http.Response, error) {
	if err := security.ValidateOutboundURL(c.BaseURL, c.urlOptions); err != nil {
		return nil, errors.Wrap(err, "invalid claude base URL")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encoding message request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	log.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).Int("tools", len(req.Tools)).Bool("stream", req.Stream).Msg("sending claude request")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode}
		respBody, _ := io.ReadAll(resp.Body)
		var errorResp ErrorResponse
		if json.Unmarshal(respBody, &errorResp) == nil {
			apiErr.Detail = errorResp.Error
		}
		return nil, apiErr
	}
	return resp, nil
}

// SendMessage sends a message request and returns the complete response.
func (c *Client) SendMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	req.Stream = false
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	var messageResp MessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&messageResp); err != nil {
		return nil, errors.Wrap(err, "decoding message response")
	}
	return &messageResp, nil
}

// StreamMessage sends a streaming request. The caller must Close the stream.
func (c *Client) StreamMessage(ctx context.Context, req *MessageRequest) (*Stream, error) {
	req.Stream = true
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	return NewStream(resp.Body), nil
}
