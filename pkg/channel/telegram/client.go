// Package telegram implements the messaging channel on the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/go-go-golems/parley/pkg/markup"
	"github.com/go-go-golems/parley/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	// MaxFileSize is the largest file the Bot API lets bots download.
	MaxFileSize = 20 << 20
	// MaxMessageLength is the longest text sendMessage accepts, in characters.
	MaxMessageLength = 4096
)

var ErrFileTooLarge = errors.New("file is too large to download")

// APIError is a Bot API reply with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

func (e *APIError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// isMarkupError reports whether Telegram rejected the HTML of a message.
func isMarkupError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Description, "can't parse entities")
}

type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string
	urlOptions security.OutboundURLOptions
	retries    uint64
	backoff    time.Duration
}

var _ channel.Channel = (*Client)(nil)

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) { client.httpClient = c }
}

func WithBaseURL(u string) ClientOption {
	return func(client *Client) {
		if u != "" {
			client.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithURLOptions relaxes base URL validation, for local Bot API servers and tests.
func WithURLOptions(opts security.OutboundURLOptions) ClientOption {
	return func(client *Client) { client.urlOptions = opts }
}

// WithRetries sets how often transient failures are retried and the initial backoff.
func WithRetries(n uint64, backoff time.Duration) ClientOption {
	return func(client *Client) {
		client.retries = n
		if backoff > 0 {
			client.backoff = backoff
		}
	}
}

func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		token:      token,
		baseURL:    DefaultBaseURL,
		retries:    3,
		backoff:    500 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) retryPolicy() retry.Backoff {
	b := retry.NewExponential(c.backoff)
	b = retry.WithCappedDuration(10*time.Second, b)
	return retry.WithMaxRetries(c.retries, b)
}

// call posts params to a Bot API method and decodes the result into out.
// Transient failures are retried; API errors other than 429 and 5xx are not.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	if err := security.ValidateOutboundURL(c.baseURL, c.urlOptions); err != nil {
		return errors.Wrap(err, "invalid telegram base URL")
	}
	body, err := json.Marshal(params)
	if err != nil {
		return errors.Wrapf(err, "encoding %s params", method)
	}

	var resp response
	err = retry.Do(ctx, c.retryPolicy(), func(ctx context.Context) error {
		resp = response{}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		res, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(redact(err, c.token))
		}
		defer func() { _ = res.Body.Close() }()

		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			if res.StatusCode >= 500 {
				return retry.RetryableError(errors.Errorf("telegram %s returned status %d", method, res.StatusCode))
			}
			return errors.Wrapf(err, "decoding %s response", method)
		}
		if resp.OK {
			return nil
		}
		apiErr := &APIError{Method: method, Code: resp.ErrorCode, Description: resp.Description}
		if resp.Parameters != nil {
			apiErr.RetryAfter = time.Duration(resp.Parameters.RetryAfter) * time.Second
		}
		if apiErr.retryable() {
			log.Warn().Str("method", method).Int("code", apiErr.Code).Dur("retry_after", apiErr.RetryAfter).Msg("telegram: transient error")
			if apiErr.RetryAfter > 0 {
				select {
				case <-time.After(apiErr.RetryAfter):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return retry.RetryableError(apiErr)
		}
		return apiErr
	})
	if err != nil {
		return err
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(resp.Result, out), "decoding %s result", method)
}

// redact removes the bot token from transport errors, which include the request URL.
func redact(err error, token string) error {
	var urlErr *url.Error
	if token != "" && errors.As(err, &urlErr) {
		return errors.New(strings.ReplaceAll(urlErr.Error(), token, "<token>"))
	}
	return err
}

// GetUpdates long-polls for new updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// FetchFile resolves fileID with getFile and downloads its contents.
func (c *Client) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	var f File
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	if f.FileSize > MaxFileSize {
		return nil, errors.Wrapf(ErrFileTooLarge, "%s has %d bytes", fileID, f.FileSize)
	}
	if f.FilePath == "" {
		return nil, errors.Errorf("telegram returned no path for file %s", fileID)
	}

	var data []byte
	err := retry.Do(ctx, c.retryPolicy(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/file/bot"+c.token+"/"+f.FilePath, nil)
		if err != nil {
			return err
		}
		res, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(redact(err, c.token))
		}
		defer func() { _ = res.Body.Close() }()
		switch {
		case res.StatusCode >= 500:
			return retry.RetryableError(errors.Errorf("file download returned status %d", res.StatusCode))
		case res.StatusCode != http.StatusOK:
			return errors.Errorf("file download returned status %d", res.StatusCode)
		}
		data, err = io.ReadAll(io.LimitReader(res.Body, MaxFileSize+1))
		if err != nil {
			return retry.RetryableError(err)
		}
		if len(data) > MaxFileSize {
			return errors.Wrapf(ErrFileTooLarge, "%s", fileID)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "downloading file %s", fileID)
	}
	log.Debug().Str("file_id", fileID).Int("bytes", len(data)).Msg("telegram: file downloaded")
	return data, nil
}

func (c *Client) SendTyping(ctx context.Context, conversationID string) error {
	return c.call(ctx, "sendChatAction", map[string]any{
		"chat_id": conversationID,
		"action":  "typing",
	}, nil)
}

// SendMessage sends html with HTML parse mode. When Telegram rejects the
// markup the message is resent as plain text. Text longer than
// MaxMessageLength is sent in several plain messages.
func (c *Client) SendMessage(ctx context.Context, conversationID string, html string) error {
	if len([]rune(html)) <= MaxMessageLength {
		err := c.call(ctx, "sendMessage", map[string]any{
			"chat_id":    conversationID,
			"text":       html,
			"parse_mode": "HTML",
		}, nil)
		if err == nil || !isMarkupError(err) {
			return err
		}
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("telegram: markup rejected, sending plain text")
	}
	for _, part := range split(markup.StripTags(html), MaxMessageLength) {
		if err := c.call(ctx, "sendMessage", map[string]any{
			"chat_id": conversationID,
			"text":    part,
		}, nil); err != nil {
			return err
		}
	}
	return nil
}

// split cuts s into pieces of at most n runes, preferring line breaks.
func split(s string, n int) []string {
	var ret []string
	runes := []rune(s)
	for len(runes) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		ret = append(ret, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		ret = append(ret, string(runes))
	}
	return ret
}
