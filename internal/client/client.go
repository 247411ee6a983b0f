// Package client calls the storybook HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storybook-agent/internal/domain"
)

const maxResponseSize = 4 << 20

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client: base URL must not be empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("client: invalid base URL: %w", err)
	}
	// a turn can poll the assistant for close to a minute
	c := &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: 90 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type runRequest struct {
	ConversationHandle string              `json:"conversationHandle"`
	Text               string              `json:"text,omitempty"`
	StoryProfile       domain.StoryProfile `json:"storyProfile,omitempty"`
	HistoryRequested   bool                `json:"historyRequested,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ConversationHandle string `json:"conversationHandle"`
	}
	if err := c.do(ctx, http.MethodPost, "/threads", nil, &out); err != nil {
		return "", err
	}
	if out.ConversationHandle == "" {
		return "", errors.New("client: empty conversation handle")
	}
	return out.ConversationHandle, nil
}

func (c *Client) Send(ctx context.Context, handle, text string, profile domain.StoryProfile) (domain.TurnResult, error) {
	var out domain.TurnResult
	err := c.do(ctx, http.MethodPost, "/threads/run", runRequest{
		ConversationHandle: handle,
		Text:               text,
		StoryProfile:       profile,
	}, &out)
	return out, err
}

func (c *Client) History(ctx context.Context, handle string) ([]domain.HistoryMessage, error) {
	var out struct {
		History []domain.HistoryMessage `json:"history"`
	}
	err := c.do(ctx, http.MethodPost, "/threads/run", runRequest{ConversationHandle: handle, HistoryRequested: true}, &out)
	return out.History, err
}

func (c *Client) Stories(ctx context.Context, handle string) ([]domain.ArchivedStory, error) {
	var out struct {
		Stories []domain.ArchivedStory `json:"stories"`
	}
	err := c.do(ctx, http.MethodGet, "/stories/"+url.PathEscape(handle), nil, &out)
	return out.Stories, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("client: read response body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(res.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
