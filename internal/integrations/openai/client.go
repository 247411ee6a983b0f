package openai

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
	"sync"
	"time"

	"storybook-agent/internal/domain"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	tokenKey        = "open-ai-token"
	assistantsBeta  = "assistants=v2"
	listPageLimit   = 100
	maxResponseSize = 4 << 20
)

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, key string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// CredentialError reports that the API token could not be resolved.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("openai: resolve API token: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

func (e *CredentialError) Misconfigured() bool { return true }

// Client talks to the Assistants (threads/messages/runs) and Moderations
// endpoints of an OpenAI-compatible API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	getter     Getter

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Client backed by the given Getter for API key
// retrieval. The key is fetched on first use and reused for the lifetime of
// the process; failed lookups are retried on the next call.
func NewClient(ps Getter, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		getter:     ps,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	key, err := fetchAPIKeyFromParamStore(ctx, c.getter, tokenKey)
	if err != nil {
		return "", &CredentialError{Err: err}
	}
	c.apiKey = key
	return key, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// endpoint joins path onto the configured base URL, adding /v1 when the base
// does not already carry it.
func endpoint(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + path
}

func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out threadObject
	if err := c.call(ctx, http.MethodPost, "/threads", struct{}{}, &out); err != nil {
		return "", fmt.Errorf("openai: create thread: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("openai: create thread: empty thread id")
	}
	return out.ID, nil
}

// CreateRun starts the assistant on the thread. userText, when set, is added
// to the thread by the same request, so a rejected run leaves no orphaned
// message behind. instructions are appended to the assistant's own
// instructions for this run only.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID, instructions, userText string) (domain.Run, error) {
	if threadID == "" {
		return domain.Run{}, errors.New("openai: thread id must not be empty")
	}
	if assistantID == "" {
		return domain.Run{}, errors.New("openai: assistant id must not be empty")
	}
	var out runObject
	in := runRequest{
		AssistantID:            assistantID,
		AdditionalInstructions: instructions,
	}
	if userText != "" {
		in.AdditionalMessages = []messageRequest{{Role: string(domain.RoleUser), Content: userText}}
	}
	if err := c.call(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs", in, &out); err != nil {
		return domain.Run{}, fmt.Errorf("openai: create run: %w", err)
	}
	return out.toDomain(threadID), nil
}

func (c *Client) GetRun(ctx context.Context, threadID, runID string) (domain.Run, error) {
	if threadID == "" || runID == "" {
		return domain.Run{}, errors.New("openai: thread id and run id must not be empty")
	}
	var out runObject
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return domain.Run{}, fmt.Errorf("openai: get run: %w", err)
	}
	return out.toDomain(threadID), nil
}

// ListMessages returns the most recent page of thread messages, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]domain.ThreadMessage, error) {
	page, err := c.listPage(ctx, threadID, "")
	if err != nil {
		return nil, err
	}
	return page.toDomain(), nil
}

// ListAllMessages follows the list cursor until the thread is exhausted and
// returns every message, newest first.
func (c *Client) ListAllMessages(ctx context.Context, threadID string) ([]domain.ThreadMessage, error) {
	var (
		msgs  []domain.ThreadMessage
		after string
	)
	for {
		page, err := c.listPage(ctx, threadID, after)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, page.toDomain()...)
		if !page.HasMore || len(page.Data) == 0 {
			return msgs, nil
		}
		after = page.LastID
		if after == "" {
			after = page.Data[len(page.Data)-1].ID
		}
	}
}

func (c *Client) listPage(ctx context.Context, threadID, after string) (messageList, error) {
	if threadID == "" {
		return messageList{}, errors.New("openai: thread id must not be empty")
	}
	q := url.Values{}
	q.Set("order", "desc")
	q.Set("limit", fmt.Sprintf("%d", listPageLimit))
	if after != "" {
		q.Set("after", after)
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages?" + q.Encode()

	var out messageList
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return messageList{}, fmt.Errorf("openai: list messages: %w", err)
	}
	return out, nil
}

// Moderate calls the OpenAI Moderations API and returns true if the input is flagged.
func (c *Client) Moderate(ctx context.Context, input string) (bool, error) {
	var out moderationResponse
	if err := c.call(ctx, http.MethodPost, "/moderations", moderationRequest{Input: input}, &out); err != nil {
		return false, fmt.Errorf("openai: moderation: %w", err)
	}
	if len(out.Results) == 0 {
		return false, errors.New("openai: no results in moderation response")
	}
	return out.Results[0].Flagged, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	target := endpoint(c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("OpenAI-Beta", assistantsBeta)

	raw, err := c.doJSONRequest(req, target)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, key string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("openai: token parameter key is empty")
	}

	raw, err := getter.GetParameter(ctx, key)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("openai: API token is empty")
	}
	return tp.Token, nil
}
