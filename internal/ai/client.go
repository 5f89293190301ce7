package ai

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
)

// DefaultOpenRouterURL is the OpenRouter chat completions base.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// Client talks to OpenRouter's OpenAI-compatible chat endpoint.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the provider-neutral request shape. Temperature is always
// sent so that 0 selects deterministic decoding.
type GenerateRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Message Message `json:"message"`
}

type GenerateResponse struct {
	ID        string   `json:"id"`
	Choices   []Choice `json:"choices"`
	Usage     Usage    `json:"usage"`
	RequestID string   `json:"-"`
}

// Text returns the first choice's content.
func (r *GenerateResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// APIError represents a structured API error response.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Raw        map[string]any `json:"-"`
	RequestID  string         `json:"-"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api error: status=%d", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " code=%s", e.Code)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " request_id=%s", e.RequestID)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " message=%s", e.Message)
	}
	return b.String()
}

// Is makes every provider error match ErrModelError.
func (e *APIError) Is(target error) bool { return target == ErrModelError }

// NewOpenRouterClient returns a client with the default timeout.
func NewOpenRouterClient(apiKey string) *Client {
	return NewClient(apiKey, 60*time.Second)
}

// NewClient builds an OpenRouter client with a custom HTTP timeout.
func NewClient(apiKey string, httpTimeout time.Duration) *Client {
	return NewClientWithBaseURL(apiKey, httpTimeout, "")
}

// NewClientWithBaseURL allows injecting a custom base URL (used in tests).
func NewClientWithBaseURL(apiKey string, httpTimeout time.Duration, baseURL string) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func validateRequest(req GenerateRequest) error {
	if req.Model == "" {
		return errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return errors.New("messages cannot be empty")
	}
	return nil
}

// Generate sends one chat completion request. There is no retry: a failed
// call surfaces immediately as an UnreachableError or an APIError.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("missing OpenRouter API key")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.apiKey)
	headers.Set("HTTP-Referer", "https://github.com/KaramelBytes/dataloom-cli")
	headers.Set("X-Title", "dataloom")

	var out GenerateResponse
	rid, err := postJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", headers, req, &out)
	if err != nil {
		return nil, err
	}
	out.RequestID = rid
	if out.Text() == "" {
		return nil, fmt.Errorf("%w (request_id=%s)", ErrEmptyResponse, rid)
	}
	return &out, nil
}

// postJSON performs a single JSON POST and decodes a 2xx body into out.
// Transport failures become UnreachableError and non-2xx statuses become
// classified APIErrors. It returns the provider request id, if any.
func postJSON(ctx context.Context, hc *http.Client, endpoint string, headers http.Header, body, out any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return "", &UnreachableError{Host: hostOf(endpoint), Err: err}
	}
	defer resp.Body.Close()
	rid := extractRequestID(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rid, parseAPIError(resp, rid)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return rid, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err), RequestID: rid}
	}
	return rid, nil
}

// parseAPIError reads an error body in either the OpenAI/OpenRouter shape
// ({"error":{"message","code"}}), the Google shape ({"error":{"status"}}) or
// Ollama's flat {"error":"..."}.
func parseAPIError(resp *http.Response, rid string) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: rid}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err == nil {
		apiErr.Raw = raw
		switch v := raw["error"].(type) {
		case map[string]any:
			if msg, ok := v["message"].(string); ok {
				apiErr.Message = msg
			}
			if code, ok := v["code"].(string); ok {
				apiErr.Code = code
			} else if status, ok := v["status"].(string); ok {
				apiErr.Code = strings.ToLower(status)
			}
		case string:
			apiErr.Message = v
		}
	} else if s := strings.TrimSpace(string(data)); s != "" {
		apiErr.Message = s
	}
	return classifyAPIError(apiErr, resp)
}

// classifyAPIError maps generic APIError to typed errors for better UX.
func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	sc := apiErr.StatusCode
	msg := apiErr.Message
	code := apiErr.Code
	switch {
	case sc == http.StatusUnauthorized || sc == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case sc == http.StatusTooManyRequests:
		if code == "resource_exhausted" && containsAnyFold(msg, "quota", "billing") {
			return &QuotaExceededError{APIError: apiErr}
		}
		var ra time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
				ra = d
			}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: ra}
	case sc == http.StatusNotFound:
		if code == "model_not_found" || containsAllFold(msg, "model", "not", "found") {
			return &ModelNotFoundError{APIError: apiErr}
		}
		return apiErr
	case sc == http.StatusBadRequest:
		if containsAnyFold(msg, "api key not valid", "api_key_invalid") {
			return &AuthError{APIError: apiErr}
		}
		return &BadRequestError{APIError: apiErr}
	case code == "quota_exceeded" || containsAnyFold(msg, "quota", "billing"):
		return &QuotaExceededError{APIError: apiErr}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

func containsAllFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if !containsFold(s, sub) {
			return false
		}
	}
	return true
}

func containsAnyFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if containsFold(s, sub) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	if s == "" || sub == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// extractRequestID attempts to read a provider request id from common headers.
func extractRequestID(resp *http.Response) string {
	for _, h := range []string{"X-Request-Id", "X-Request-ID", "Openrouter-Request-Id", "X-Goog-Request-Id"} {
		if v := resp.Header.Get(h); v != "" {
			return v
		}
	}
	return ""
}

// hostOf strips the path and query (which may carry a key) from an endpoint.
func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}
