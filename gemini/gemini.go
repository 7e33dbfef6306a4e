package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	defaultModel       = "gemini-2.0-flash-lite"
	defaultBaseURL     = "https://generativelanguage.googleapis.com"
	defaultMaxAttempts = 3
	// Fixed wait between rate-limited attempts. Quotas on the free tier
	// reset per minute, so a flat wait slightly over a minute clears them;
	// exponential backoff buys nothing here.
	defaultRetryWait = 65 * time.Second
)

// Error classes for failed generation calls. Callers select behavior with
// errors.Is.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrNotFound    = errors.New("model not found")
	ErrTransport   = errors.New("transport failure")
	ErrMalformed   = errors.New("malformed response")
)

// SleepFunc waits for the given duration or until the context is done.
// Injectable for tests.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Client calls the Gemini generateContent API for short yes/no verdicts.
type Client struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	retryWait   time.Duration
	sleep       SleepFunc
	structured  bool
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the Gemini model to use.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMaxAttempts sets the attempt cap for rate-limited calls.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithRetryWait sets the fixed wait between rate-limited attempts.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) {
		c.retryWait = d
	}
}

// WithSleep replaces the wait function (for testing).
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// WithStructuredOutput requests a JSON {"relevant": bool} response instead
// of free text, for models that support constrained decoding.
func WithStructuredOutput(enabled bool) Option {
	return func(c *Client) {
		c.structured = enabled
	}
}

// NewClient creates a new Gemini client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		model:       defaultModel,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxAttempts: defaultMaxAttempts,
		retryWait:   defaultRetryWait,
		sleep:       defaultSleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decide sends the prompt and interprets the response as a binary verdict.
// Only rate limiting is retried, up to the attempt cap with a fixed wait;
// a missing model or a transport failure cannot be cured by retrying.
func (c *Client) Decide(ctx context.Context, prompt string) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		text, err := c.generate(ctx, prompt)
		if err == nil {
			return ParseDecision(text), nil
		}
		lastErr = err

		if !errors.Is(err, ErrRateLimited) {
			return false, err
		}
		if attempt == c.maxAttempts {
			break
		}

		slog.Warn("rate limited, waiting before retry",
			"attempt", attempt, "max_attempts", c.maxAttempts, "wait", c.retryWait)
		if err := c.sleep(ctx, c.retryWait); err != nil {
			return false, fmt.Errorf("%w: wait interrupted: %v", ErrTransport, err)
		}
	}
	return false, lastErr
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []requestContent{
			{Parts: []requestPart{{Text: prompt}}},
		},
		GenerationConfig: &generationConfig{
			Temperature:     0.1,
			MaxOutputTokens: 10,
			TopP:            0.1,
		},
	}
	if c.structured {
		reqBody.GenerationConfig.ResponseMimeType = "application/json"
		reqBody.GenerationConfig.ResponseSchema = &responseSchema{
			Type: "OBJECT",
			Properties: map[string]schemaField{
				"relevant": {Type: "BOOLEAN"},
			},
			Required: []string{"relevant"},
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrTransport, err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: send request: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: model %q", ErrNotFound, c.model)
	default:
		return "", fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrMalformed, err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidates in response", ErrMalformed)
	}

	return genResp.Candidates[0].Content.Parts[0].Text, nil
}

// affirmativeTokens are scanned in order against the normalized response.
// Prompt variants have produced all of these shapes at one time or another.
var affirmativeTokens = []string{"YES", "1", "RELEVANT", `"RELEVANT": TRUE`}

var codeBlockRegex = regexp.MustCompile("(?s)^\\s*```(?:json)?\\s*(.+?)\\s*```\\s*$")

// ParseDecision maps a model response to a verdict. Total and
// deterministic: a structured {"relevant": bool} body wins, else the
// normalized text is scanned for an affirmative token, else the answer is
// false. Unrecognized text is a negative verdict, never an error.
func ParseDecision(text string) bool {
	stripped := stripMarkdownCodeBlock(text)

	var structured struct {
		Relevant *bool `json:"relevant"`
	}
	if err := json.Unmarshal([]byte(stripped), &structured); err == nil && structured.Relevant != nil {
		return *structured.Relevant
	}

	norm := strings.ToUpper(strings.TrimSpace(text))
	for _, token := range affirmativeTokens {
		if strings.Contains(norm, token) {
			return true
		}
	}
	return false
}

func stripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if matches := codeBlockRegex.FindStringSubmatch(s); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return s
}

// Gemini API types

type generateRequest struct {
	Contents         []requestContent  `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64         `json:"temperature"`
	MaxOutputTokens  int             `json:"maxOutputTokens"`
	TopP             float64         `json:"topP"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   *responseSchema `json:"responseSchema,omitempty"`
}

type responseSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]schemaField `json:"properties"`
	Required   []string               `json:"required"`
}

type schemaField struct {
	Type string `json:"type"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content candidateContent `json:"content"`
}

type candidateContent struct {
	Parts []requestPart `json:"parts"`
}
