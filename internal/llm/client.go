// Copyright 2026 Chris Edwards
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm provides the LLM client used for schedule extraction,
// with retry and backoff around the Anthropic messages API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// maxResponseSize caps the response body read from the API.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 4096
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"`
}

// Request is a completion request.
type Request struct {
	// Messages is the chat history to send.
	Messages []Message

	// Temperature controls randomness. nil uses the API default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the client default.
	MaxTokens int
}

// TokenUsage reports token consumption for a call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completion result.
type Response struct {
	// Content is the generated text.
	Content string

	// Model is the model that produced the response.
	Model string

	// Usage holds token consumption, when the API reports it.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// Client is the completion interface the extraction pipeline depends
// on. Tests substitute a mock; production wires AnthropicClient.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// AnthropicClient implements Client against the Anthropic messages API.
type AnthropicClient struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *logrus.Logger
}

// Option configures an AnthropicClient.
type Option func(*AnthropicClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *AnthropicClient) {
		a.httpClient = c
	}
}

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(u string) Option {
	return func(a *AnthropicClient) {
		a.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(a *AnthropicClient) {
		a.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(a *AnthropicClient) {
		a.logger = logger
	}
}

// NewAnthropicClient creates a client for the given API key and model.
func NewAnthropicClient(apiKey, model string, opts ...Option) *AnthropicClient {
	c := &AnthropicClient{
		apiKey:      apiKey,
		model:       model,
		baseURL:     defaultBaseURL,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // LLM responses can be slow
		},
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends a completion request, retrying transient failures
// with exponential backoff.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, NewFatalError(fmt.Errorf("at least one message is required"))
	}
	if c.apiKey == "" {
		return nil, NewFatalError(fmt.Errorf("API key is not configured"))
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if IsFatal(err) {
			return nil, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.WithFields(logrus.Fields{
				"attempt":      attempt,
				"max_attempts": c.retryConfig.MaxAttempts,
				"backoff":      backoff,
				"error":        err,
			}).Debug("LLM request failed, retrying")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, lastErr
}

// calculateBackoff computes exponential backoff with jitter. Jitter
// prevents synchronized retries across concurrent callers.
func (c *AnthropicClient) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// anthropicRequest is the messages API request format.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the messages API response format.
type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) doRequest(ctx context.Context, req Request) (*Response, error) {
	// The API carries the system prompt outside the messages list.
	var systemPrompt string
	var apiMessages []anthropicMessage
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemPrompt = msg.Content
			continue
		}
		apiMessages = append(apiMessages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Messages:    apiMessages,
		System:      systemPrompt,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	url := c.baseURL + "/v1/messages"
	c.logger.WithFields(logrus.Fields{
		"model":    c.model,
		"messages": len(apiMessages),
	}).Debug("Sending LLM request")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient.
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, NewFatalError(fmt.Errorf("parse anthropic response: %w", err))
	}

	var content string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	totalTokens := apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens
	return &Response{
		Content: content,
		Model:   apiResp.Model,
		Usage: TokenUsage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      totalTokens,
		},
		FinishReason: apiResp.StopReason,
	}, nil
}

// classifyHTTPError decides whether an HTTP error is worth retrying.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		return NewFatalError(err)
	case statusCode == http.StatusBadRequest:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}
