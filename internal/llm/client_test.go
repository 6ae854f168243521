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

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetries() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func apiResponse(text string) string {
	return `{
		"id": "msg_test",
		"type": "message",
		"role": "assistant",
		"content": [{"type": "text", "text": ` + mustJSON(text) + `}],
		"model": "claude-sonnet-4-20250514",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 120, "output_tokens": 30}
	}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestComplete_Success(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotBody anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(apiResponse(`[{"name": "Districts"}]`)))
	}))
	defer server.Close()

	client := NewAnthropicClient("test-key", "claude-sonnet-4-20250514",
		WithBaseURL(server.URL), WithRetryConfig(fastRetries()))

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{
		{Role: "system", Content: "You extract regattas."},
		{Role: "user", Content: "Extract from this schedule."},
	}})
	require.NoError(t, err)

	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "2023-06-01", gotVersion)
	assert.Equal(t, "You extract regattas.", gotBody.System)
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, "user", gotBody.Messages[0].Role)
	assert.Equal(t, 4096, gotBody.MaxTokens)

	assert.Equal(t, `[{"name": "Districts"}]`, resp.Content)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 150, resp.Usage.TotalTokens)
}

func TestComplete_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(apiResponse("ok")))
	}))
	defer server.Close()

	client := NewAnthropicClient("test-key", "test-model",
		WithBaseURL(server.URL), WithRetryConfig(fastRetries()))

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{
		{Role: "user", Content: "hello"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestComplete_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewAnthropicClient("test-key", "test-model",
		WithBaseURL(server.URL), WithRetryConfig(fastRetries()))

	_, err := client.Complete(context.Background(), Request{Messages: []Message{
		{Role: "user", Content: "hello"},
	}})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestComplete_FatalErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewAnthropicClient("bad-key", "test-model",
		WithBaseURL(server.URL), WithRetryConfig(fastRetries()))

	_, err := client.Complete(context.Background(), Request{Messages: []Message{
		{Role: "user", Content: "hello"},
	}})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestComplete_RequiresAPIKey(t *testing.T) {
	client := NewAnthropicClient("", "test-model")
	_, err := client.Complete(context.Background(), Request{Messages: []Message{
		{Role: "user", Content: "hello"},
	}})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestComplete_RequiresMessages(t *testing.T) {
	client := NewAnthropicClient("test-key", "test-model")
	_, err := client.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestComplete_ContextCancelDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fastRetries()
	cfg.BackoffBase = time.Minute
	cfg.MaxBackoff = time.Minute
	client := NewAnthropicClient("test-key", "test-model",
		WithBaseURL(server.URL), WithRetryConfig(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, Request{Messages: []Message{
		{Role: "user", Content: "hello"},
	}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCalculateBackoff_Caps(t *testing.T) {
	client := NewAnthropicClient("k", "m", WithRetryConfig(RetryConfig{
		MaxAttempts:       5,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Second,
	}))

	for attempt := 1; attempt <= 5; attempt++ {
		b := client.calculateBackoff(attempt)
		// 25% jitter on a 5s cap never exceeds 6.25s.
		assert.LessOrEqual(t, b, 6250*time.Millisecond, "attempt %d", attempt)
		assert.Positive(t, b)
	}
}
