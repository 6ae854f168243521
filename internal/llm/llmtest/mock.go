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

// Package llmtest provides a mock llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/chris-edwards-pub/thistle-regatta-schedule/internal/llm"
)

// MockClient is a thread-safe mock llm.Client. It returns configured
// responses in sequence and records what it was asked.
type MockClient struct {
	mu            sync.Mutex
	Responses     []*llm.Response // returned in order
	Err           error           // takes precedence over Responses
	requests      []llm.Request
	callCount     int
	responseIndex int
}

// Complete implements llm.Client.
func (m *MockClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	m.callCount++

	if m.Err != nil {
		return nil, m.Err
	}

	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}

	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// CallCount returns the number of Complete calls.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastRequest returns the most recent request, or nil when none.
func (m *MockClient) LastRequest() *llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}
