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

package schedule

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"sync"
)

// MockResponse represents a canned HTTP response for tests.
type MockResponse struct {
	// StatusCode is the HTTP status code to return (default: 200)
	StatusCode int
	// Body is the response body content
	Body string
	// Headers are the HTTP headers to include in the response
	Headers http.Header
	// Error simulates a network error
	Error error
}

type mockPattern struct {
	pattern  *regexp.Regexp
	response *MockResponse
}

// MockTransport implements http.RoundTripper for tests. Responses are
// registered per URL or per regex pattern; unregistered URLs get 404.
// Every request URL is recorded for assertions.
type MockTransport struct {
	responses map[string]*MockResponse
	patterns  []mockPattern
	requests  []string
	mutex     sync.RWMutex
}

// NewMockTransport creates an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses: make(map[string]*MockResponse),
	}
}

// RegisterResponse registers a mock response for an exact URL match.
func (m *MockTransport) RegisterResponse(url string, response *MockResponse) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if response.StatusCode == 0 {
		response.StatusCode = 200
	}
	if response.Headers == nil {
		response.Headers = make(http.Header)
	}
	m.responses[url] = response
}

// RegisterHTML registers an HTML response with status 200.
func (m *MockTransport) RegisterHTML(url, html string) {
	headers := make(http.Header)
	headers.Set("Content-Type", "text/html; charset=utf-8")

	m.RegisterResponse(url, &MockResponse{
		StatusCode: 200,
		Body:       html,
		Headers:    headers,
	})
}

// RegisterJSON registers a JSON response with status 200.
func (m *MockTransport) RegisterJSON(url, json string) {
	headers := make(http.Header)
	headers.Set("Content-Type", "application/json; charset=utf-8")

	m.RegisterResponse(url, &MockResponse{
		StatusCode: 200,
		Body:       json,
		Headers:    headers,
	})
}

// RegisterRedirect registers a 302 pointing at location.
func (m *MockTransport) RegisterRedirect(url, location string) {
	headers := make(http.Header)
	headers.Set("Location", location)

	m.RegisterResponse(url, &MockResponse{
		StatusCode: 302,
		Headers:    headers,
	})
}

// RegisterError registers a simulated network failure for a URL.
func (m *MockTransport) RegisterError(url string, err error) {
	m.RegisterResponse(url, &MockResponse{
		Error: err,
	})
}

// RegisterPattern registers a mock response for URLs matching a regex.
func (m *MockTransport) RegisterPattern(pattern string, response *MockResponse) error {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if response.StatusCode == 0 {
		response.StatusCode = 200
	}
	if response.Headers == nil {
		response.Headers = make(http.Header)
	}
	m.patterns = append(m.patterns, mockPattern{pattern: regex, response: response})
	return nil
}

// Requests returns the URLs requested so far, in order.
func (m *MockTransport) Requests() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]string{}, m.requests...)
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	url := req.URL.String()

	m.mutex.Lock()
	m.requests = append(m.requests, url)
	mockResp, found := m.responses[url]
	if !found {
		for _, p := range m.patterns {
			if p.pattern.MatchString(url) {
				mockResp = p.response
				found = true
				break
			}
		}
	}
	m.mutex.Unlock()

	if !found {
		return &http.Response{
			StatusCode: 404,
			Body:       io.NopCloser(bytes.NewBufferString("Not Found")),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}

	if mockResp.Error != nil {
		return nil, mockResp.Error
	}

	resp := &http.Response{
		StatusCode:    mockResp.StatusCode,
		Body:          io.NopCloser(bytes.NewBufferString(mockResp.Body)),
		Header:        cloneHeaders(mockResp.Headers),
		Request:       req,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		ContentLength: int64(len(mockResp.Body)),
	}
	return resp, nil
}

func cloneHeaders(headers http.Header) http.Header {
	clone := make(http.Header)
	for key, values := range headers {
		clone[key] = append([]string{}, values...)
	}
	return clone
}
