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
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
)

// publicGuard resolves every hostname to a public address so fetch
// tests can use made-up hosts.
func publicGuard() *URLGuard {
	return guardResolvingTo("93.184.216.34")
}

func newTestFetcher(transport *MockTransport) *Fetcher {
	f := NewFetcher(publicGuard())
	f.Client = &http.Client{Transport: transport}
	return f
}

func TestFetch_Basic(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterHTML("https://example.com/schedule", "<html><body>Spring Regatta</body></html>")

	f := newTestFetcher(transport)
	res, err := f.Fetch(context.Background(), "https://example.com/schedule")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !res.IsHTML() {
		t.Error("Expected HTML content type")
	}
	if !strings.Contains(res.Body, "Spring Regatta") {
		t.Error("Expected body content")
	}
	if res.FinalURL != "https://example.com/schedule" {
		t.Errorf("Unexpected final URL %s", res.FinalURL)
	}
}

func TestFetch_SetsUserAgent(t *testing.T) {
	var gotUA string
	f := NewFetcher(publicGuard())
	f.Client = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotUA = req.Header.Get("User-Agent")
		return htmlResponse(req, "ok"), nil
	})}

	if _, err := f.Fetch(context.Background(), "https://example.com/"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotUA != "RaceCrewNetwork/1.0" {
		t.Errorf("Expected default user agent, got %q", gotUA)
	}
}

func TestFetch_FollowsRedirects(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterRedirect("https://example.com/old", "https://example.com/new")
	transport.RegisterHTML("https://example.com/new", "<html>moved here</html>")

	f := newTestFetcher(transport)
	res, err := f.Fetch(context.Background(), "https://example.com/old")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.FinalURL != "https://example.com/new" {
		t.Errorf("Expected final URL to be the redirect target, got %s", res.FinalURL)
	}
}

func TestFetch_RedirectToPrivateAddressRejected(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterRedirect("https://example.com/page", "http://169.254.169.254/latest/meta-data/")

	f := newTestFetcher(transport)
	_, err := f.Fetch(context.Background(), "https://example.com/page")
	var secErr *SecurityError
	if !errors.As(err, &secErr) {
		t.Fatalf("Expected SecurityError on redirect to metadata address, got %v", err)
	}
	// The blocked hop must never be requested.
	for _, u := range transport.Requests() {
		if strings.Contains(u, "169.254.169.254") {
			t.Error("Request was issued to the blocked address")
		}
	}
}

func TestFetch_RedirectToPrivateHostname(t *testing.T) {
	g := NewURLGuard()
	g.LookupIP = func(_ context.Context, host string) ([]net.IP, error) {
		if host == "internal-service.example.com" {
			return []net.IP{net.ParseIP("10.0.0.8")}, nil
		}
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	}

	transport := NewMockTransport()
	transport.RegisterRedirect("https://example.com/page", "https://internal-service.example.com/secrets")

	f := NewFetcher(g)
	f.Client = &http.Client{Transport: transport}

	_, err := f.Fetch(context.Background(), "https://example.com/page")
	var secErr *SecurityError
	if !errors.As(err, &secErr) {
		t.Fatalf("Expected SecurityError, got %v", err)
	}
}

func TestFetch_TooManyRedirects(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterRedirect("https://example.com/a", "https://example.com/b")
	transport.RegisterRedirect("https://example.com/b", "https://example.com/a")

	f := newTestFetcher(transport)
	f.MaxRedirects = 3

	_, err := f.Fetch(context.Background(), "https://example.com/a")
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("Expected ErrTooManyRedirects, got %v", err)
	}
}

func TestFetch_DeclaredOversizeBody(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterHTML("https://example.com/big", strings.Repeat("x", 1000))

	f := newTestFetcher(transport)
	f.MaxBodySize = 100

	_, err := f.Fetch(context.Background(), "https://example.com/big")
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("Expected ErrBodyTooLarge, got %v", err)
	}
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterResponse("https://example.com/gone", &MockResponse{StatusCode: 404, Body: "not found"})

	f := newTestFetcher(transport)
	_, err := f.Fetch(context.Background(), "https://example.com/gone")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != 404 {
		t.Errorf("Expected status 404, got %d", fetchErr.StatusCode)
	}
}

func TestFetch_NetworkError(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterError("https://example.com/down", errors.New("connection refused"))

	f := newTestFetcher(transport)
	_, err := f.Fetch(context.Background(), "https://example.com/down")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
}

func TestLimitRule_RequiresPattern(t *testing.T) {
	f := newTestFetcher(NewMockTransport())
	if err := f.Limit(&LimitRule{Parallelism: 2}); !errors.Is(err, ErrNoPattern) {
		t.Fatalf("Expected ErrNoPattern, got %v", err)
	}
}

func TestLimitRule_Match(t *testing.T) {
	rule := &LimitRule{DomainGlob: "*.example.com", Parallelism: 1}
	if err := rule.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !rule.Match("www.example.com") {
		t.Error("Expected glob to match subdomain")
	}
	if rule.Match("example.org") {
		t.Error("Expected glob not to match other domain")
	}
}

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func htmlResponse(req *http.Request, body string) *http.Response {
	headers := make(http.Header)
	headers.Set("Content-Type", "text/html; charset=utf-8")
	return &http.Response{
		StatusCode:    200,
		Body:          io.NopCloser(strings.NewReader(body)),
		Header:        headers,
		Request:       req,
		ContentLength: int64(len(body)),
	}
}
