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
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

const defaultUserAgent = "RaceCrewNetwork/1.0"

// LimitRule provides connection restrictions for domains.
// Both DomainRegexp and DomainGlob can be used to specify
// the included domains patterns, but at least one is required.
// There can be two kind of limitations:
//   - Parallelism: Set limit for the number of concurrent requests to matching domains
//   - Delay: Wait specified amount of time between requests (parallelism is 1 in this case)
type LimitRule struct {
	// DomainRegexp is a regular expression to match against domains
	DomainRegexp string
	// DomainGlob is a glob pattern to match against domains
	DomainGlob string
	// Delay is the duration to wait before creating a new request to the matching domains
	Delay time.Duration
	// Parallelism is the number of the maximum allowed concurrent requests of the matching domains
	Parallelism    int
	waitChan       chan bool
	compiledRegexp *regexp.Regexp
	compiledGlob   glob.Glob
}

// Init initializes the private members of LimitRule
func (r *LimitRule) Init() error {
	waitChanSize := 1
	if r.Parallelism > 1 {
		waitChanSize = r.Parallelism
	}
	r.waitChan = make(chan bool, waitChanSize)
	hasPattern := false
	if r.DomainRegexp != "" {
		c, err := regexp.Compile(r.DomainRegexp)
		if err != nil {
			return err
		}
		r.compiledRegexp = c
		hasPattern = true
	}
	if r.DomainGlob != "" {
		c, err := glob.Compile(r.DomainGlob)
		if err != nil {
			return err
		}
		r.compiledGlob = c
		hasPattern = true
	}
	if !hasPattern {
		return ErrNoPattern
	}
	return nil
}

// Match checks that the domain parameter triggers the rule
func (r *LimitRule) Match(domain string) bool {
	if r.compiledRegexp != nil && r.compiledRegexp.MatchString(domain) {
		return true
	}
	if r.compiledGlob != nil && r.compiledGlob.Match(domain) {
		return true
	}
	return false
}

// FetchResult is the outcome of a successful bounded GET.
type FetchResult struct {
	// FinalURL is the URL after following redirects.
	FinalURL string
	// ContentType is the Content-Type header of the final response.
	ContentType string
	// Body is the decoded response body, truncated at the size cap.
	Body string
	// StatusCode is the final HTTP status.
	StatusCode int
}

// IsHTML reports whether the response was served as HTML.
func (r *FetchResult) IsHTML() bool {
	return strings.Contains(strings.ToLower(r.ContentType), "html")
}

// Fetcher performs policy-checked, bounded HTTP GETs. Every URL and
// every redirect hop passes the URLGuard before a request is issued.
type Fetcher struct {
	// Guard validates each URL and redirect target.
	Guard *URLGuard
	// Client issues the requests. The Transport is replaceable in tests.
	Client *http.Client
	// UserAgent is sent on every request.
	UserAgent string
	// MaxBodySize caps how many body bytes are read. Longer bodies are truncated.
	MaxBodySize int
	// MaxRedirects bounds the redirect chain.
	MaxRedirects int
	// Timeout bounds a whole fetch including redirects.
	Timeout time.Duration

	limitRules []*LimitRule
	lock       sync.RWMutex
}

// NewFetcher returns a Fetcher with defaults suitable for schedule pages.
func NewFetcher(guard *URLGuard) *Fetcher {
	return &Fetcher{
		Guard:        guard,
		Client:       &http.Client{},
		UserAgent:    defaultUserAgent,
		MaxBodySize:  5 * 1024 * 1024,
		MaxRedirects: 5,
		Timeout:      15 * time.Second,
	}
}

// Limit adds a per-domain limit rule.
func (f *Fetcher) Limit(rule *LimitRule) error {
	f.lock.Lock()
	f.limitRules = append(f.limitRules, rule)
	f.lock.Unlock()
	return rule.Init()
}

func (f *Fetcher) matchingRule(domain string) *LimitRule {
	f.lock.RLock()
	defer f.lock.RUnlock()
	for _, r := range f.limitRules {
		if r.Match(domain) {
			return r
		}
	}
	return nil
}

// Fetch GETs a URL with guard validation on the initial URL and on
// every redirect hop. Network failures, timeouts, non-2xx statuses and
// oversized bodies return a *FetchError; guard rejections return a
// *SecurityError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	current, err := f.Guard.Validate(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if rule := f.matchingRule(current.Hostname()); rule != nil {
		rule.waitChan <- true
		defer func(r *LimitRule) {
			if r.Delay > 0 {
				time.Sleep(r.Delay)
			}
			<-r.waitChan
		}(rule)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Redirects are followed manually so each hop can be re-validated
	// before any request to it is issued.
	for hop := 0; hop <= f.MaxRedirects; hop++ {
		res, err := f.doGet(ctx, current)
		if err != nil {
			return nil, &FetchError{URL: current.String(), Err: err}
		}

		if location := res.Header.Get("Location"); res.StatusCode >= 300 && res.StatusCode < 400 && location != "" {
			res.Body.Close()
			next, err := current.Parse(location)
			if err != nil {
				return nil, &FetchError{URL: current.String(), Err: err}
			}
			validated, err := f.Guard.Validate(ctx, next.String())
			if err != nil {
				return nil, err
			}
			current = validated
			continue
		}

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			res.Body.Close()
			return nil, &FetchError{URL: current.String(), StatusCode: res.StatusCode}
		}
		if f.MaxBodySize > 0 && res.ContentLength > int64(f.MaxBodySize) {
			res.Body.Close()
			return nil, &FetchError{URL: current.String(), Err: ErrBodyTooLarge}
		}

		var reader io.Reader = res.Body
		if f.MaxBodySize > 0 {
			reader = io.LimitReader(reader, int64(f.MaxBodySize))
		}
		body, err := io.ReadAll(reader)
		res.Body.Close()
		if err != nil {
			return nil, &FetchError{URL: current.String(), Err: err}
		}

		contentType := res.Header.Get("Content-Type")
		return &FetchResult{
			FinalURL:    current.String(),
			ContentType: contentType,
			Body:        decodeBody(body, contentType),
			StatusCode:  res.StatusCode,
		}, nil
	}

	return nil, &FetchError{URL: current.String(), Err: ErrTooManyRedirects}
}

func (f *Fetcher) doGet(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	// The client must not chase redirects itself; hops are validated here.
	redirectSafe := *client
	redirectSafe.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return redirectSafe.Do(req)
}

// decodeBody converts a response body to UTF-8. The charset is taken
// from the Content-Type when declared, otherwise detected from the
// bytes themselves.
func decodeBody(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}
	if strings.Contains(strings.ToLower(contentType), "charset") {
		if r, err := charset.NewReader(bytes.NewReader(body), contentType); err == nil {
			if out, err := io.ReadAll(r); err == nil {
				return string(out)
			}
		}
	}
	if best, err := chardet.NewTextDetector().DetectBest(body); err == nil && best.Charset != "UTF-8" {
		if r, err := charset.NewReaderLabel(best.Charset, bytes.NewReader(body)); err == nil {
			if out, err := io.ReadAll(r); err == nil {
				return string(out)
			}
		}
	}
	return string(body)
}
