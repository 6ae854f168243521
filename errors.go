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
	"errors"
	"fmt"
)

var (
	// ErrTooManyRedirects is returned when a fetch exceeds the redirect limit
	ErrTooManyRedirects = errors.New("stopped after too many redirects")
	// ErrBodyTooLarge is returned when a response declares a body larger than the fetch cap
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
	// ErrStreamClosed is returned when an event is emitted after the terminal event
	ErrStreamClosed = errors.New("progress stream already closed")
	// ErrNoListener is returned when the stream consumer has disconnected
	ErrNoListener = errors.New("progress stream consumer disconnected")
	// ErrNoPattern is the error type for LimitRules without patterns
	ErrNoPattern = errors.New("no pattern defined in LimitRule")
)

// SecurityError reports a URL refused by the address-space policy.
// No bytes are ever fetched from a URL that produced a SecurityError.
type SecurityError struct {
	URL    string
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("refusing to fetch %s: %s", e.URL, e.Reason)
}

// FetchError reports a recoverable network failure: non-2xx status,
// timeout, oversized body, or connection failure. Callers skip the
// source and continue.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError reports malformed operator input, rejected before a
// pipeline run starts.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ExtractionServiceError reports a failure of the external extraction
// service. It is the one fatal error class: without extracted
// candidates there is nothing left for a run to do.
type ExtractionServiceError struct {
	Err error
}

func (e *ExtractionServiceError) Error() string {
	return fmt.Sprintf("extraction service: %v", e.Err)
}

func (e *ExtractionServiceError) Unwrap() error { return e.Err }
