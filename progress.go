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
	"fmt"
	"sync"
)

// EventKind is the closed set of progress event kinds.
type EventKind string

const (
	// EventProgress is an informational step update
	EventProgress EventKind = "progress"
	// EventResult carries one finalized candidate
	EventResult EventKind = "result"
	// EventError reports a recoverable failure; the run continues
	EventError EventKind = "error"
	// EventFailed is the terminal kind for an aborted run
	EventFailed EventKind = "failed"
	// EventDone is the terminal kind for a completed run
	EventDone EventKind = "done"
)

// ProgressEvent is one unit of the run's event stream. Seq is strictly
// increasing within a run; consumers can use gaps to detect a truncated
// connection. Which optional fields are set depends on Kind: result
// events carry Candidate; terminal events carry Candidates, and done
// additionally Summary and Redirect.
type ProgressEvent struct {
	Kind       EventKind        `json:"kind"`
	Seq        uint64           `json:"seq"`
	Message    string           `json:"message,omitempty"`
	Candidate  *CandidateEvent  `json:"candidate,omitempty"`
	Candidates []CandidateEvent `json:"candidates,omitempty"`
	Summary    string           `json:"summary,omitempty"`
	Redirect   string           `json:"redirect,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e ProgressEvent) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventFailed
}

// ProgressBus is the ordered event stream of one pipeline run. The
// orchestrator (and the discovery workers it owns) write; a single
// consumer reads until the channel closes. Exactly one terminal event
// is delivered; emissions after it fail with ErrStreamClosed. When the
// consumer's context is cancelled, emissions fail with ErrNoListener so
// producers stop promptly instead of fetching for nobody.
type ProgressBus struct {
	ch  chan ProgressEvent
	ctx context.Context

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// NewProgressBus creates a bus bound to the consumer's context.
func NewProgressBus(ctx context.Context, buffer int) *ProgressBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &ProgressBus{ch: make(chan ProgressEvent, buffer), ctx: ctx}
}

// Events is the consumer side of the stream. The channel closes after
// the terminal event.
func (b *ProgressBus) Events() <-chan ProgressEvent { return b.ch }

func (b *ProgressBus) emit(ev ProgressEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStreamClosed
	}
	b.seq++
	ev.Seq = b.seq
	select {
	case b.ch <- ev:
	case <-b.ctx.Done():
		// Consumer is gone. Seal the stream so in-flight workers bail
		// out on their next emit.
		b.closed = true
		close(b.ch)
		return ErrNoListener
	}
	if ev.Terminal() {
		b.closed = true
		close(b.ch)
	}
	return nil
}

// Progress emits an informational step update.
func (b *ProgressBus) Progress(format string, args ...any) error {
	return b.emit(ProgressEvent{Kind: EventProgress, Message: fmt.Sprintf(format, args...)})
}

// Error reports a recoverable failure. The run continues.
func (b *ProgressBus) Error(format string, args ...any) error {
	return b.emit(ProgressEvent{Kind: EventError, Message: fmt.Sprintf(format, args...)})
}

// Result delivers one candidate whose document list is final.
func (b *ProgressBus) Result(c CandidateEvent) error {
	return b.emit(ProgressEvent{Kind: EventResult, Candidate: &c})
}

// Done closes the stream successfully.
func (b *ProgressBus) Done(summary, redirect string, candidates []CandidateEvent) error {
	return b.emit(ProgressEvent{Kind: EventDone, Summary: summary, Redirect: redirect, Candidates: candidates})
}

// Fail closes the stream after a fatal error, delivering whatever
// partial results exist.
func (b *ProgressBus) Fail(message string, candidates []CandidateEvent) error {
	return b.emit(ProgressEvent{Kind: EventFailed, Message: message, Candidates: candidates})
}
