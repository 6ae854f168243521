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

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	schedule "github.com/chris-edwards-pub/thistle-regatta-schedule"
	"github.com/chris-edwards-pub/thistle-regatta-schedule/internal/store"
)

type fakeExtractor struct {
	candidates []schedule.CandidateEvent
	err        error
}

func (f *fakeExtractor) ExtractEvents(ctx context.Context, content string, year int) ([]schedule.CandidateEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

// sseEvent is one decoded frame from the stream.
type sseEvent struct {
	Type string
	Data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.Data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.Type != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		}
	}
	return events
}

func newTestServer(t *testing.T, extractor schedule.Extractor) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	now := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	pipeline := &schedule.Pipeline{
		Extractor: extractor,
		Detector:  &schedule.DuplicateDetector{Reader: st},
		Now:       now,
	}
	committer := &schedule.Committer{Store: st}
	return NewServer(pipeline, committer, nil), st
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExtractor{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestExtract_StreamsEvents(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExtractor{candidates: []schedule.CandidateEvent{
		{Name: "Districts", StartDate: "2026-06-20"},
	}})

	body := `{"text": "June 20: Districts", "year": 2026}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/import/extract", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "connected", events[0].Type)

	var kinds []string
	for _, ev := range events[1:] {
		kinds = append(kinds, ev.Type)
	}
	assert.Contains(t, kinds, "result")
	require.Equal(t, "done", kinds[len(kinds)-1], "Stream ends with the terminal event")

	var done schedule.ProgressEvent
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].Data), &done))
	assert.Equal(t, "Found 1 event(s).", done.Summary)
	assert.Equal(t, "/admin/import/preview", done.Redirect)
	require.Len(t, done.Candidates, 1)
	assert.Equal(t, "Districts", done.Candidates[0].Name)
}

func TestExtract_FailedRunStreamsFailure(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExtractor{
		err: &schedule.ExtractionServiceError{Err: errors.New("model unavailable")},
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/import/extract",
		strings.NewReader(`{"text": "schedule"}`)))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "failed", last.Type)
}

func TestExtract_RejectsInvalidInput(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExtractor{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/import/extract",
		strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/import/extract",
		strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/import/extract", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestConfirm_CommitsRows(t *testing.T) {
	srv, st := newTestServer(t, &fakeExtractor{})

	body := `{"rows": [
		{"name": "Districts", "start_date": "2026-06-20", "location": "Lakeside", "selected": true},
		{"name": "Ignored", "start_date": "2026-07-01", "selected": false}
	]}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/import/confirm", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var summary schedule.ImportSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, "/regattas", summary.Redirect)

	saved, err := st.FindDuplicate(context.Background(), "Districts", "2026-06-20")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "Lakeside", saved.Location)
}

func TestConfirm_RejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExtractor{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/import/confirm",
		strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/import/confirm", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExtractor{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/v1/import/extract", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
