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
	"net/http"
	"strings"
	"testing"
)

// drainBus collects everything buffered on the bus without blocking.
// Usable once the producers have returned.
func drainBus(bus *ProgressBus) []ProgressEvent {
	var evs []ProgressEvent
	for {
		select {
		case ev := <-bus.Events():
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func eventsOfKind(evs []ProgressEvent, kind EventKind) []ProgressEvent {
	var out []ProgressEvent
	for _, ev := range evs {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func newTestEngine(transport *MockTransport) *DiscoveryEngine {
	engine := NewDiscoveryEngine(newTestFetcher(transport))
	engine.Workers = 1
	engine.RespectRobots = false
	engine.Clubspot = nil
	return engine
}

func TestDiscoverAll_NoDetailURLPassesThrough(t *testing.T) {
	engine := newTestEngine(NewMockTransport())
	bus := NewProgressBus(context.Background(), 64)

	out := engine.DiscoverAll(context.Background(), bus, []CandidateEvent{
		{Name: "Untraceable Regatta", StartDate: "2026-07-04"},
	})

	if len(out) != 1 || len(out[0].Documents) != 0 {
		t.Fatalf("Expected unchanged candidate, got %+v", out)
	}
	results := eventsOfKind(drainBus(bus), EventResult)
	if len(results) != 1 || results[0].Candidate.Name != "Untraceable Regatta" {
		t.Errorf("Expected one result event, got %+v", results)
	}
}

func TestDiscoverAll_ScansDetailPage(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterHTML("https://club.example.com/regatta", `<html><body>
		<a href="/docs/nor.pdf">Notice of Race</a>
		<a href="/docs/si.pdf">Sailing Instructions</a>
	</body></html>`)
	engine := newTestEngine(transport)
	bus := NewProgressBus(context.Background(), 64)

	out := engine.DiscoverAll(context.Background(), bus, []CandidateEvent{
		{Name: "Spring Regatta", DetailURL: "https://club.example.com/regatta"},
	})

	docs := out[0].Documents
	if findDoc(docs, DocNOR) == nil || findDoc(docs, DocSI) == nil {
		t.Fatalf("Expected NOR and SI from link scan, got %+v", docs)
	}
	if findDoc(docs, DocNOR).URL != "https://club.example.com/docs/nor.pdf" {
		t.Errorf("Relative link not resolved: %q", findDoc(docs, DocNOR).URL)
	}
}

func TestDiscoverAll_ClubspotDocumentsWin(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterHTML("https://theclubspot.com/regatta/abc123", `<html><body>
		<a href="https://cdn.example.com/nor-v1.pdf">Notice of Race</a>
	</body></html>`)
	if err := transport.RegisterPattern(`theclubspot\.com/parse/classes/documents`, &MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"results": [{"type": "nor", "URL": "https://cdn.example.com/nor-v2.pdf", "active": true, "archived": false}]}`,
		Headers:    http.Header{"Content-Type": {"application/json"}},
	}); err != nil {
		t.Fatal(err)
	}

	engine := newTestEngine(transport)
	engine.Clubspot = &ClubspotClient{
		BaseURL: "https://theclubspot.com",
		Client:  &http.Client{Transport: transport},
	}
	bus := NewProgressBus(context.Background(), 64)

	out := engine.DiscoverAll(context.Background(), bus, []CandidateEvent{
		{Name: "ClubSpot Regatta", DetailURL: "https://theclubspot.com/regatta/abc123"},
	})

	nor := findDoc(out[0].Documents, DocNOR)
	if nor == nil {
		t.Fatal("Expected a NOR document")
	}
	if nor.URL != "https://cdn.example.com/nor-v2.pdf" {
		t.Errorf("Provider API document should win, got %q", nor.URL)
	}
	if nor.Origin != OriginProviderAPI {
		t.Errorf("Expected provider-api origin, got %q", nor.Origin)
	}
}

func TestDiscoverAll_FollowsWWWLinksOneLevel(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterHTML("https://club.example.com/regatta", `<html><body>
		<a href="https://regatta.example.com/">Event website</a>
	</body></html>`)
	transport.RegisterHTML("https://regatta.example.com/", `<html><body>
		<a href="/nor.pdf">Notice of Race</a>
		<a href="https://third.example.com/">Another website</a>
	</body></html>`)
	engine := newTestEngine(transport)
	bus := NewProgressBus(context.Background(), 64)

	out := engine.DiscoverAll(context.Background(), bus, []CandidateEvent{
		{Name: "Linked Regatta", DetailURL: "https://club.example.com/regatta"},
	})

	nor := findDoc(out[0].Documents, DocNOR)
	if nor == nil {
		t.Fatal("Expected NOR found on followed WWW page")
	}
	if nor.URL != "https://regatta.example.com/nor.pdf" {
		t.Errorf("Unexpected NOR URL %q", nor.URL)
	}
	if nor.Origin != OriginCrawl {
		t.Errorf("Expected organic-crawl origin, got %q", nor.Origin)
	}

	// The followed page's own WWW links are never fetched.
	for _, req := range transport.Requests() {
		if strings.Contains(req, "third.example.com") {
			t.Error("Crawl went deeper than one level past the detail page")
		}
	}
}

func TestDiscoverAll_StructuredDataFillsCandidate(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterHTML("https://club.example.com/regatta", `<html><head>
		<script type="application/ld+json">
		{"@type": "Event", "name": "Harvest Moon Regatta",
		 "startDate": "2026-09-12", "endDate": "2026-09-13",
		 "location": {"@type": "Place", "name": "Galveston Bay"},
		 "url": "https://harvestmoon.example.com/"}
		</script></head><body></body></html>`)
	engine := newTestEngine(transport)
	bus := NewProgressBus(context.Background(), 64)

	out := engine.DiscoverAll(context.Background(), bus, []CandidateEvent{
		{Name: "Harvest Moon Regatta", DetailURL: "https://club.example.com/regatta"},
	})

	c := out[0]
	if c.StartDate != "2026-09-12" || c.EndDate != "2026-09-13" {
		t.Errorf("Structured dates not applied: %+v", c)
	}
	www := findDoc(c.Documents, DocWWW)
	if www == nil || www.Origin != OriginStructuredData {
		t.Errorf("Expected structured-data WWW document, got %+v", www)
	}
}

func TestDiscoverAll_FailureIsolatedPerCandidate(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterHTML("https://good.example.com/regatta", `<html><body>
		<a href="/nor.pdf">Notice of Race</a>
	</body></html>`)
	engine := newTestEngine(transport)
	// 169.254.169.254 trips the URL guard before any request is made.
	bus := NewProgressBus(context.Background(), 64)

	out := engine.DiscoverAll(context.Background(), bus, []CandidateEvent{
		{Name: "Hostile", DetailURL: "http://169.254.169.254/latest/meta-data"},
		{Name: "Fine", DetailURL: "https://good.example.com/regatta"},
	})

	if len(out) != 2 {
		t.Fatalf("Expected both candidates back, got %d", len(out))
	}
	evs := drainBus(bus)
	if len(eventsOfKind(evs, EventResult)) != 2 {
		t.Errorf("Expected a result per candidate, got %+v", evs)
	}
	errs := eventsOfKind(evs, EventError)
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "Hostile") {
		t.Errorf("Expected one error for the blocked candidate, got %+v", errs)
	}
	var fine *CandidateEvent
	for i := range out {
		if out[i].Name == "Fine" {
			fine = &out[i]
		}
	}
	if fine == nil || findDoc(fine.Documents, DocNOR) == nil {
		t.Error("Healthy candidate should still be enriched")
	}
}

func TestDiscoverAll_RespectsRobots(t *testing.T) {
	transport := NewMockTransport()
	transport.RegisterResponse("https://club.example.com/robots.txt", &MockResponse{
		StatusCode: http.StatusOK,
		Body:       "User-agent: *\nDisallow: /regatta\n",
		Headers:    http.Header{"Content-Type": {"text/plain"}},
	})
	transport.RegisterHTML("https://club.example.com/regatta", `<html><body>
		<a href="/nor.pdf">Notice of Race</a>
	</body></html>`)
	engine := newTestEngine(transport)
	engine.RespectRobots = true
	bus := NewProgressBus(context.Background(), 64)

	out := engine.DiscoverAll(context.Background(), bus, []CandidateEvent{
		{Name: "Walled Garden", DetailURL: "https://club.example.com/regatta"},
	})

	if len(out[0].Documents) != 0 {
		t.Errorf("Disallowed page should not be scanned, got %+v", out[0].Documents)
	}
	for _, req := range transport.Requests() {
		if req == "https://club.example.com/regatta" {
			t.Error("Disallowed page was fetched")
		}
	}
}

func TestDiscoverAll_RobotsFailsOpen(t *testing.T) {
	transport := NewMockTransport()
	// No robots.txt registered: lookup 404s and discovery proceeds.
	transport.RegisterHTML("https://club.example.com/regatta", `<html><body>
		<a href="/nor.pdf">Notice of Race</a>
	</body></html>`)
	engine := newTestEngine(transport)
	engine.RespectRobots = true
	bus := NewProgressBus(context.Background(), 64)

	out := engine.DiscoverAll(context.Background(), bus, []CandidateEvent{
		{Name: "Open Regatta", DetailURL: "https://club.example.com/regatta"},
	})

	if findDoc(out[0].Documents, DocNOR) == nil {
		t.Error("Missing robots.txt should not block discovery")
	}
}
