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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StructuredEvent is an event read from embedded structured data
// (a schema.org Event JSON-LD block, or a recognizable hydration blob).
type StructuredEvent struct {
	Name      string
	StartDate string
	EndDate   string
	Location  string
	URL       string
}

// ExtractJSONLDEvents scans a page for schema.org Event blocks inside
// <script type="application/ld+json"> tags. Arrays and @graph wrappers
// are unwrapped; malformed blocks are skipped.
func ExtractJSONLDEvents(pageHTML string) []StructuredEvent {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}

	var events []StructuredEvent
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return
		}
		items, ok := data.([]any)
		if !ok {
			items = []any{data}
		}
		for _, item := range items {
			node, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if ev, ok := jsonldEvent(node); ok {
				events = append(events, ev)
			}
			if graph, ok := node["@graph"].([]any); ok {
				for _, g := range graph {
					if gn, ok := g.(map[string]any); ok {
						if ev, ok := jsonldEvent(gn); ok {
							events = append(events, ev)
						}
					}
				}
			}
		}
	})
	return events
}

func jsonldEvent(node map[string]any) (StructuredEvent, bool) {
	typ, _ := node["@type"].(string)
	if typ != "Event" && typ != "SportsEvent" {
		return StructuredEvent{}, false
	}
	ev := StructuredEvent{
		Name:      stringField(node, "name"),
		StartDate: isoDate(stringField(node, "startDate")),
		EndDate:   isoDate(stringField(node, "endDate")),
		URL:       stringField(node, "url"),
	}
	switch loc := node["location"].(type) {
	case string:
		ev.Location = loc
	case map[string]any:
		ev.Location = stringField(loc, "name")
	}
	return ev, true
}

func stringField(node map[string]any, key string) string {
	s, _ := node[key].(string)
	return strings.TrimSpace(s)
}

// isoDate reduces a schema.org date or datetime to "YYYY-MM-DD".
func isoDate(s string) string {
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		return s[:10]
	}
	return s
}

// SummarizeStructuredEvents renders structured events as plain text so
// the extraction service sees them ahead of the scraped page text.
func SummarizeStructuredEvents(events []StructuredEvent) string {
	if len(events) == 0 {
		return ""
	}
	lines := []string{"Structured event data found on page:"}
	for _, ev := range events {
		name := ev.Name
		if name == "" {
			name = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("- %s | %s - %s | %s", name, ev.StartDate, ev.EndDate, ev.Location))
	}
	return strings.Join(lines, "\n")
}

// applyTo fills a candidate from structured data. Dates are
// authoritative when present; other fields only fill gaps.
func (ev StructuredEvent) applyTo(c *CandidateEvent) {
	if ev.StartDate != "" {
		c.StartDate = ev.StartDate
	}
	if ev.EndDate != "" {
		c.EndDate = ev.EndDate
	}
	if c.Name == "" && ev.Name != "" {
		c.Name = ev.Name
	}
	if c.Location == "" && ev.Location != "" {
		c.Location = ev.Location
	}
}
