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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chris-edwards-pub/thistle-regatta-schedule/internal/llm"
)

// extractionPrompt instructs the model to return a JSON array of
// events. The {year} hint anchors dates given without a year.
const extractionPrompt = `You are a data extraction assistant. Extract regatta/sailing event information from the provided text and return a JSON array.

Each object in the array must have these fields:
- "name": string (event name)
- "boat_class": string or null (the one-design or racing class, e.g. "Thistle", "J/24")
- "location": string (city, yacht club, or venue)
- "location_url": string or null (URL for the venue if mentioned)
- "start_date": string in "YYYY-MM-DD" format
- "end_date": string in "YYYY-MM-DD" format or null (if single-day event)
- "notes": string or null (any extra details like contacts, etc.)
- "detail_url": string or null (URL to the regatta's own detail/information page, NOT the venue link)

Rules:
- The year is {year} unless the text explicitly states otherwise.
- If a date says only "Mar 15", interpret as {year}-03-15.
- If a date range says "Mar 15-16", set start_date to the 15th and end_date to the 16th.
- If only one date is given, set end_date to null.
- If the boat class is not mentioned, set boat_class to null.
- If the text contains a link to an individual regatta's event page or information page, include it as detail_url. This is NOT the venue/location URL.
- Return ONLY the JSON array, no markdown fences, no explanation.
- If no events are found, return an empty array: []

Text to extract from:
{content}`

// Extractor turns page text into candidate events.
type Extractor interface {
	ExtractEvents(ctx context.Context, content string, year int) ([]CandidateEvent, error)
}

// AIExtractor implements Extractor on top of an LLM client.
type AIExtractor struct {
	Client    llm.Client
	MaxTokens int
}

// NewAIExtractor wires an extractor over the given client.
func NewAIExtractor(client llm.Client) *AIExtractor {
	return &AIExtractor{Client: client, MaxTokens: 4096}
}

// extractedRow mirrors the JSON objects the model returns. Nullable
// fields are pointers so null and "" both normalize to empty.
type extractedRow struct {
	Name        string  `json:"name"`
	BoatClass   *string `json:"boat_class"`
	Location    string  `json:"location"`
	LocationURL *string `json:"location_url"`
	StartDate   string  `json:"start_date"`
	EndDate     *string `json:"end_date"`
	Notes       *string `json:"notes"`
	DetailURL   *string `json:"detail_url"`
}

// ExtractEvents sends the content to the model and parses the result.
// Failures to reach the model or to parse its output surface as
// *ExtractionServiceError; the pipeline treats those as fatal.
func (e *AIExtractor) ExtractEvents(ctx context.Context, content string, year int) ([]CandidateEvent, error) {
	if e.Client == nil {
		return nil, &ExtractionServiceError{Err: fmt.Errorf("no LLM client configured")}
	}

	prompt := strings.NewReplacer(
		"{year}", strconv.Itoa(year),
		"{content}", content,
	).Replace(extractionPrompt)

	resp, err := e.Client.Complete(ctx, llm.Request{
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens: e.MaxTokens,
	})
	if err != nil {
		return nil, &ExtractionServiceError{Err: err}
	}

	raw := llm.ExtractJSONArray(resp.Content)
	if raw == "" {
		return nil, &ExtractionServiceError{Err: fmt.Errorf("no JSON array in model response")}
	}

	var rows []extractedRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, &ExtractionServiceError{Err: fmt.Errorf("parse model response: %w", err)}
	}

	candidates := make([]CandidateEvent, 0, len(rows))
	for _, r := range rows {
		c := CandidateEvent{
			Name:        strings.TrimSpace(r.Name),
			BoatClass:   deref(r.BoatClass),
			Location:    strings.TrimSpace(r.Location),
			LocationURL: deref(r.LocationURL),
			StartDate:   strings.TrimSpace(r.StartDate),
			EndDate:     deref(r.EndDate),
			Notes:       deref(r.Notes),
			DetailURL:   deref(r.DetailURL),
		}
		if c.BoatClass == "" {
			c.BoatClass = "TBD"
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// FilterPastEvents drops candidates whose start date is before today.
// Candidates without a start date are kept for the reviewer to fix.
// Returns the surviving candidates and the number removed.
func FilterPastEvents(candidates []CandidateEvent, now time.Time) ([]CandidateEvent, int) {
	today := now.Format("2006-01-02")
	kept := candidates[:0]
	removed := 0
	for _, c := range candidates {
		if c.StartDate != "" && c.StartDate < today {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	return kept, removed
}
