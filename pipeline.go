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
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// previewPath is where the reviewing operator is sent once a run
// finishes with candidates to approve.
const previewPath = "/admin/import/preview"

// RunInput is one schedule import request. Exactly one of Text or URL
// drives extraction; URL wins when both are set.
type RunInput struct {
	// Text is raw schedule text pasted by the operator.
	Text string `json:"text"`
	// URL is a schedule page to fetch and extract from.
	URL string `json:"url"`
	// Year anchors dates that appear without a year. Zero means the
	// current year.
	Year int `json:"year"`
	// Discover enables document discovery on extracted candidates.
	Discover bool `json:"discover"`
}

// Pipeline orchestrates one import run: fetch, extract, filter,
// duplicate-mark, discover, and stream progress on a bus.
type Pipeline struct {
	Fetcher   *Fetcher
	Extractor Extractor
	Discovery *DiscoveryEngine
	Detector  *DuplicateDetector
	Logger    *logrus.Logger

	// Now is replaceable in tests. Nil means time.Now.
	Now func() time.Time
}

// Validate checks an input before a run is started. Errors are
// *ValidationError so the HTTP layer can map them to 400s.
func (p *Pipeline) Validate(input RunInput) error {
	if strings.TrimSpace(input.Text) == "" && strings.TrimSpace(input.URL) == "" {
		return &ValidationError{Message: "provide schedule text or a URL"}
	}
	if input.Year < 0 {
		return &ValidationError{Message: "year must be positive"}
	}
	return nil
}

// Run executes the pipeline, streaming progress to the bus. The bus
// always receives exactly one terminal event. The returned error is
// the fatal cause, nil on success; recoverable problems are reported
// as error events and do not stop the run.
func (p *Pipeline) Run(ctx context.Context, input RunInput, bus *ProgressBus) error {
	logger := p.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	if err := p.Validate(input); err != nil {
		bus.Fail(err.Error(), nil)
		return err
	}

	year := input.Year
	if year == 0 {
		year = now().Year()
	}

	content := input.Text
	if u := strings.TrimSpace(input.URL); u != "" {
		if err := bus.Progress("Fetching %s", u); err != nil {
			return err
		}
		fetched, err := p.fetchContent(ctx, u)
		if err != nil {
			logger.WithError(err).WithField("url", u).Warn("Schedule fetch failed")
			bus.Fail(err.Error(), nil)
			return err
		}
		content = fetched
	}
	content = TruncateContent(content)

	if err := bus.Progress("Extracting events"); err != nil {
		return err
	}
	candidates, err := p.Extractor.ExtractEvents(ctx, content, year)
	if err != nil {
		logger.WithError(err).Error("Extraction failed")
		bus.Fail(err.Error(), nil)
		return err
	}

	candidates, pastCount := FilterPastEvents(candidates, now())
	for i := range candidates {
		candidates[i].Source = strings.TrimSpace(input.URL)
	}

	if p.Detector != nil {
		if err := p.Detector.Mark(ctx, candidates); err != nil {
			// Duplicate marking is best effort; the reviewer still
			// sees every candidate.
			logger.WithError(err).Warn("Duplicate check failed")
			bus.Error("Duplicate check failed: %v", err)
		}
	}

	if input.Discover && p.Discovery != nil && len(candidates) > 0 {
		candidates = p.Discovery.DiscoverAll(ctx, bus, candidates)
	} else {
		for _, c := range candidates {
			if err := bus.Result(c); err != nil {
				return err
			}
		}
	}

	summary := fmt.Sprintf("Found %d event(s).", len(candidates))
	if pastCount > 0 {
		summary += fmt.Sprintf(" (%d past event(s) excluded.)", pastCount)
	}
	return bus.Done(summary, previewPath, candidates)
}

// fetchContent turns a schedule URL into extraction text. HTML pages
// are reduced to visible text, prefixed with summaries of any embedded
// structured data so the model sees machine-stated dates first.
func (p *Pipeline) fetchContent(ctx context.Context, rawURL string) (string, error) {
	res, err := p.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if !res.IsHTML() {
		return res.Body, nil
	}

	var parts []string
	if s := SummarizeStructuredEvents(ExtractJSONLDEvents(res.Body)); s != "" {
		parts = append(parts, s)
	}
	if s := SummarizeHydration(ExtractHydrationJSON(res.Body)); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, PageText(res.Body))
	return strings.Join(parts, "\n\n"), nil
}
