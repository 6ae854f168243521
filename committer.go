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
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ImportRow is one reviewed candidate posted back for commit. The
// operator may have edited any field in the preview.
type ImportRow struct {
	CandidateEvent
	// Selected marks rows the operator approved. Unselected rows are
	// ignored without counting as skipped.
	Selected bool `json:"selected"`
}

// ImportRequest is the payload of a confirm call.
type ImportRequest struct {
	Rows []ImportRow `json:"rows"`
}

// regattasPath is where the operator is sent after a commit.
const regattasPath = "/regattas"

// ImportSummary reports what a commit did.
type ImportSummary struct {
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
	Redirect string `json:"redirect"`
}

// NewEvent is a validated regatta ready for insertion.
type NewEvent struct {
	Name        string
	BoatClass   string
	Location    string
	LocationURL string
	StartDate   time.Time
	EndDate     *time.Time
	Notes       string
}

// NewDocument is a document link attached to a new regatta.
type NewDocument struct {
	Type  DocType
	URL   string
	Label string
}

// EventWriter persists approved regattas.
type EventWriter interface {
	CreateEvent(ctx context.Context, ev NewEvent, docs []NewDocument) (uint, error)
}

// Store is the persistence surface the import flow needs.
type Store interface {
	EventReader
	EventWriter
}

// Committer validates approved rows and writes them to the store.
// Each row commits independently; one bad row never blocks the rest.
type Committer struct {
	Store  Store
	Logger *logrus.Logger
}

// Commit processes the approved rows. A row is skipped when it is
// invalid (missing name or start date, unparseable dates, end before
// start) or a duplicate of a stored regatta or of an earlier row in
// the same request. Store write failures count as failed and the
// commit continues.
func (c *Committer) Commit(ctx context.Context, req ImportRequest) (*ImportSummary, error) {
	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	summary := &ImportSummary{Redirect: regattasPath}
	batch := make(map[string]bool)

	for _, row := range req.Rows {
		if !row.Selected {
			continue
		}

		ev, ok := c.buildEvent(row)
		if !ok {
			summary.Skipped++
			continue
		}

		key := dedupeKey(ev.Name, row.StartDate)
		if batch[key] {
			summary.Skipped++
			continue
		}

		existing, err := c.Store.FindDuplicate(ctx, ev.Name, row.StartDate)
		if err != nil {
			logger.WithError(err).WithField("name", ev.Name).Error("Duplicate lookup failed")
			summary.Failed++
			continue
		}
		if existing != nil {
			summary.Skipped++
			continue
		}

		docs := make([]NewDocument, 0, len(row.Documents))
		for _, d := range row.Documents {
			if strings.TrimSpace(d.URL) == "" {
				continue
			}
			docs = append(docs, NewDocument{Type: d.Type, URL: d.URL, Label: d.Label})
		}

		if _, err := c.Store.CreateEvent(ctx, ev, docs); err != nil {
			logger.WithError(err).WithField("name", ev.Name).Error("Event insert failed")
			summary.Failed++
			continue
		}
		batch[key] = true
		summary.Imported++
	}

	return summary, nil
}

// buildEvent validates and normalizes one row. The boolean is false
// when the row cannot be committed.
func (c *Committer) buildEvent(row ImportRow) (NewEvent, bool) {
	name := strings.TrimSpace(row.Name)
	startStr := strings.TrimSpace(row.StartDate)
	if name == "" || startStr == "" {
		return NewEvent{}, false
	}

	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return NewEvent{}, false
	}

	var end *time.Time
	if endStr := strings.TrimSpace(row.EndDate); endStr != "" {
		parsed, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return NewEvent{}, false
		}
		if parsed.Before(start) {
			return NewEvent{}, false
		}
		end = &parsed
	}

	location := strings.TrimSpace(row.Location)
	locationURL := strings.TrimSpace(row.LocationURL)
	if locationURL == "" && location != "" {
		// Point the venue link at a maps search when none was given.
		locationURL = "https://www.google.com/maps/search/" + url.QueryEscape(location)
	}
	if location == "" {
		location = "TBD"
	}

	boatClass := strings.TrimSpace(row.BoatClass)
	if boatClass == "" {
		boatClass = "TBD"
	}

	return NewEvent{
		Name:        name,
		BoatClass:   boatClass,
		Location:    location,
		LocationURL: locationURL,
		StartDate:   start,
		EndDate:     end,
		Notes:       strings.TrimSpace(row.Notes),
	}, true
}
