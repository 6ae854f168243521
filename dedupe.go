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
)

// ExistingEvent is the subset of a stored regatta needed to report a
// duplicate back to the reviewer.
type ExistingEvent struct {
	ID        uint
	Name      string
	Location  string
	StartDate string
}

// EventReader looks up stored regattas for duplicate detection.
// The name match is case-insensitive; startDate is an ISO date string.
type EventReader interface {
	FindDuplicate(ctx context.Context, name, startDate string) (*ExistingEvent, error)
}

// DuplicateDetector flags candidates that already exist in the store
// or that collide with an earlier candidate in the same batch.
type DuplicateDetector struct {
	Reader EventReader
}

// Mark annotates candidates in place. Candidates with no name or no
// start date are never flagged. Batch collisions are checked before
// the store so a second copy of an event in one page is caught even
// when neither copy exists yet.
func (d *DuplicateDetector) Mark(ctx context.Context, candidates []CandidateEvent) error {
	seen := make(map[string]bool, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if c.Name == "" || c.StartDate == "" {
			continue
		}
		key := dedupeKey(c.Name, c.StartDate)
		if seen[key] {
			c.Duplicate = true
			continue
		}
		seen[key] = true

		if d.Reader == nil {
			continue
		}
		existing, err := d.Reader.FindDuplicate(ctx, c.Name, c.StartDate)
		if err != nil {
			return err
		}
		if existing != nil {
			c.Duplicate = true
			c.DuplicateOf = &DuplicateRef{
				ID:        existing.ID,
				Name:      existing.Name,
				Location:  existing.Location,
				StartDate: existing.StartDate,
			}
		}
	}
	return nil
}
