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
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
)

// DocType identifies the kind of regatta document.
type DocType string

const (
	// DocNOR is a Notice of Race
	DocNOR DocType = "NOR"
	// DocSI is Sailing Instructions
	DocSI DocType = "SI"
	// DocWWW is the regatta's own website or registration page
	DocWWW DocType = "WWW"
)

// DocOrigin records which discovery source produced a document link.
type DocOrigin string

const (
	// OriginProviderAPI marks links returned by a platform's own API
	OriginProviderAPI DocOrigin = "provider-api"
	// OriginStructuredData marks links taken from embedded structured data
	OriginStructuredData DocOrigin = "structured-data"
	// OriginCrawl marks links found by following a WWW link one level deeper
	OriginCrawl DocOrigin = "organic-crawl"
	// OriginLinkScan marks links found by the generic anchor heuristics
	OriginLinkScan DocOrigin = "link-scan"
)

// originPriority decides which duplicate of a document URL survives a
// merge. Provider responses are authoritative; the generic link scan is
// the weakest signal.
var originPriority = map[DocOrigin]int{
	OriginLinkScan:       0,
	OriginCrawl:          1,
	OriginStructuredData: 2,
	OriginProviderAPI:    3,
}

// CandidateDocument is a proposed document link attached to a candidate.
type CandidateDocument struct {
	Type   DocType   `json:"doc_type"`
	URL    string    `json:"url"`
	Label  string    `json:"label"`
	Origin DocOrigin `json:"origin"`
}

// DuplicateRef points at the existing record a candidate duplicates.
type DuplicateRef struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	StartDate string `json:"start_date"`
}

// CandidateEvent is a transient proposed regatta produced during one
// pipeline run. Candidates are never persisted; only operator-approved
// ones reach the store via the committer. Dates are ISO "YYYY-MM-DD"
// strings until commit time.
type CandidateEvent struct {
	Name        string              `json:"name"`
	BoatClass   string              `json:"boat_class"`
	Location    string              `json:"location"`
	LocationURL string              `json:"location_url,omitempty"`
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date,omitempty"`
	Notes       string              `json:"notes,omitempty"`
	DetailURL   string              `json:"detail_url,omitempty"`
	Source      string              `json:"source"`
	Documents   []CandidateDocument `json:"documents,omitempty"`
	Duplicate   bool                `json:"duplicate"`
	DuplicateOf *DuplicateRef       `json:"duplicate_of,omitempty"`
}

// dedupeKey is the identity used for duplicate detection:
// case-insensitive name plus start date.
func dedupeKey(name, startDate string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.TrimSpace(startDate)
}

var docURLParser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

// NormalizeDocURL canonicalizes a document URL for deduplication:
// WHATWG parsing normalizes scheme/host case, default ports, and path
// encoding; the fragment is dropped.
func NormalizeDocURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := docURLParser.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	return u.Href(true)
}

// MergeDocuments merges additional documents into a candidate's list,
// deduplicating by normalized URL. On collision the higher-priority
// origin wins; insertion order of first sightings is preserved.
func MergeDocuments(docs []CandidateDocument, add ...CandidateDocument) []CandidateDocument {
	index := make(map[string]int, len(docs))
	for i, d := range docs {
		index[NormalizeDocURL(d.URL)] = i
	}
	for _, d := range add {
		if strings.TrimSpace(d.URL) == "" {
			continue
		}
		key := NormalizeDocURL(d.URL)
		if i, ok := index[key]; ok {
			if originPriority[d.Origin] > originPriority[docs[i].Origin] {
				docs[i] = d
			}
			continue
		}
		index[key] = len(docs)
		docs = append(docs, d)
	}
	return docs
}
