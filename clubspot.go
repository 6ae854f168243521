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
	"net/http"
	"net/url"
	"regexp"
	"time"
)

// clubspotAppID is ClubSpot's public Parse application id; their API
// accepts anonymous reads with it.
const clubspotAppID = "myclubspot2017"

var clubspotRegattaPattern = regexp.MustCompile(`^https?://(?:www\.)?theclubspot\.com/regatta/([A-Za-z0-9]+)`)

// ParseClubspotRegattaID extracts the regatta identifier from a
// ClubSpot regatta URL. Returns "" for any other URL, including
// non-regatta ClubSpot pages.
func ParseClubspotRegattaID(rawURL string) string {
	m := clubspotRegattaPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// ClubspotClient reads document records from ClubSpot's public Parse
// API. It is the provider adapter for regattas hosted on
// theclubspot.com: its answers outrank organically scraped links.
type ClubspotClient struct {
	// BaseURL is the API host, overridable in tests.
	BaseURL string
	// Client issues the requests.
	Client *http.Client
	// Timeout bounds one API call.
	Timeout time.Duration
}

// NewClubspotClient returns a client against the production API.
func NewClubspotClient() *ClubspotClient {
	return &ClubspotClient{
		BaseURL: "https://theclubspot.com",
		Client:  &http.Client{},
		Timeout: 10 * time.Second,
	}
}

type clubspotDocument struct {
	Type     string `json:"type"`
	URL      string `json:"URL"`
	Active   bool   `json:"active"`
	Archived bool   `json:"archived"`
}

type clubspotDocumentsResponse struct {
	Results []clubspotDocument `json:"results"`
}

// Documents fetches the document records for a regatta and maps them to
// candidate documents. Unknown document types, archived entries, and
// entries without a URL are dropped.
func (c *ClubspotClient) Documents(ctx context.Context, regattaID string) ([]CandidateDocument, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	where := fmt.Sprintf(`{"regattaObjectId":%q}`, regattaID)
	endpoint := fmt.Sprintf("%s/parse/classes/documents?where=%s", c.BaseURL, url.QueryEscape(where))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Parse-Application-Id", clubspotAppID)
	req.Header.Set("User-Agent", defaultUserAgent)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: endpoint, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: endpoint, StatusCode: res.StatusCode}
	}

	var payload clubspotDocumentsResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, &FetchError{URL: endpoint, Err: err}
	}

	var docs []CandidateDocument
	for _, d := range payload.Results {
		if d.URL == "" || d.Archived {
			continue
		}
		switch d.Type {
		case "nor":
			docs = append(docs, CandidateDocument{Type: DocNOR, URL: d.URL, Label: "Notice of Race", Origin: OriginProviderAPI})
		case "si":
			docs = append(docs, CandidateDocument{Type: DocSI, URL: d.URL, Label: "Sailing Instructions", Origin: OriginProviderAPI})
		}
	}
	return docs, nil
}
