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
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// initialStatePattern captures "window.__INITIAL_STATE__ = {...};"
// style bootstrap assignments.
var initialStatePattern = regexp.MustCompile(`(?s)window\.__(?:INITIAL_STATE|PRELOADED_STATE)__\s*=\s*(\{.*?\})\s*;`)

// ExtractHydrationJSON collects JSON blobs a client-rendered page embeds
// to bootstrap its view state: JSON-valued data-* attributes,
// <script id="__NEXT_DATA__"> payloads, and window.__INITIAL_STATE__
// assignments. These often carry event data absent from the static DOM.
func ExtractHydrationJSON(pageHTML string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}

	var blobs []string

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			for _, attr := range node.Attr {
				if !strings.HasPrefix(attr.Key, "data-") {
					continue
				}
				val := strings.TrimSpace(attr.Val)
				if len(val) < 2 || (val[0] != '{' && val[0] != '[') || !json.Valid([]byte(val)) {
					continue
				}
				blobs = append(blobs, attr.Key+"="+val)
			}
		}
	})

	doc.Find(`script#__NEXT_DATA__`).Each(func(_ int, s *goquery.Selection) {
		val := strings.TrimSpace(s.Text())
		if json.Valid([]byte(val)) {
			blobs = append(blobs, val)
		}
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, m := range initialStatePattern.FindAllStringSubmatch(s.Text(), -1) {
			if json.Valid([]byte(m[1])) {
				blobs = append(blobs, m[1])
			}
		}
	})

	return blobs
}

// HydrationEvent looks for an event-shaped object inside hydration
// blobs. It recognizes a name plus a start date under common key
// spellings. Returns nil when nothing recognizable is found.
func HydrationEvent(blobs []string) *StructuredEvent {
	for _, blob := range blobs {
		raw := blob
		if i := strings.Index(raw, "="); i > 0 && strings.HasPrefix(raw, "data-") {
			raw = raw[i+1:]
		}
		var node map[string]any
		if err := json.Unmarshal([]byte(raw), &node); err != nil {
			continue
		}
		if ev := eventFromMap(node); ev != nil {
			return ev
		}
	}
	return nil
}

func eventFromMap(node map[string]any) *StructuredEvent {
	name := firstString(node, "name", "eventName", "title")
	start := firstString(node, "startDate", "start_date", "startsAt")
	if name == "" || start == "" {
		// Search one level of nesting; Next.js payloads bury page
		// props under props.pageProps.
		for _, v := range node {
			if child, ok := v.(map[string]any); ok {
				if ev := eventFromMap(child); ev != nil {
					return ev
				}
			}
		}
		return nil
	}
	return &StructuredEvent{
		Name:      name,
		StartDate: isoDate(start),
		EndDate:   isoDate(firstString(node, "endDate", "end_date", "endsAt")),
		Location:  firstString(node, "location", "venue"),
		URL:       firstString(node, "url", "eventUrl"),
	}
}

func firstString(node map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := node[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// SummarizeHydration renders hydration blobs for the extraction
// service, each truncated so a single page cannot crowd out the rest
// of the content window.
func SummarizeHydration(blobs []string) string {
	if len(blobs) == 0 {
		return ""
	}
	const perBlob = 2000
	lines := []string{"Embedded page state:"}
	for _, b := range blobs {
		if len(b) > perBlob {
			b = b[:perBlob]
		}
		lines = append(lines, b)
	}
	return strings.Join(lines, "\n")
}
