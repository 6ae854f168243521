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

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
)

// maxContentLength caps how much page text is handed to the extraction
// service per page.
const maxContentLength = 15000

// PageText extracts readable text from HTML for extraction-service
// input. Scripts, styles and chrome (nav, header, footer) are removed;
// whitespace is normalized line by line and the result is truncated at
// the content cap.
func PageText(pageHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, footer, header").Remove()

	text := doc.Text()
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return TruncateContent(strings.Join(lines, "\n"))
}

// TruncateContent enforces the extraction content cap.
func TruncateContent(s string) string {
	if len(s) > maxContentLength {
		return s[:maxContentLength]
	}
	return s
}

// contentHash fingerprints fetched page text so discovery can skip
// re-scanning pages that turn out to be identical.
func contentHash(s string) uint64 {
	return xxhash.Sum64String(s)
}
