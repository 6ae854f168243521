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
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kennygrant/sanitize"
)

// regattaPlatformHosts are known regatta management platforms. A link
// onto one of these is the regatta's own event page, not a document.
var regattaPlatformHosts = map[string]bool{
	"theclubspot.com":    true,
	"regattanetwork.com": true,
	"yachtscoring.com":   true,
}

var (
	norTextPattern  = regexp.MustCompile(`(?i)notice\s+of\s+race`)
	norAbbrevMatch  = regexp.MustCompile(`\bNOR\b`)
	siTextPattern   = regexp.MustCompile(`(?i)sailing\s+instructions?`)
	siAbbrevMatch   = regexp.MustCompile(`\bSIs?\b`)
	wwwTextPattern  = regexp.MustCompile(`(?i)\b(register|registration|entry|sign\s*up|event\s+page)\b`)
	pdfNamePattern  = regexp.MustCompile(`(?i)\b(nor|si)[^/]*\.pdf$`)
	skipHostPattern = regexp.MustCompile(`(?i)(^|\.)(facebook|instagram|twitter|x|youtube|linkedin)\.com$`)
)

// ScanLinks scans anchors for NOR, SI and WWW document links.
// Relative hrefs are resolved against baseURL. When includeWWW is
// false only NOR/SI links are returned; that is the rule for level-2
// pages, which are themselves reached through a WWW link. The caller
// decides the origin tag: link-scan for the detail page, organic-crawl
// for followed pages.
func ScanLinks(pageHTML, baseURL string, origin DocOrigin, includeWWW bool) []CandidateDocument {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var docs []CandidateDocument
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}

		target, err := resolveHref(base, href)
		if err != nil {
			return
		}
		if target.Scheme != "http" && target.Scheme != "https" {
			return
		}
		host := strings.TrimPrefix(strings.ToLower(target.Hostname()), "www.")
		if skipHostPattern.MatchString(host) {
			return
		}
		// Calendar export links masquerade as documents.
		if strings.HasSuffix(strings.ToLower(target.Path), ".ics") {
			return
		}
		if base != nil && sameURL(target, base) {
			return
		}

		text := cleanLabel(s.Text())
		abs := target.String()

		switch {
		case norTextPattern.MatchString(text) || norAbbrevMatch.MatchString(text) ||
			matchPDFName(target.Path, "nor"):
			docs = append(docs, CandidateDocument{Type: DocNOR, URL: abs, Label: labelOr(text, "Notice of Race"), Origin: origin})
		case siTextPattern.MatchString(text) || siAbbrevMatch.MatchString(text) ||
			matchPDFName(target.Path, "si"):
			docs = append(docs, CandidateDocument{Type: DocSI, URL: abs, Label: labelOr(text, "Sailing Instructions"), Origin: origin})
		case includeWWW && (regattaPlatformHosts[host] || wwwTextPattern.MatchString(text)):
			docs = append(docs, CandidateDocument{Type: DocWWW, URL: abs, Label: labelOr(text, "Regatta website"), Origin: origin})
		}
	})
	return docs
}

func resolveHref(base *url.URL, href string) (*url.URL, error) {
	if base != nil {
		return base.Parse(href)
	}
	return url.Parse(href)
}

func sameURL(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host &&
		strings.TrimSuffix(a.Path, "/") == strings.TrimSuffix(b.Path, "/") &&
		a.RawQuery == b.RawQuery
}

func matchPDFName(path, kind string) bool {
	m := pdfNamePattern.FindStringSubmatch(path)
	return m != nil && strings.EqualFold(m[1], kind)
}

// cleanLabel strips markup and collapses whitespace in anchor text.
func cleanLabel(text string) string {
	clean := sanitize.HTML(text)
	return strings.Join(strings.Fields(clean), " ")
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	const maxLabel = 120
	if len(label) > maxLabel {
		label = label[:maxLabel]
	}
	return label
}
