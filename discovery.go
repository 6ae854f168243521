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
	"errors"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// maxCrawlFollows bounds how many WWW links are followed one level
// deeper per candidate. Discovery depth never exceeds two fetches from
// the detail page.
const maxCrawlFollows = 3

// DiscoveryEngine enriches candidates that carry a detail URL with
// NOR, SI and WWW document links. Sources are tried from most to
// least authoritative: a platform's own API, structured data embedded
// in the page, then anchor heuristics on the page and one level of
// followed WWW links.
type DiscoveryEngine struct {
	Fetcher  *Fetcher
	Clubspot *ClubspotClient
	Logger   *logrus.Logger

	// Workers is the number of candidates discovered concurrently.
	Workers int

	// RespectRobots skips pages that robots.txt disallows for our
	// user agent. Lookups fail open.
	RespectRobots bool

	robotsMu    sync.Mutex
	robotsCache map[string]*robotstxt.RobotsData
}

// NewDiscoveryEngine returns an engine with production defaults.
func NewDiscoveryEngine(fetcher *Fetcher) *DiscoveryEngine {
	return &DiscoveryEngine{
		Fetcher:       fetcher,
		Clubspot:      NewClubspotClient(),
		Logger:        logrus.StandardLogger(),
		Workers:       3,
		RespectRobots: true,
	}
}

// DiscoverAll runs discovery over a batch. Candidates without a detail
// URL are delivered as results untouched; the rest are enriched
// concurrently. Each candidate's failures are isolated: an error on one
// is reported on the bus and the batch continues. The returned slice is
// the full batch with documents attached.
func (d *DiscoveryEngine) DiscoverAll(ctx context.Context, bus *ProgressBus, candidates []CandidateEvent) []CandidateEvent {
	out := make([]CandidateEvent, len(candidates))
	copy(out, candidates)

	pool := newWorkerPool(ctx, d.Workers, len(out))
	for i := range out {
		c := &out[i]
		if c.DetailURL == "" {
			bus.Result(*c)
			continue
		}
		if err := pool.submit(func() {
			d.discoverCandidate(ctx, bus, c)
		}); err != nil {
			break
		}
	}
	pool.close()
	return out
}

// discoverCandidate enriches a single candidate in place and emits its
// result. Every document list it builds goes through MergeDocuments so
// a URL appears at most once, kept under its strongest origin.
func (d *DiscoveryEngine) discoverCandidate(ctx context.Context, bus *ProgressBus, c *CandidateEvent) {
	if err := bus.Progress("Discovering documents for %q", c.Name); err != nil {
		return
	}

	// A ClubSpot detail URL means the platform's API can list the
	// regatta's documents directly.
	if id := ParseClubspotRegattaID(c.DetailURL); id != "" && d.Clubspot != nil {
		docs, err := d.Clubspot.Documents(ctx, id)
		if err != nil {
			d.Logger.WithError(err).WithField("url", c.DetailURL).Warn("ClubSpot document lookup failed")
			bus.Error("ClubSpot lookup failed for %q: %v", c.Name, err)
		} else {
			c.Documents = MergeDocuments(c.Documents, docs...)
		}
	}

	detail, err := url.Parse(c.DetailURL)
	if err != nil {
		bus.Error("Invalid detail URL for %q: %v", c.Name, err)
		bus.Result(*c)
		return
	}

	if !d.allowedByRobots(ctx, detail) {
		bus.Progress("Skipping %s, disallowed by robots.txt", c.DetailURL)
		bus.Result(*c)
		return
	}

	res, err := d.Fetcher.Fetch(ctx, c.DetailURL)
	if err != nil {
		var secErr *SecurityError
		if errors.As(err, &secErr) {
			bus.Error("Blocked unsafe URL for %q: %s", c.Name, secErr.Reason)
		} else {
			bus.Error("Could not fetch detail page for %q: %v", c.Name, err)
		}
		bus.Result(*c)
		return
	}

	seen := map[uint64]bool{contentHash(res.Body): true}
	if res.IsHTML() {
		d.applyStructuredData(c, res)
		c.Documents = MergeDocuments(c.Documents, ScanLinks(res.Body, res.FinalURL, OriginLinkScan, true)...)
		d.followWWWLinks(ctx, bus, c, seen)
	}

	bus.Result(*c)
}

// applyStructuredData fills candidate fields from JSON-LD or
// hydration-state blobs embedded in the detail page. A structured URL
// also becomes a WWW document.
func (d *DiscoveryEngine) applyStructuredData(c *CandidateEvent, res *FetchResult) {
	for _, ev := range ExtractJSONLDEvents(res.Body) {
		ev.applyTo(c)
		if ev.URL != "" {
			c.Documents = MergeDocuments(c.Documents, CandidateDocument{
				Type:   DocWWW,
				URL:    ev.URL,
				Label:  labelOr(ev.Name, "Event website"),
				Origin: OriginStructuredData,
			})
		}
	}

	if ev := HydrationEvent(ExtractHydrationJSON(res.Body)); ev != nil {
		ev.applyTo(c)
		if ev.URL != "" {
			c.Documents = MergeDocuments(c.Documents, CandidateDocument{
				Type:   DocWWW,
				URL:    ev.URL,
				Label:  labelOr(ev.Name, "Event website"),
				Origin: OriginStructuredData,
			})
		}
	}
}

// followWWWLinks fetches up to maxCrawlFollows WWW documents already
// attached to the candidate and scans them for NOR and SI links. This
// is the deepest level the engine goes.
func (d *DiscoveryEngine) followWWWLinks(ctx context.Context, bus *ProgressBus, c *CandidateEvent, seen map[uint64]bool) {
	followed := 0
	for _, doc := range c.Documents {
		if doc.Type != DocWWW || followed >= maxCrawlFollows {
			continue
		}
		u, err := url.Parse(doc.URL)
		if err != nil || !d.allowedByRobots(ctx, u) {
			continue
		}

		res, err := d.Fetcher.Fetch(ctx, doc.URL)
		if err != nil {
			d.Logger.WithError(err).WithField("url", doc.URL).Debug("Follow fetch failed")
			continue
		}
		followed++

		if !res.IsHTML() {
			continue
		}
		h := contentHash(res.Body)
		if seen[h] {
			continue
		}
		seen[h] = true

		c.Documents = MergeDocuments(c.Documents, ScanLinks(res.Body, res.FinalURL, OriginCrawl, false)...)
	}
}

// allowedByRobots checks robots.txt for the URL's host, caching the
// parsed file per host. Any failure to fetch or parse fails open.
func (d *DiscoveryEngine) allowedByRobots(ctx context.Context, u *url.URL) bool {
	if !d.RespectRobots {
		return true
	}

	d.robotsMu.Lock()
	if d.robotsCache == nil {
		d.robotsCache = make(map[string]*robotstxt.RobotsData)
	}
	data, cached := d.robotsCache[u.Host]
	d.robotsMu.Unlock()

	if !cached {
		robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
		res, err := d.Fetcher.Fetch(ctx, robotsURL)
		if err == nil {
			if parsed, perr := robotstxt.FromBytes([]byte(res.Body)); perr == nil {
				data = parsed
			}
		}
		d.robotsMu.Lock()
		d.robotsCache[u.Host] = data
		d.robotsMu.Unlock()
	}

	if data == nil {
		return true
	}

	ua := defaultUserAgent
	if d.Fetcher != nil && d.Fetcher.UserAgent != "" {
		ua = d.Fetcher.UserAgent
	}
	return data.TestAgent(u.Path, ua)
}
