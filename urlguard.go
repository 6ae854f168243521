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
	"net"
	"net/url"
	"strings"
	"time"
)

// Pre-compiled CIDR networks for reserved ranges not covered by the
// net.IP classification helpers.
var (
	cgnatNet    *net.IPNet // 100.64.0.0/10 carrier-grade NAT
	v4Reserved  *net.IPNet // 240.0.0.0/4 reserved
	v6UniqueNet *net.IPNet // fc00::/7 IPv6 unique local
	v6LinkNet   *net.IPNet // fe80::/10 IPv6 link-local
)

func init() {
	for _, c := range []struct {
		cidr string
		dst  **net.IPNet
	}{
		{"100.64.0.0/10", &cgnatNet},
		{"240.0.0.0/4", &v4Reserved},
		{"fc00::/7", &v6UniqueNet},
		{"fe80::/10", &v6LinkNet},
	} {
		_, n, err := net.ParseCIDR(c.cidr)
		if err != nil {
			panic("invalid CIDR " + c.cidr + ": " + err.Error())
		}
		*c.dst = n
	}
}

// URLGuard validates URLs against the address-space policy before any
// fetch is allowed. It must be re-invoked on every redirect hop: a
// publicly-resolving host may redirect to an internal address.
type URLGuard struct {
	// ResolveTimeout bounds the DNS lookup performed during validation.
	ResolveTimeout time.Duration
	// LookupIP resolves a hostname to addresses. Overridable in tests;
	// nil uses the default resolver.
	LookupIP func(ctx context.Context, host string) ([]net.IP, error)
}

// NewURLGuard returns a guard with default settings.
func NewURLGuard() *URLGuard {
	return &URLGuard{ResolveTimeout: 5 * time.Second}
}

// Validate parses and checks a URL. It returns the parsed URL when the
// scheme is http/https and every address the host resolves to is
// outside private, loopback, link-local, multicast, and reserved
// ranges. Any violation, including a failed or timed-out DNS lookup,
// produces a SecurityError.
func (g *URLGuard) Validate(ctx context.Context, rawURL string) (*url.URL, error) {
	raw := strings.TrimSpace(rawURL)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &SecurityError{URL: raw, Reason: "invalid URL"}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &SecurityError{URL: raw, Reason: "scheme must be http or https"}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, &SecurityError{URL: raw, Reason: "URL has no host"}
	}
	if host == "localhost" || strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return nil, &SecurityError{URL: raw, Reason: "local hostnames are not allowed"}
	}

	// Literal IP hosts skip DNS entirely.
	if ip := net.ParseIP(strings.Trim(u.Hostname(), "[]")); ip != nil {
		if reason := disallowedIPReason(ip); reason != "" {
			return nil, &SecurityError{URL: raw, Reason: reason}
		}
		return u, nil
	}

	ips, err := g.resolve(ctx, host)
	if err != nil {
		return nil, &SecurityError{URL: raw, Reason: "DNS resolution failed"}
	}
	if len(ips) == 0 {
		return nil, &SecurityError{URL: raw, Reason: "host resolved to no addresses"}
	}
	for _, ip := range ips {
		if reason := disallowedIPReason(ip); reason != "" {
			return nil, &SecurityError{URL: raw, Reason: reason}
		}
	}
	return u, nil
}

func (g *URLGuard) resolve(ctx context.Context, host string) ([]net.IP, error) {
	timeout := g.ResolveTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if g.LookupIP != nil {
		return g.LookupIP(ctx, host)
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

// disallowedIPReason returns a non-empty reason when the address falls
// inside a blocked range. Link-local covers the 169.254.169.254 cloud
// metadata address.
func disallowedIPReason(ip net.IP) string {
	// Normalize IPv6-mapped IPv4 (::ffff:x.x.x.x) before classifying.
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	switch {
	case ip.IsLoopback():
		return "address is loopback"
	case ip.IsPrivate():
		return "address is in a private range"
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return "address is link-local"
	case ip.IsMulticast():
		return "address is multicast"
	case ip.IsUnspecified():
		return "address is unspecified"
	case cgnatNet.Contains(ip):
		return "address is in the carrier-grade NAT range"
	case ip.To4() != nil && v4Reserved.Contains(ip):
		return "address is in a reserved range"
	case v6UniqueNet.Contains(ip):
		return "address is an IPv6 unique local address"
	case v6LinkNet.Contains(ip):
		return "address is IPv6 link-local"
	}
	return ""
}
