package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/novaos/novaos/internal/config"
	"github.com/novaos/novaos/internal/ratelimit"
)

// Resolver abstracts DNS resolution so tests can supply a fixed answer set
// instead of hitting the network.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

type netResolver struct{ r *net.Resolver }

func (n netResolver) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	return n.r.LookupNetIP(ctx, network, host)
}

// Guard produces a Decision from a URL and config (spec §2 component 4).
type Guard struct {
	cfg      config.SSRFConfig
	resolver Resolver
	limiter  *ratelimit.Limiter
	now      func() time.Time
}

// NewGuard builds a Guard. limiter may be nil to skip the rate-limit check
// (used by providers operating on a shared upstream limiter already).
func NewGuard(cfg config.SSRFConfig, resolver Resolver, limiter *ratelimit.Limiter) *Guard {
	if resolver == nil {
		resolver = netResolver{r: &net.Resolver{}}
	}
	return &Guard{cfg: cfg, resolver: resolver, limiter: limiter, now: time.Now}
}

// Evaluate runs the ordered check sequence from spec §4.4. The first
// failing check short-circuits to a denied Decision with a specific reason.
func (g *Guard) Evaluate(ctx context.Context, rawURL, userID, requestID string) *Decision {
	start := g.now()
	var checks []Check
	finish := func(d *Decision) *Decision {
		d.Checks = checks
		d.DurationMs = g.now().Sub(start).Milliseconds()
		d.Timestamp = start
		d.RequestID = requestID
		return d
	}

	// 1. Rate-limit per (userId ∥ ip).
	if g.limiter != nil {
		res, err := g.limiter.Check(ctx, ratelimit.Key{Scope: "ssrf", Identity: userID})
		if err != nil || !res.Allowed {
			checks = append(checks, Check{Type: CheckRateLimit, Passed: false})
			return finish(denied(ReasonRateLimited, "rate limit exceeded for egress", checks))
		}
	}
	checks = append(checks, Check{Type: CheckRateLimit, Passed: true})

	// 2. URL parse; scheme, userinfo, port.
	u, err := url.Parse(rawURL)
	if err != nil {
		checks = append(checks, Check{Type: CheckURLParse, Passed: false, Details: err.Error()})
		return finish(denied(ReasonBadScheme, "url could not be parsed", checks))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		checks = append(checks, Check{Type: CheckURLParse, Passed: false, Details: "scheme=" + u.Scheme})
		return finish(denied(ReasonBadScheme, "only http/https are allowed", checks))
	}
	if u.User != nil {
		checks = append(checks, Check{Type: CheckURLParse, Passed: false, Details: "userinfo present"})
		return finish(denied(ReasonUserInfo, "urls with embedded credentials are rejected", checks))
	}
	port := defaultPort(u)
	if !portAllowed(port, g.cfg.AllowedPorts) {
		checks = append(checks, Check{Type: CheckURLParse, Passed: false, Details: fmt.Sprintf("port=%d", port)})
		return finish(denied(ReasonBadPort, "port is not in the allowed set", checks))
	}
	checks = append(checks, Check{Type: CheckURLParse, Passed: true})

	// 3. Hostname normalization + alternate-encoding detection.
	host := u.Hostname()
	ascii, err := normalizeHostname(host)
	if err != nil {
		checks = append(checks, Check{Type: CheckHostname, Passed: false, Details: err.Error()})
		return finish(denied(ReasonEncodedIP, "hostname could not be normalized", checks))
	}
	if looksLikeEncodedIP(ascii) {
		checks = append(checks, Check{Type: CheckHostname, Passed: false, Details: "alternate IP encoding"})
		return finish(denied(ReasonEncodedIP, "hostname uses an alternate IP encoding", checks))
	}
	checks = append(checks, Check{Type: CheckHostname, Passed: true, Details: ascii})

	// 4. Blocklist/allowlist domains.
	if domainBlocked(ascii, g.cfg.BlockedDomains) {
		checks = append(checks, Check{Type: CheckDomainList, Passed: false})
		return finish(denied(ReasonBlockedDomain, "hostname is on the blocked domain list", checks))
	}
	if !g.cfg.AllowLocalhost && (ascii == "localhost" || strings.HasSuffix(ascii, ".localhost")) {
		checks = append(checks, Check{Type: CheckDomainList, Passed: false})
		return finish(denied(ReasonLoopbackIP, "localhost is not allowed", checks))
	}
	checks = append(checks, Check{Type: CheckDomainList, Passed: true})

	// 5. DNS resolve with timeout; collect all A/AAAA records.
	dnsCtx, cancel := context.WithTimeout(ctx, g.cfg.DNSTimeout)
	defer cancel()

	var addrs []netip.Addr
	if direct, ok := decodeEncodedIP(ascii); ok {
		addrs = []netip.Addr{direct}
	} else if ip, err := netip.ParseAddr(strings.Trim(ascii, "[]")); err == nil {
		addrs = []netip.Addr{ip}
	} else {
		addrs, err = g.resolver.LookupNetIP(dnsCtx, "ip", ascii)
		if err != nil || len(addrs) == 0 {
			checks = append(checks, Check{Type: CheckDNS, Passed: false})
			return finish(denied(ReasonDNSFailure, "dns resolution failed", checks))
		}
	}
	checks = append(checks, Check{Type: CheckDNS, Passed: true, Details: fmt.Sprintf("%d address(es)", len(addrs))})

	// 6. IP classification: every resolved address must be public.
	if !g.cfg.AllowPrivate {
		for _, a := range addrs {
			if public, reason := classifyIP(a); !public {
				checks = append(checks, Check{Type: CheckIPClass, Passed: false, Details: a.String()})
				return finish(denied(reason, "resolved address is not publicly routable", checks))
			}
		}
	}
	checks = append(checks, Check{Type: CheckIPClass, Passed: true})

	// 7. Choose a single IP; pin it into TransportRequirements.
	chosen := addrs[0]

	// 8. Build transport requirements.
	tr := &TransportRequirements{
		ConnectToIP:      chosen.String(),
		Port:             port,
		UseTLS:           u.Scheme == "https",
		Hostname:         ascii,
		RequestPath:      requestPath(u),
		MaxResponseBytes: g.cfg.MaxResponseBytes,
		ConnectTimeoutMs: g.cfg.ConnectTimeout.Milliseconds(),
		ReadTimeoutMs:    g.cfg.ReadTimeout.Milliseconds(),
		AllowRedirects:   g.cfg.MaxRedirects > 0,
		MaxRedirects:     g.cfg.MaxRedirects,
		Headers:          map[string]string{},
		UserAgent:        "NovaOS-Evidence/1.0",
	}
	checks = append(checks, Check{Type: CheckTransport, Passed: true})

	return finish(&Decision{Allowed: true, Message: "allowed", Transport: tr})
}

func defaultPort(u *url.URL) int {
	if p := u.Port(); p != "" {
		n, _ := strconv.Atoi(p)
		return n
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}

func portAllowed(port int, allowed []int) bool {
	for _, p := range allowed {
		if p == port {
			return true
		}
	}
	return false
}

func domainBlocked(host string, blocked []string) bool {
	for _, b := range blocked {
		b = strings.ToLower(strings.TrimSpace(b))
		if b == "" {
			continue
		}
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

func requestPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
