package ssrf

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// normalizeHostname converts a Unicode hostname to its ASCII (punycode)
// form per spec §4.4 step 3.
func normalizeHostname(host string) (string, error) {
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		// idna.Lookup is strict; fall back to the registration profile for
		// hostnames containing characters Lookup rejects outright (the
		// guard still runs the alternate-encoding checks below on either
		// result).
		ascii, err = idna.Registration.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("normalizing hostname %q: %w", host, err)
		}
	}
	return strings.ToLower(ascii), nil
}

var (
	dottedHexOctet  = regexp.MustCompile(`^0x[0-9a-fA-F]{1,2}$`)
	dottedOctalOctet = regexp.MustCompile(`^0[0-7]{1,3}$`)
	allDigits       = regexp.MustCompile(`^[0-9]+$`)
)

// looksLikeEncodedIP detects alternate IP encodings the spec requires the
// guard to reject even though they are not the literal dotted-decimal
// form net.ParseIP/netip.ParseAddr would already catch: dotted-hex
// (0x7f.0x0.0x0.0x1), dotted-octal (0177.0.0.1), a raw 32-bit integer
// (2130706433), and IPv4-mapped / embedded IPv4 inside IPv6 literals.
func looksLikeEncodedIP(host string) bool {
	h := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	if allDigits.MatchString(h) && len(h) > 3 {
		// A bare integer hostname such as "2130706433" (127.0.0.1).
		return true
	}

	parts := strings.Split(h, ".")
	if len(parts) >= 1 && len(parts) <= 4 {
		hexOrOctalCount := 0
		for _, p := range parts {
			if dottedHexOctet.MatchString(p) || dottedOctalOctet.MatchString(p) {
				hexOrOctalCount++
			}
		}
		if hexOrOctalCount > 0 && hexOrOctalCount == len(parts) {
			return true
		}
	}

	// IPv4-mapped IPv6 (::ffff:127.0.0.1) or embedded IPv4 is handled by
	// classifyIP once resolved/parsed; here we only need to catch literals
	// that would otherwise slip past hostname parsing as "just a domain".
	if strings.Contains(h, ":") {
		if addr, err := netip.ParseAddr(h); err == nil && addr.Is4In6() {
			return true
		}
	}

	return false
}

// decodeEncodedIP best-effort parses a dotted-decimal IPv4 literal, a bare
// integer, or one of the alternate forms above into a netip.Addr. The
// guard calls it at the DNS step for any hostname looksLikeEncodedIP did
// not reject; a decoded address is then classified and pinned like a
// resolved one.
func decodeEncodedIP(host string) (netip.Addr, bool) {
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		if allDigits.MatchString(host) {
			n, err := strconv.ParseUint(host, 10, 32)
			if err != nil {
				return netip.Addr{}, false
			}
			return netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}), true
		}
		return netip.Addr{}, false
	}
	var b [4]byte
	for i, p := range parts {
		var v int64
		var err error
		switch {
		case dottedHexOctet.MatchString(p):
			v, err = strconv.ParseInt(p[2:], 16, 16)
		case dottedOctalOctet.MatchString(p):
			v, err = strconv.ParseInt(p[1:], 8, 16)
		case allDigits.MatchString(p):
			v, err = strconv.ParseInt(p, 10, 16)
		default:
			return netip.Addr{}, false
		}
		if err != nil || v < 0 || v > 255 {
			return netip.Addr{}, false
		}
		b[i] = byte(v)
	}
	return netip.AddrFrom4(b), true
}
