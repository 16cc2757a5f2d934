// Package ssrf implements the SSRF Guard (spec §2 component 4, §4.4): the
// single source of truth consulted before any outbound network call.
package ssrf

import "time"

// CheckType enumerates the ordered checks the guard performs.
type CheckType string

const (
	CheckRateLimit  CheckType = "rate_limit"
	CheckURLParse   CheckType = "url_parse"
	CheckHostname   CheckType = "hostname_encoding"
	CheckDomainList CheckType = "domain_list"
	CheckDNS        CheckType = "dns_resolve"
	CheckIPClass    CheckType = "ip_classification"
	CheckTransport  CheckType = "transport_build"
)

// Reason enumerates the denial reason codes the guard can emit.
type Reason string

const (
	ReasonRateLimited     Reason = "RATE_LIMITED"
	ReasonBadScheme       Reason = "BAD_SCHEME"
	ReasonUserInfo        Reason = "USERINFO_PRESENT"
	ReasonBadPort         Reason = "BAD_PORT"
	ReasonEncodedIP       Reason = "ENCODED_IP_HOSTNAME"
	ReasonBlockedDomain   Reason = "BLOCKED_DOMAIN"
	ReasonDNSFailure      Reason = "DNS_FAILURE"
	ReasonPrivateIP       Reason = "PRIVATE_IP"
	ReasonMetadataIP      Reason = "METADATA_IP"
	ReasonLoopbackIP      Reason = "LOOPBACK_IP"
	ReasonLinkLocalIP     Reason = "LINK_LOCAL_IP"
	ReasonMulticastIP     Reason = "MULTICAST_IP"
	ReasonReservedIP      Reason = "RESERVED_IP"
	ReasonRedirectLoop    Reason = "REDIRECT_LOOP"
	ReasonTooManyRedirect Reason = "TOO_MANY_REDIRECTS"
)

// Check is one ordered step recorded in a Decision's trail.
type Check struct {
	Type    CheckType
	Passed  bool
	Details string
}

// TransportRequirements pins the exact connection parameters Secure
// Transport must use (spec §3) — the transport never re-resolves DNS.
type TransportRequirements struct {
	ConnectToIP       string
	Port              int
	UseTLS            bool
	Hostname          string
	RequestPath       string
	MaxResponseBytes  int64
	ConnectTimeoutMs  int64
	ReadTimeoutMs     int64
	AllowRedirects    bool
	MaxRedirects      int
	CertificatePins   []string
	Headers           map[string]string
	UserAgent         string
}

// Decision is the sole authority the transport consults before any
// outbound network call (spec §3, invariant: allowed ⇔ transport present).
type Decision struct {
	Allowed   bool
	Reason    Reason
	Message   string
	Checks    []Check
	Transport *TransportRequirements
	DurationMs int64
	Timestamp time.Time
	RequestID string
}

func denied(reason Reason, message string, checks []Check) *Decision {
	return &Decision{
		Allowed: false,
		Reason:  reason,
		Message: message,
		Checks:  checks,
	}
}
