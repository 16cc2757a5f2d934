// Package transport implements Secure Transport (spec §2 component 5,
// §4.4): it performs the single HTTP fetch an SSRF Guard decision
// authorizes, pinned to the exact resolved IP the guard chose, generalized
// from the teacher's pkg/bookowl.Client fixed-timeout *http.Client pattern
// into a dialer that refuses DNS re-resolution and enforces byte/time caps.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/novaos/novaos/internal/ssrf"
)

// Evidence proves what transport actually did, per spec §4.4 ("Emits
// TransportEvidence proving the actual IP/port used and whether pins
// verified") and §8 testable property 5 (transport monotonicity).
type Evidence struct {
	ConnectedIP     string
	Port            int
	StatusCode      int
	BytesRead       int64
	Truncated       bool
	PinsVerified    bool
	PinConfigured   bool
	RedirectLocation string
	DurationMs      int64
}

// ErrPeerMismatch is returned if the dialer somehow connects to an address
// other than the one the guard pinned (defense against a misbehaving
// net.Dialer override or a future refactor, not expected in normal use).
var ErrPeerMismatch = fmt.Errorf("transport: connected peer does not match pinned IP")

// Fetch performs the GET request authorized by req. It never re-resolves
// DNS: the dialer is hardcoded to dial req.ConnectToIP:req.Port regardless
// of what req.Hostname's address would otherwise resolve to, which is the
// DNS-rebinding defense spec §4.4 requires.
func Fetch(ctx context.Context, req *ssrf.TransportRequirements) (*Evidence, []byte, error) {
	start := time.Now()
	pinnedAddr := net.JoinHostPort(req.ConnectToIP, fmt.Sprintf("%d", req.Port))

	dialer := &net.Dialer{
		Timeout: time.Duration(req.ConnectTimeoutMs) * time.Millisecond,
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, pinnedAddr)
		if err != nil {
			return nil, err
		}
		if host, _, splitErr := net.SplitHostPort(conn.RemoteAddr().String()); splitErr == nil && host != req.ConnectToIP {
			_ = conn.Close()
			return nil, ErrPeerMismatch
		}
		return conn, nil
	}

	rt := &http.Transport{
		DialContext: dialContext,
		TLSClientConfig: &tls.Config{
			ServerName: req.Hostname,
		},
		DisableKeepAlives: true,
	}

	client := &http.Client{
		Transport: rt,
		Timeout:   time.Duration(req.ConnectTimeoutMs+req.ReadTimeoutMs) * time.Millisecond,
		// Redirects are never followed at the socket layer (spec §4.4); the
		// guard must re-evaluate the Location via a fresh Decision.
		CheckRedirect: func(httpReq *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	scheme := "http"
	if req.UseTLS {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, req.Hostname, req.RequestPath)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: building request: %w", err)
	}
	httpReq.Host = req.Hostname
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: fetching %s: %w", req.Hostname, err)
	}
	defer func() { _ = resp.Body.Close() }()

	ev := &Evidence{
		ConnectedIP:   req.ConnectToIP,
		Port:          req.Port,
		StatusCode:    resp.StatusCode,
		PinConfigured: len(req.CertificatePins) > 0,
	}

	if req.UseTLS && len(req.CertificatePins) > 0 {
		ev.PinsVerified = verifyPins(resp.TLS, req.CertificatePins)
		if !ev.PinsVerified {
			ev.DurationMs = time.Since(start).Milliseconds()
			return ev, nil, fmt.Errorf("transport: certificate pin verification failed for %s", req.Hostname)
		}
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		ev.RedirectLocation = resp.Header.Get("Location")
		ev.DurationMs = time.Since(start).Milliseconds()
		return ev, nil, nil
	}

	limited := io.LimitReader(resp.Body, req.MaxResponseBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: reading body: %w", err)
	}
	if int64(len(body)) > req.MaxResponseBytes {
		body = body[:req.MaxResponseBytes]
		ev.Truncated = true
	}
	ev.BytesRead = int64(len(body))
	ev.DurationMs = time.Since(start).Milliseconds()

	return ev, body, nil
}

func verifyPins(cs *tls.ConnectionState, pins []string) bool {
	if cs == nil || len(cs.PeerCertificates) == 0 {
		return false
	}
	leaf := cs.PeerCertificates[0]
	sum := sha256FingerprintBase64(leaf.Raw)
	for _, pin := range pins {
		if pin == sum {
			return true
		}
	}
	return false
}
