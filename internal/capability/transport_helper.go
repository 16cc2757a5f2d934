package capability

import (
	"context"
	"fmt"

	"github.com/novaos/novaos/internal/ssrf"
	"github.com/novaos/novaos/internal/transport"
)

// fetchViaTransport runs the single fetch an allowed Decision authorizes.
// Redirects are not followed at the socket layer (spec §4.4), and this
// helper does not follow them through the Guard either: a redirect
// response is returned as an error naming its Location.
func fetchViaTransport(ctx context.Context, decision *ssrf.Decision) (*transport.Evidence, []byte, error) {
	ev, body, err := transport.Fetch(ctx, decision.Transport)
	if err != nil {
		return nil, nil, fmt.Errorf("capability: transport fetch failed: %w", err)
	}
	if ev.RedirectLocation != "" {
		return nil, nil, fmt.Errorf("capability: web search endpoint returned an unfollowed redirect to %s", ev.RedirectLocation)
	}
	return ev, body, nil
}
