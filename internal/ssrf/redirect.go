package ssrf

import "context"

// RedirectHop records one followed redirect in a chain (spec §4.4).
type RedirectHop struct {
	URL      string
	Decision *Decision
}

// RedirectChain evaluates a sequence of redirect targets, re-running the
// full Guard decision for each hop (spec: "a redirect response triggers a
// new Guard call for the Location"). It enforces maxRedirects and detects
// loops via a visited-URL set; the OS/socket layer never follows redirects
// itself (spec §4.4).
type RedirectChain struct {
	guard   *Guard
	visited map[string]bool
	hops    []RedirectHop
}

func NewRedirectChain(guard *Guard) *RedirectChain {
	return &RedirectChain{guard: guard, visited: map[string]bool{}}
}

// Follow evaluates the next hop. It returns the Decision for this hop, or
// a denied decision with ReasonRedirectLoop / ReasonTooManyRedirect if the
// chain's limits are exceeded.
func (c *RedirectChain) Follow(ctx context.Context, location, userID, requestID string, maxRedirects int) *Decision {
	if len(c.hops) >= maxRedirects {
		return denied(ReasonTooManyRedirect, "redirect chain exceeded maxRedirects", nil)
	}
	if c.visited[location] {
		return denied(ReasonRedirectLoop, "redirect chain revisited a url", nil)
	}
	c.visited[location] = true

	d := c.guard.Evaluate(ctx, location, userID, requestID)
	c.hops = append(c.hops, RedirectHop{URL: location, Decision: d})
	return d
}

// Hops returns the recorded redirect chain so far.
func (c *RedirectChain) Hops() []RedirectHop { return c.hops }
