package providers

import (
	"context"
	"fmt"
	"time"
)

// TimeProvider reports the current time in a named IANA timezone. Unlike
// the other providers it needs no network egress, so it never touches the
// SSRF Guard — there is nothing for it to be tricked into fetching.
type TimeProvider struct {
	now Clock
}

func NewTimeProvider() *TimeProvider {
	return &TimeProvider{now: defaultClock}
}

func (p *TimeProvider) Name() string        { return "time_fetcher" }
func (p *TimeProvider) Description() string { return "reports the current time in a named timezone" }

func (p *TimeProvider) Execute(_ context.Context, entity string) (*Result, error) {
	loc, err := time.LoadLocation(entity)
	if err != nil {
		return nil, fmt.Errorf("providers: unknown timezone %q: %w", entity, err)
	}
	now := p.now().In(loc)
	return &Result{
		Category:  "time",
		Entity:    entity,
		Formatted: fmt.Sprintf("%s: %s", entity, now.Format("2006-01-02 15:04:05 MST")),
		FetchedAt: now,
		Citation:  "system clock",
	}, nil
}
