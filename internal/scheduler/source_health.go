package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/novaos/novaos/internal/kvs"
)

// SourceStatus is one of the known_sources_health states (spec §4.10).
type SourceStatus string

const (
	SourceActive   SourceStatus = "active"
	SourceDegraded SourceStatus = "degraded"
	SourceFailed   SourceStatus = "failed"
	SourceDisabled SourceStatus = "disabled"
)

const consecutiveFailureThreshold = 3
const reenableAfter = 7 * 24 * time.Hour

// Source tracks a live-data provider's health for the weekly flip job.
type Source struct {
	ID                  string
	Status              SourceStatus
	ConsecutiveFailures int
	DisabledAt          time.Time
	UpdatedAt           time.Time
}

func sourceKey(id string) string { return fmt.Sprintf("lens:source:%s", id) }

const allSourcesKey = "lens:sources:all"

// SourceHealth is the sole writer of lens:source:{id}; it satisfies
// capability.HealthRecorder, and internal/app wires it into the
// Capability gate so every provider call reports its outcome here, while
// known_sources_health reads the accumulated state to flip statuses.
type SourceHealth struct {
	kv kvs.Store
}

func NewSourceHealth(kv kvs.Store) *SourceHealth {
	return &SourceHealth{kv: kv}
}

func (h *SourceHealth) get(ctx context.Context, id string) (Source, error) {
	raw, ok, err := h.kv.Get(ctx, sourceKey(id))
	if err != nil {
		return Source{}, err
	}
	if !ok {
		return Source{ID: id, Status: SourceActive}, nil
	}
	var s Source
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Source{}, fmt.Errorf("scheduler: unmarshal source %s: %w", id, err)
	}
	return s, nil
}

func (h *SourceHealth) save(ctx context.Context, s Source) error {
	s.UpdatedAt = time.Now()
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := h.kv.Set(ctx, sourceKey(s.ID), string(raw), 0); err != nil {
		return err
	}
	return h.kv.SetAdd(ctx, allSourcesKey, s.ID)
}

// RecordResult updates a source's consecutive-failure counter from one
// fetch outcome. Three consecutive failures flip active/degraded to
// failed; a success resets the counter and restores active from degraded.
func (h *SourceHealth) RecordResult(ctx context.Context, id string, success bool) error {
	s, err := h.get(ctx, id)
	if err != nil {
		return err
	}
	if success {
		s.ConsecutiveFailures = 0
		if s.Status == SourceDegraded {
			s.Status = SourceActive
		}
		return h.save(ctx, s)
	}
	s.ConsecutiveFailures++
	switch {
	case s.ConsecutiveFailures >= consecutiveFailureThreshold:
		s.Status = SourceFailed
	case s.ConsecutiveFailures > 0 && s.Status == SourceActive:
		s.Status = SourceDegraded
	}
	return h.save(ctx, s)
}

// Disable marks a source disabled, starting the 7-day re-enable clock.
func (h *SourceHealth) Disable(ctx context.Context, id string) error {
	s, err := h.get(ctx, id)
	if err != nil {
		return err
	}
	s.Status = SourceDisabled
	s.DisabledAt = time.Now()
	return h.save(ctx, s)
}

// ReconcileAll applies the weekly flip rule: a `failed` source is disabled,
// and a `disabled` source older than 7 days is re-enabled to `active`
// (spec §4.10 "known_sources_health").
func (h *SourceHealth) ReconcileAll(ctx context.Context, now time.Time) error {
	ids, err := h.kv.SetMembers(ctx, allSourcesKey)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s, err := h.get(ctx, id)
		if err != nil {
			return err
		}
		switch s.Status {
		case SourceFailed:
			s.Status = SourceDisabled
			s.DisabledAt = now
			if err := h.save(ctx, s); err != nil {
				return err
			}
		case SourceDisabled:
			if now.Sub(s.DisabledAt) >= reenableAfter {
				s.Status = SourceActive
				s.ConsecutiveFailures = 0
				if err := h.save(ctx, s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
