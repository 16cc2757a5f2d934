package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/novaos/novaos/internal/kvs"
)

// Archiver persists a record's raw payload before it is deleted from the
// KVS. internal/audit's Postgres-backed archive store satisfies this.
type Archiver interface {
	Archive(ctx context.Context, category, key string, payload []byte, recordedAt time.Time) error
}

// RetentionPolicy names one (pattern, retentionDays, archive?) rule (spec
// §4.10 "retention_enforcement"). The timestamp is read from the raw JSON
// value's top-level RecordedAtField key ("UpdatedAt" for sword entities,
// "timestamp" for audit records) to decide whether an entry has aged out.
type RetentionPolicy struct {
	Category        string
	Pattern         string
	RetentionDays   int
	Archive         bool
	RecordedAtField string
}

// DefaultRetentionPolicies mirrors config.RetentionConfig into the
// enumerated policy list the scheduler walks.
func DefaultRetentionPolicies(goalDays, questDays, stepDays, sparkDays, auditDays int, archiveAudit bool) []RetentionPolicy {
	return []RetentionPolicy{
		{Category: "goal", Pattern: "sword:goal:*", RetentionDays: goalDays, RecordedAtField: "UpdatedAt"},
		{Category: "quest", Pattern: "sword:quest:*", RetentionDays: questDays, RecordedAtField: "UpdatedAt"},
		{Category: "step", Pattern: "sword:step:*", RetentionDays: stepDays, RecordedAtField: "UpdatedAt"},
		{Category: "spark", Pattern: "sword:spark:*", RetentionDays: sparkDays, RecordedAtField: "UpdatedAt"},
		{Category: "audit", Pattern: "audit:response:*", RetentionDays: auditDays, Archive: archiveAudit, RecordedAtField: "timestamp"},
	}
}

// RetentionEnforcer walks each policy's key pattern and deletes (or
// archives then deletes) entries older than the policy's retention window.
// This is the one legitimate use of kvs.Store.Scan in the whole module
// (spec §9 open question 2 / §4.10): a batch, offline sweep, never a
// request-serving path.
type RetentionEnforcer struct {
	kv       kvs.Store
	archiver Archiver
	policies []RetentionPolicy
	log      *slog.Logger
}

func NewRetentionEnforcer(kv kvs.Store, archiver Archiver, policies []RetentionPolicy, log *slog.Logger) *RetentionEnforcer {
	return &RetentionEnforcer{kv: kv, archiver: archiver, policies: policies, log: log}
}

func (r *RetentionEnforcer) Run(ctx context.Context, now time.Time) error {
	for _, p := range r.policies {
		cutoff := now.AddDate(0, 0, -p.RetentionDays)
		if err := r.enforcePolicy(ctx, p, cutoff); err != nil {
			return err
		}
	}
	return nil
}

func (r *RetentionEnforcer) enforcePolicy(ctx context.Context, p RetentionPolicy, cutoff time.Time) error {
	return r.kv.Scan(ctx, p.Pattern, func(key string) error {
		raw, ok, err := r.kv.Get(ctx, key)
		if err != nil || !ok {
			return err
		}
		recordedAt, err := extractTimestamp(raw, p.RecordedAtField)
		if err != nil {
			r.log.Warn("retention: skipping unparsable record", "key", key, "error", err)
			return nil
		}
		if recordedAt.After(cutoff) {
			return nil
		}
		if p.Archive && r.archiver != nil {
			if err := r.archiver.Archive(ctx, p.Category, key, []byte(raw), recordedAt); err != nil {
				return err
			}
		}
		return r.kv.Delete(ctx, key)
	})
}

func extractTimestamp(raw, field string) (time.Time, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return time.Time{}, err
	}
	v, ok := doc[field]
	if !ok {
		return time.Time{}, nil
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
