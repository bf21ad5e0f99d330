package pipeline

import (
	"context"
	"fmt"
	"time"

	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/errs"
	"eve.evalgo.org/otelscrape/jsonpath"
	"eve.evalgo.org/otelscrape/record"
	"eve.evalgo.org/otelscrape/store"
)

// Stats reports what the pipeline did to one unit's record stream,
// for self-telemetry (spec.md §4.8).
type Stats struct {
	Input         int
	DroppedByRule int
	KeptByRule    int // informational: records surviving both the drop and keep stages
	Capped        int
	DedupeHits    int
	DedupeMisses  int
}

// Run applies filters, the per-scrape cap, and dedup in the fixed
// order of spec.md §4.7, returning the surviving records. maxEntries
// is the fingerprint store's per-source entry cap (spec.md §4.3),
// enforced after every insert.
func Run(ctx context.Context, st store.Store, source string, filters config.FiltersSpec, maxRecords *int, dedup config.DedupConfig, maxEntries int, records []record.Value) ([]record.Value, Stats, error) {
	stats := Stats{Input: len(records)}

	filtered, err := applyFilters(records, filters, &stats)
	if err != nil {
		return nil, stats, err
	}

	limit := -1
	if maxRecords != nil {
		limit = *maxRecords
	}
	capped := applyCap(filtered, limit, &stats)

	if !dedup.Enabled {
		return capped, stats, nil
	}
	return applyDedup(ctx, st, source, dedup, maxEntries, capped, &stats)
}

func applyFilters(records []record.Value, filters config.FiltersSpec, stats *Stats) ([]record.Value, error) {
	out := make([]record.Value, 0, len(records))
	for _, rec := range records {
		dropped := false
		for _, rule := range filters.Drop {
			match, err := matchRule(rec, rule, false)
			if err != nil {
				return nil, err
			}
			if match {
				dropped = true
				break
			}
		}
		if dropped {
			stats.DroppedByRule++
			continue
		}

		if len(filters.Keep) > 0 {
			kept := false
			for _, rule := range filters.Keep {
				match, err := matchRule(rec, rule, true)
				if err != nil {
					return nil, err
				}
				if match {
					kept = true
					break
				}
			}
			if !kept {
				stats.DroppedByRule++
				continue
			}
		}

		stats.KeptByRule++
		out = append(out, rec)
	}
	return out, nil
}

// applyCap truncates to maxRecords, preserving order; maxRecords == 0
// suppresses all emissions, and a negative value means "uncapped"
// (spec.md §8).
func applyCap(records []record.Value, maxRecords int, stats *Stats) []record.Value {
	if maxRecords == 0 {
		stats.Capped += len(records)
		return nil
	}
	if maxRecords < 0 || maxRecords >= len(records) {
		return records
	}
	stats.Capped += len(records) - maxRecords
	return records[:maxRecords]
}

func applyDedup(ctx context.Context, st store.Store, source string, dedup config.DedupConfig, maxEntries int, records []record.Value, stats *Stats) ([]record.Value, error) {
	mode := record.FingerprintFullRecord
	if dedup.FingerprintMode == "keys" {
		mode = record.FingerprintKeys
	}

	digests := make([]string, len(records))
	for i, rec := range records {
		var keyValues []string
		if mode == record.FingerprintKeys {
			keyValues = make([]string, len(dedup.FingerprintKeys))
			for j, path := range dedup.FingerprintKeys {
				val, _, _, err := jsonpath.Extract(rec, path)
				if err != nil {
					return nil, errs.Wrap(errs.Store, "dedup_resolve_key", "resolve fingerprint key", err)
				}
				s, _ := val.Str()
				keyValues[j] = s
			}
		}
		digests[i] = record.Digest(mode, rec, dedup.FingerprintKeys, keyValues)
	}

	survivors := make([]record.Value, 0, len(records))
	var misses []string
	for i, rec := range records {
		seen, err := st.Seen(ctx, source, digests[i])
		if err != nil {
			return nil, errs.Wrap(errs.Store, "dedup_seen", "check fingerprint store", err)
		}
		if seen {
			stats.DedupeHits++
			continue
		}
		stats.DedupeMisses++
		survivors = append(survivors, rec)
		misses = append(misses, digests[i])
	}

	if len(misses) > 0 {
		ttl := time.Duration(dedup.TTLSeconds) * time.Second
		if ttl <= 0 {
			return nil, fmt.Errorf("pipeline: dedup ttlSeconds must be positive")
		}
		if err := st.InsertMany(ctx, source, misses, ttl); err != nil {
			return nil, errs.Wrap(errs.Store, "dedup_insert", "insert fingerprints", err)
		}
		if maxEntries > 0 {
			if err := st.EnforceCap(ctx, source, maxEntries); err != nil {
				return nil, errs.Wrap(errs.Store, "dedup_enforce_cap", "evict over-cap fingerprints", err)
			}
		}
	}

	return survivors, nil
}
