package aggregate

import "cobalt/internal/core/domain/registry"

// largestWindowDays returns the largest window size in whole days across a
// report's aggregation windows, counting every hour-window as contributing
// one day (spec.md §4.6 garbage_collect: "hour-windows contribute 1 day").
func largestWindowDays(windows []registry.AggregationWindow) uint32 {
	var max uint32
	for _, w := range windows {
		if d := w.Days(); d > max {
			max = d
		}
	}
	return max
}

// keepThreshold returns D - backfill_days - W, clamped to 0 so it never
// wraps around uint32's zero point. garbage_collect removes every day_index
// at or below this value; the smallest retained day_index is one above it.
func keepThreshold(d uint32, backfillDays, windowDays uint32) uint32 {
	total := int64(backfillDays) + int64(windowDays)
	threshold := int64(d) - total
	if threshold < 0 {
		return 0
	}
	return uint32(threshold)
}

// GarbageCollect removes every day-index entry older than its report's
// retention window (spec.md §4.6 garbage_collect). For each key, let
// D = day_utc if the metric is UTC-zoned else day_local; a day entry is
// removed iff day ≤ D − backfill_days − W, where W is the largest
// configured window in days.
func (s *Store) GarbageCollect(dayUTC, dayLocal uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, cfg := range s.configs {
		ra, ok := s.data.Entries[key]
		if !ok {
			continue
		}

		d := dayUTC
		if cfg.metric.TimeZonePolicy == registry.Local {
			d = dayLocal
		}
		w := largestWindowDays(cfg.windows)
		threshold := keepThreshold(d, s.backfillDays, w)

		if ra.UniqueActives != nil {
			for day := range ra.UniqueActives.ByDay {
				if day <= threshold {
					delete(ra.UniqueActives.ByDay, day)
				}
			}
		}
		if ra.Numeric != nil {
			for nk, days := range ra.Numeric.ByDay {
				for day := range days {
					if day <= threshold {
						delete(days, day)
					}
				}
				if len(days) == 0 {
					delete(ra.Numeric.ByDay, nk)
				}
			}
		}
	}
}
