package aggregate

import "cobalt/internal/core/domain/telemetry"

// copyLocalAggregateStore deep-clones a LocalAggregateStore so generation
// code can traverse it without holding the Store's lock (spec.md §4.6
// copy_store(), §5 "copy-on-read").
func copyLocalAggregateStore(s *telemetry.LocalAggregateStore) *telemetry.LocalAggregateStore {
	out := &telemetry.LocalAggregateStore{
		Version: s.Version,
		Entries: make(map[string]*telemetry.ReportAggregates, len(s.Entries)),
	}
	for key, ra := range s.Entries {
		out.Entries[key] = copyReportAggregates(ra)
	}
	return out
}

func copyReportAggregates(ra *telemetry.ReportAggregates) *telemetry.ReportAggregates {
	out := &telemetry.ReportAggregates{}
	if ra.UniqueActives != nil {
		out.UniqueActives = copyUniqueActives(ra.UniqueActives)
	}
	if ra.Numeric != nil {
		out.Numeric = copyNumeric(ra.Numeric)
	}
	return out
}

func copyUniqueActives(ua *telemetry.UniqueActivesAggregates) *telemetry.UniqueActivesAggregates {
	out := telemetry.NewUniqueActivesAggregates()
	for day, codes := range ua.ByDay {
		inner := make(map[uint32]bool, len(codes))
		for code, active := range codes {
			inner[code] = active
		}
		out.ByDay[day] = inner
	}
	for code, windows := range ua.LastGenerated {
		inner := make(map[uint32]uint32, len(windows))
		for w, d := range windows {
			inner[w] = d
		}
		out.LastGenerated[code] = inner
	}
	return out
}

func copyNumeric(na *telemetry.NumericAggregates) *telemetry.NumericAggregates {
	out := telemetry.NewNumericAggregates()
	for key, days := range na.ByDay {
		inner := make(map[uint32]int64, len(days))
		for d, v := range days {
			inner[d] = v
		}
		out.ByDay[key] = inner
	}
	for key, windows := range na.LastGenerated {
		inner := make(map[uint32]uint32, len(windows))
		for w, d := range windows {
			inner[w] = d
		}
		out.LastGenerated[key] = inner
	}
	return out
}
