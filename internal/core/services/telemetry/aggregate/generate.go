package aggregate

import (
	"cobalt/internal/core/domain/registry"
	"cobalt/internal/core/domain/telemetry"
	"cobalt/internal/core/services/telemetry/encoder"
	"cobalt/internal/core/services/telemetry/envelope"
)

// dayWindowsAscending returns a report's day-denominated windows (hour
// windows are skipped in this version, spec.md §4.7 step 5). cfg.windows is
// already hour-first-then-day-ascending normalized, so the day-window
// suffix is already in ascending order.
func dayWindowsAscending(windows []registry.AggregationWindow) []registry.AggregationWindow {
	var out []registry.AggregationWindow
	for _, w := range windows {
		if w.Unit == registry.WindowDays {
			out = append(out, w)
		}
	}
	return out
}

func maxUint32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// GenerateObservations implements spec.md §4.7's generate_observations,
// walking every ReportAggregates entry and emitting UniqueActives,
// PerDeviceNumeric/Histogram, and ReportParticipation observations through
// writer. It operates on a snapshot (CopyStore) so the lock isn't held for
// the whole pass; last_generated cursors are then applied back to the live
// store under lock.
func (s *Store) GenerateObservations(finalUTC, finalLocal uint32, enc *encoder.Encoder, writer *envelope.Writer) error {
	snapshot := s.CopyStore()

	s.mu.RLock()
	configs := make(map[string]reportConfig, len(s.configs))
	for k, v := range s.configs {
		configs[k] = v
	}
	s.mu.RUnlock()

	for encKey, ra := range snapshot.Entries {
		cfg, ok := configs[encKey]
		if !ok {
			continue
		}
		key, err := telemetry.DecodeReportAggregationKey(encKey)
		if err != nil {
			continue
		}

		final := finalUTC
		if cfg.metric.TimeZonePolicy == registry.Local {
			final = finalLocal
		}
		backfillStart := keepThreshold(final, s.backfillDays, 0)

		if ra.UniqueActives != nil {
			if err := s.generateUniqueActives(key, cfg, ra.UniqueActives, backfillStart, final, enc, writer); err != nil {
				return err
			}
		}
		if ra.Numeric != nil {
			if err := s.generateNumeric(key, cfg, ra.Numeric, backfillStart, final, enc, writer); err != nil {
				return err
			}
		}
		if err := s.generateReportParticipation(key, cfg, backfillStart, final, enc, writer); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) generateUniqueActives(key telemetry.ReportAggregationKey, cfg reportConfig, ua *telemetry.UniqueActivesAggregates, backfillStart, final uint32, enc *encoder.Encoder, writer *envelope.Writer) error {
	maxCode := cfg.metric.MaxEventCode(0)
	windows := dayWindowsAscending(cfg.windows)

	for e := uint32(0); e <= maxCode; e++ {
		for _, w := range windows {
			windowDays := w.Days()

			last := uint32(0)
			if byCode, ok := ua.LastGenerated[e]; ok {
				last = byCode[windowDays]
			}
			start := maxUint32(last+1, backfillStart)

			for obsDay := start; obsDay <= final; obsDay++ {
				active := wasActiveInWindow(ua, e, obsDay, windowDays)

				result, err := enc.EncodeUniqueActives(cfg.metric, cfg.report, obsDay, e, active, w)
				if err != nil {
					return err
				}
				if err := writer.Write(result.Observation, observationMetadataFor(key, obsDay)); err != nil {
					return err
				}

				s.mu.Lock()
				liveRA, ok := s.data.Entries[key.Encode()]
				if ok && liveRA.UniqueActives != nil {
					if liveRA.UniqueActives.LastGenerated[e] == nil {
						liveRA.UniqueActives.LastGenerated[e] = make(map[uint32]uint32)
					}
					liveRA.UniqueActives.LastGenerated[e][windowDays] = obsDay
				}
				s.mu.Unlock()
			}
		}
	}
	return nil
}

// wasActiveInWindow reports whether any day in (obsDay-windowDays, obsDay]
// has an activity indicator for eventCode (spec.md §4.7 step 3).
func wasActiveInWindow(ua *telemetry.UniqueActivesAggregates, eventCode, obsDay, windowDays uint32) bool {
	lowExclusive := keepThreshold(obsDay, 0, windowDays)
	for day := lowExclusive + 1; day <= obsDay; day++ {
		if codes, ok := ua.ByDay[day]; ok && codes[eventCode] {
			return true
		}
	}
	return false
}

func (s *Store) generateNumeric(key telemetry.ReportAggregationKey, cfg reportConfig, na *telemetry.NumericAggregates, backfillStart, final uint32, enc *encoder.Encoder, writer *envelope.Writer) error {
	windows := dayWindowsAscending(cfg.windows)

	for nk, days := range na.ByDay {
		eventCodes := telemetry.UnpackEventCodes(nk.Codes, len(cfg.metric.Dimensions))

		for _, w := range windows {
			windowDays := w.Days()

			last := uint32(0)
			if byKey, ok := na.LastGenerated[nk]; ok {
				last = byKey[windowDays]
			}
			start := maxUint32(last+1, backfillStart)

			for obsDay := start; obsDay <= final; obsDay++ {
				value, contributed := combineWindow(days, obsDay, windowDays, cfg.report.AggregationType)
				if !contributed {
					continue
				}

				var result encoder.Result
				var err error
				if cfg.report.Type == registry.PerDeviceHistogram {
					result, err = enc.EncodePerDeviceHistogram(cfg.metric, cfg.report, obsDay, nk.Component, eventCodes, value, w)
				} else {
					result, err = enc.EncodePerDeviceNumeric(cfg.metric, cfg.report, obsDay, nk.Component, eventCodes, value, w)
				}
				if err != nil {
					return err
				}
				if err := writer.Write(result.Observation, observationMetadataFor(key, obsDay)); err != nil {
					return err
				}
				s.recordNumericGenerated(key, nk, windowDays, obsDay)
			}
		}
	}
	return nil
}

func (s *Store) recordNumericGenerated(key telemetry.ReportAggregationKey, nk telemetry.NumericKey, windowDays, obsDay uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	liveRA, ok := s.data.Entries[key.Encode()]
	if !ok || liveRA.Numeric == nil {
		return
	}
	if liveRA.Numeric.LastGenerated[nk] == nil {
		liveRA.Numeric.LastGenerated[nk] = make(map[uint32]uint32)
	}
	liveRA.Numeric.LastGenerated[nk][windowDays] = obsDay
}

// combineWindow folds the per-day values in (obsDay-windowDays, obsDay]
// under aggType, reporting whether any day contributed a value.
func combineWindow(days map[uint32]int64, obsDay, windowDays uint32, aggType registry.AggregationType) (int64, bool) {
	lowExclusive := keepThreshold(obsDay, 0, windowDays)
	var value int64
	contributed := false
	for day := lowExclusive + 1; day <= obsDay; day++ {
		v, ok := days[day]
		if !ok {
			continue
		}
		if !contributed {
			value = v
		} else {
			switch aggType {
			case registry.Sum:
				value += v
			case registry.Max:
				if v > value {
					value = v
				}
			case registry.Min:
				if v < value {
					value = v
				}
			}
		}
		contributed = true
	}
	return value, contributed
}

// generateReportParticipation emits one marker observation per obs_day per
// report regardless of activity, tracked independently in the
// AggregatedObservationHistoryStore (spec.md §4.7 step 4).
func (s *Store) generateReportParticipation(key telemetry.ReportAggregationKey, cfg reportConfig, backfillStart, final uint32, enc *encoder.Encoder, writer *envelope.Writer) error {
	encKey := key.Encode()

	s.mu.RLock()
	last := s.history.LastGeneratedDay[encKey]
	s.mu.RUnlock()

	start := maxUint32(last+1, backfillStart)
	for obsDay := start; obsDay <= final; obsDay++ {
		result, err := enc.EncodeReportParticipation(cfg.metric, cfg.report, obsDay)
		if err != nil {
			return err
		}
		if err := writer.Write(result.Observation, observationMetadataFor(key, obsDay)); err != nil {
			return err
		}

		s.mu.Lock()
		s.history.LastGeneratedDay[encKey] = obsDay
		s.mu.Unlock()
	}
	return nil
}

func observationMetadataFor(key telemetry.ReportAggregationKey, dayIndex uint32) telemetry.ObservationMetadata {
	return telemetry.ObservationMetadata{
		CustomerID: key.CustomerID,
		ProjectID:  key.ProjectID,
		MetricID:   key.MetricID,
		ReportID:   key.ReportID,
		DayIndex:   dayIndex,
	}
}
