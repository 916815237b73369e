// Package logger implements the per-project Logger façade (spec.md §4.8)
// and its UndatedEventManager companion (spec.md §4.9). A Logger holds no
// state of its own beyond what its constructor collaborators (registry,
// encoder, aggregate store, writer, clock) already own.
package logger

import (
	"log/slog"
	"time"

	"cobalt/internal/core/domain/registry"
	"cobalt/internal/core/domain/telemetry"
	"cobalt/internal/core/services/telemetry/aggregate"
	"cobalt/internal/core/services/telemetry/encoder"
	"cobalt/internal/core/services/telemetry/envelope"
	"cobalt/pkg/clock"
	"cobalt/pkg/cobalterr"
	"cobalt/pkg/logging"
)

// dropLogWindow/dropLogBurst bound how often a recurring dispatch failure
// (a misconfigured report, say, that will fail identically on every future
// logged event) gets logged, per spec.md §7's "log first N then suppress"
// discipline for self-amplifying error volumes.
const (
	dropLogWindow = 10 * time.Second
	dropLogBurst  = 3
)

// Logger is the per-project entry point spec.md §4.8 describes: it resolves
// metrics from the registry, diverts events while the clock is inaccurate,
// computes day indices, validates event codes, and dispatches each logged
// event to the report(s) that reference its metric.
type Logger struct {
	registry   *registry.Registry
	key        telemetry.ProjectKey
	encoder    *encoder.Encoder
	aggStore   *aggregate.Store
	writer     *envelope.Writer
	clk        clock.Clock
	validator  clock.Validator
	undated    *UndatedEventManager
	dropLogger *logging.RateLimited
}

// New builds a Logger bound to one project's collaborators. undated may be
// nil only in tests that never flip the clock validator to inaccurate.
// logger may be nil, in which case dispatch failures go unlogged (callers
// still get them back as the returned error).
func New(reg *registry.Registry, key telemetry.ProjectKey, enc *encoder.Encoder, aggStore *aggregate.Store, writer *envelope.Writer, clk clock.Clock, validator clock.Validator, undated *UndatedEventManager, logger *slog.Logger) *Logger {
	l := &Logger{
		registry:  reg,
		key:       key,
		encoder:   enc,
		aggStore:  aggStore,
		writer:    writer,
		clk:       clk,
		validator: validator,
		undated:   undated,
	}
	if logger != nil {
		l.dropLogger = logging.NewRateLimited(logger, dropLogWindow, dropLogBurst)
	}
	return l
}

// LogEvent implements spec.md §4.8's log_X procedure. It is the single
// dispatch point every convenience method below funnels through.
func (l *Logger) LogEvent(metricID uint32, event telemetry.Event) error {
	metric, err := l.registry.GetMetric(l.key.CustomerID, l.key.ProjectID, metricID)
	if err != nil {
		return err
	}

	if l.validator != nil && !l.validator.IsAccurate() {
		if l.undated == nil {
			return nil
		}
		err := l.undated.Save(event, metric)
		// AlreadyFlushed with an accurate clock means the clock flipped
		// between the check above and Save: log directly instead.
		if cobalterr.StatusOf(err) != cobalterr.AlreadyFlushed || !l.validator.IsAccurate() {
			return err
		}
	}

	tz := clock.UTC
	if metric.TimeZonePolicy == registry.Local {
		tz = clock.Local
	}
	dayIndex := l.clk.DayIndex(l.clk.Now(), tz)
	return l.logAt(metric, event, dayIndex)
}

// FlushUndated replays every event the UndatedEventManager is holding
// through this Logger's dispatch path, to be called once the clock
// validator transitions to accurate (spec.md §4.9).
func (l *Logger) FlushUndated() error {
	if l.undated == nil {
		return nil
	}
	return l.undated.Flush(l.logAt)
}

// LogOccurrence logs a SimpleOccurrenceCount-shaped event.
func (l *Logger) LogOccurrence(metricID uint32, eventCodes []uint32) error {
	return l.LogEvent(metricID, telemetry.OccurrenceEvent{EventCodes: eventCodes})
}

// LogString logs a SimpleOccurrenceCount-shaped event whose report encodes
// a named string category directly (String RAPPOR or Basic RAPPOR over a
// category list) rather than an integer event code.
func (l *Logger) LogString(metricID uint32, value string) error {
	return l.LogEvent(metricID, telemetry.StringEvent{Value: value})
}

// LogCount logs a count observed over a period for one component.
func (l *Logger) LogCount(metricID uint32, eventCodes []uint32, component string, periodDurationMicros, count int64) error {
	return l.LogEvent(metricID, telemetry.CountEvent{
		Component:            component,
		EventCodes:           eventCodes,
		PeriodDurationMicros: periodDurationMicros,
		Count:                count,
	})
}

// LogElapsedTime logs a duration for one component.
func (l *Logger) LogElapsedTime(metricID uint32, eventCodes []uint32, component string, elapsedMicros int64) error {
	return l.LogEvent(metricID, telemetry.ElapsedTimeEvent{
		Component:     component,
		EventCodes:    eventCodes,
		ElapsedMicros: elapsedMicros,
	})
}

// LogFrameRate logs a frame rate for one component.
func (l *Logger) LogFrameRate(metricID uint32, eventCodes []uint32, component string, framesPer1000Seconds int64) error {
	return l.LogEvent(metricID, telemetry.FrameRateEvent{
		Component:            component,
		EventCodes:           eventCodes,
		FramesPer1000Seconds: framesPer1000Seconds,
	})
}

// LogMemoryUsage logs memory usage for one component.
func (l *Logger) LogMemoryUsage(metricID uint32, eventCodes []uint32, component string, bytes int64) error {
	return l.LogEvent(metricID, telemetry.MemoryUsageEvent{
		Component:  component,
		EventCodes: eventCodes,
		Bytes:      bytes,
	})
}

// LogIntHistogram logs a histogram of integer buckets for one component.
func (l *Logger) LogIntHistogram(metricID uint32, eventCodes []uint32, component string, buckets []telemetry.HistogramBucket) error {
	return l.LogEvent(metricID, telemetry.IntHistogramEvent{
		Component:  component,
		EventCodes: eventCodes,
		Buckets:    buckets,
	})
}

// LogCustomEvent logs a Custom-metric event.
func (l *Logger) LogCustomEvent(metricID uint32, values map[string]telemetry.CustomValue) error {
	return l.LogEvent(metricID, telemetry.CustomEvent{Values: values})
}

// logAt runs the validated dispatch (spec.md §4.8 steps 4-5) once a day
// index has been settled, either from the live clock or a replayed
// UndatedEventManager entry.
func (l *Logger) logAt(metric registry.Metric, event telemetry.Event, dayIndex uint32) error {
	codes, hasCodes := eventCodesOf(event)
	if len(metric.Dimensions) > 0 {
		if !hasCodes || len(codes) != len(metric.Dimensions) {
			return cobalterr.NewInvalidArguments("event code count does not match metric dimensions")
		}
		for i, c := range codes {
			if c > metric.MaxEventCode(i) {
				return cobalterr.NewInvalidArguments("event code out of dimension bounds")
			}
		}
	}

	var worst error
	recordFailure := func(err error) {
		if worst == nil {
			worst = err
		}
		if l.dropLogger != nil {
			l.dropLogger.Warn("report dispatch failed, dropping event for this report",
				"metric_id", metric.ID,
				"status", cobalterr.StatusOf(err),
				"error", err,
			)
		}
	}

	for _, report := range metric.Reports {
		key := telemetry.ReportAggregationKey{
			ProjectKey:     l.key,
			MetricReportId: telemetry.MetricReportId{MetricID: metric.ID, ReportID: report.ID},
		}

		if report.IsImmediate() {
			result, err := l.encoder.EncodeImmediate(event, metric, report)
			if err != nil {
				recordFailure(err)
			} else {
				result.Metadata.CustomerID = l.key.CustomerID
				result.Metadata.ProjectID = l.key.ProjectID
				result.Metadata.DayIndex = dayIndex
				if err := l.writer.Write(result.Observation, result.Metadata); err != nil {
					recordFailure(err)
				}
			}
		}

		if report.IsLocalAggregate() {
			if err := l.aggStore.MaybeInsertReportConfig(key, metric, report); err != nil {
				recordFailure(err)
				continue
			}
			switch report.Type {
			case registry.UniqueNDayActives:
				code := uint32(0)
				if len(codes) > 0 {
					code = codes[0]
				}
				l.aggStore.SetActive(key, code, dayIndex)
			case registry.PerDeviceCount, registry.PerDeviceHistogram, registry.PerDeviceNumericStats:
				component, numCodes, value, ok := numericValueOf(event)
				if !ok {
					recordFailure(cobalterr.NewInvalidArguments("event variant mismatched to local-aggregate report"))
					continue
				}
				packed := telemetry.PackEventCodes(numCodes)
				l.aggStore.UpdateNumeric(key, component, packed, dayIndex, value)
			}
		}
	}
	return worst
}

// eventCodesOf extracts the dimension codes carried by event, for variants
// that carry any.
func eventCodesOf(event telemetry.Event) ([]uint32, bool) {
	switch e := event.(type) {
	case telemetry.OccurrenceEvent:
		return e.EventCodes, true
	case telemetry.CountEvent:
		return e.EventCodes, true
	case telemetry.ElapsedTimeEvent:
		return e.EventCodes, true
	case telemetry.FrameRateEvent:
		return e.EventCodes, true
	case telemetry.MemoryUsageEvent:
		return e.EventCodes, true
	case telemetry.IntHistogramEvent:
		return e.EventCodes, true
	default:
		return nil, false
	}
}

// numericValueOf extracts the (component, event_codes, value) triple a
// PerDeviceCount/Histogram/NumericStats report aggregates.
func numericValueOf(event telemetry.Event) (component string, eventCodes []uint32, value int64, ok bool) {
	switch e := event.(type) {
	case telemetry.CountEvent:
		return e.Component, e.EventCodes, e.Count, true
	case telemetry.ElapsedTimeEvent:
		return e.Component, e.EventCodes, e.ElapsedMicros, true
	case telemetry.FrameRateEvent:
		return e.Component, e.EventCodes, e.FramesPer1000Seconds, true
	case telemetry.MemoryUsageEvent:
		return e.Component, e.EventCodes, e.Bytes, true
	default:
		return "", nil, 0, false
	}
}
