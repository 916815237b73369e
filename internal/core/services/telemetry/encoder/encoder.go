package encoder

import (
	"cobalt/internal/core/domain/registry"
	"cobalt/internal/core/domain/telemetry"
	"cobalt/pkg/cobalterr"
)

// Encoder wraps a device's ClientSecret and dispatches Event/report pairs to
// the right encoding scheme (spec.md §4.2). It holds no other state; every
// method is safe to call concurrently.
type Encoder struct {
	secret ClientSecret
}

// New returns an Encoder bound to a device's client secret.
func New(secret ClientSecret) *Encoder {
	return &Encoder{secret: secret}
}

// Result is the {status, observation, metadata} triple every Encoder
// operation produces (spec.md §4.2). Status is carried as a Go error:
// nil means Ok.
type Result struct {
	Observation telemetry.Observation
	Metadata    telemetry.ObservationMetadata
}

func validateEventCodes(metric registry.Metric, codes []uint32) error {
	if len(metric.Dimensions) == 0 {
		return nil
	}
	if len(codes) != len(metric.Dimensions) {
		return cobalterr.NewInvalidArguments("event code count does not match metric dimensions")
	}
	for i, c := range codes {
		if c > metric.MaxEventCode(i) {
			return cobalterr.NewInvalidArguments("event code out of dimension bounds")
		}
	}
	return nil
}

func baseMetadata(metric registry.Metric, report registry.Report, dayIndex uint32) telemetry.ObservationMetadata {
	return telemetry.ObservationMetadata{
		MetricID: metric.ID,
		ReportID: report.ID,
		DayIndex: dayIndex,
	}
}

// EncodeImmediate dispatches event to the per-report encoding report names
// (spec.md §4.2): Forculus, String RAPPOR or Basic RAPPOR for
// SimpleOccurrenceCount, or unencoded passthrough for Histogram reports.
// IntegerEvent and Custom passthrough are not dispatched from here; any
// other report type returns InvalidConfig.
func (e *Encoder) EncodeImmediate(event telemetry.Event, metric registry.Metric, report registry.Report) (Result, error) {
	switch report.Type {
	case registry.Forculus:
		return e.encodeForculusReport(event, metric, report)
	case registry.SimpleOccurrenceCount:
		return e.encodeOccurrenceReport(event, metric, report)
	case registry.Histogram:
		return e.encodeHistogramReport(event, metric, report)
	default:
		return Result{}, cobalterr.NewInvalidConfig("report has no immediate encoding form")
	}
}

func (e *Encoder) encodeForculusReport(event telemetry.Event, metric registry.Metric, report registry.Report) (Result, error) {
	if report.Forculus == nil {
		return Result{}, cobalterr.NewInvalidConfig("Forculus report missing threshold parameter")
	}
	var value []byte
	switch ev := event.(type) {
	case telemetry.CustomEvent:
		for _, v := range ev.Values {
			if v.StringValue != nil {
				value = []byte(*v.StringValue)
				break
			}
		}
	default:
		return Result{}, cobalterr.NewInvalidArguments("event variant mismatched to Forculus report")
	}
	if value == nil {
		return Result{}, cobalterr.NewInvalidArguments("Forculus report requires a string value")
	}
	obs, err := EncodeForculus(report.Forculus.Threshold, value)
	if err != nil {
		return Result{}, err
	}
	return Result{Observation: obs, Metadata: baseMetadata(metric, report, 0)}, nil
}

func (e *Encoder) encodeOccurrenceReport(event telemetry.Event, metric registry.Metric, report registry.Report) (Result, error) {
	switch ev := event.(type) {
	case telemetry.StringEvent:
		return e.encodeStringOccurrence(ev, metric, report)
	case telemetry.OccurrenceEvent:
		return e.encodeIndexOccurrence(ev, metric, report)
	default:
		return Result{}, cobalterr.NewInvalidArguments("event variant mismatched to SimpleOccurrenceCount report")
	}
}

// encodeStringOccurrence handles a genuine string-category
// SimpleOccurrenceCount report (spec.md §8 scenario 1: a Basic RAPPOR
// metric over named categories) — the value is the category itself, not a
// packed event code.
func (e *Encoder) encodeStringOccurrence(ev telemetry.StringEvent, metric registry.Metric, report registry.Report) (Result, error) {
	switch {
	case report.Rappor != nil:
		obs, err := EncodeStringRappor(e.secret, *report.Rappor, report.ID, ev.Value)
		if err != nil {
			return Result{}, err
		}
		return Result{Observation: obs, Metadata: baseMetadata(metric, report, 0)}, nil
	case report.BasicRappor != nil:
		obs, err := EncodeBasicRappor(e.secret, *report.BasicRappor, ev.Value)
		if err != nil {
			return Result{}, err
		}
		return Result{Observation: obs, Metadata: baseMetadata(metric, report, 0)}, nil
	default:
		return Result{}, cobalterr.NewInvalidConfig("SimpleOccurrenceCount report missing encoding parameters")
	}
}

// encodeIndexOccurrence handles a dimensioned SimpleOccurrenceCount report,
// whose event codes index into the metric's declared dimensions rather
// than naming string categories directly.
func (e *Encoder) encodeIndexOccurrence(occ telemetry.OccurrenceEvent, metric registry.Metric, report registry.Report) (Result, error) {
	if err := validateEventCodes(metric, occ.EventCodes); err != nil {
		return Result{}, err
	}

	switch {
	case report.Rappor != nil:
		value := uint32BytesToString(uint32(telemetry.PackEventCodes(occ.EventCodes)))
		obs, err := EncodeStringRappor(e.secret, *report.Rappor, report.ID, value)
		if err != nil {
			return Result{}, err
		}
		return Result{Observation: obs, Metadata: baseMetadata(metric, report, 0)}, nil
	case report.BasicRappor != nil:
		maxIndex := uint32(0)
		if len(metric.Dimensions) > 0 {
			maxIndex = metric.MaxEventCode(0)
		}
		code := uint32(0)
		if len(occ.EventCodes) > 0 {
			code = occ.EventCodes[0]
		}
		obs, err := EncodeBasicRapporIndex(e.secret, maxIndex, *report.BasicRappor, code)
		if err != nil {
			return Result{}, err
		}
		return Result{Observation: obs, Metadata: baseMetadata(metric, report, 0)}, nil
	default:
		return Result{}, cobalterr.NewInvalidConfig("SimpleOccurrenceCount report missing encoding parameters")
	}
}

func (e *Encoder) encodeHistogramReport(event telemetry.Event, metric registry.Metric, report registry.Report) (Result, error) {
	hist, ok := event.(telemetry.IntHistogramEvent)
	if !ok {
		return Result{}, cobalterr.NewInvalidArguments("event variant mismatched to Histogram report")
	}
	if err := validateEventCodes(metric, hist.EventCodes); err != nil {
		return Result{}, err
	}
	packed := telemetry.PackEventCodes(hist.EventCodes)
	buckets := make([]telemetry.HistogramBucket, len(hist.Buckets))
	copy(buckets, hist.Buckets)
	obs := EncodeHistogram(hist.Component, packed, buckets)
	return Result{Observation: obs, Metadata: baseMetadata(metric, report, 0)}, nil
}

// EncodeUniqueActives produces a UniqueActives observation recording whether
// a device was active for eventCode within one aggregation window
// (spec.md §4.2, §4.7 step 3).
func (e *Encoder) EncodeUniqueActives(metric registry.Metric, report registry.Report, dayIndex, eventCode uint32, active bool, window registry.AggregationWindow) (Result, error) {
	obs := telemetry.UniqueActivesObservation{
		Window:    telemetry.AggregationWindowSpec{Days: window.Days()},
		EventCode: eventCode,
		Active:    active,
	}
	return Result{Observation: obs, Metadata: baseMetadata(metric, report, dayIndex)}, nil
}

// EncodePerDeviceNumeric produces a PerDeviceNumeric observation carrying a
// single window's combined aggregate value (spec.md §4.2, §4.7 step 4).
func (e *Encoder) EncodePerDeviceNumeric(metric registry.Metric, report registry.Report, dayIndex uint32, component string, eventCodes []uint32, value int64, window registry.AggregationWindow) (Result, error) {
	codes := make([]uint32, len(eventCodes))
	copy(codes, eventCodes)
	obs := telemetry.PerDeviceNumericObservation{
		Window:     telemetry.AggregationWindowSpec{Days: window.Days()},
		Component:  component,
		EventCodes: codes,
		Value:      value,
	}
	return Result{Observation: obs, Metadata: baseMetadata(metric, report, dayIndex)}, nil
}

// EncodePerDeviceHistogram produces a Histogram-shaped observation with a
// single bucket, for the local-aggregation PerDeviceHistogram report type
// (spec.md §4.2).
func (e *Encoder) EncodePerDeviceHistogram(metric registry.Metric, report registry.Report, dayIndex uint32, component string, eventCodes []uint32, value int64, window registry.AggregationWindow) (Result, error) {
	packed := telemetry.PackEventCodes(eventCodes)
	obs := telemetry.HistogramObservation{
		ComponentNameHash: hashComponent(component),
		EventCode:         packed,
		Buckets: []telemetry.HistogramBucket{
			{Index: uint32(window.Days()), Count: uint64(value)},
		},
	}
	return Result{Observation: obs, Metadata: baseMetadata(metric, report, dayIndex)}, nil
}

// EncodeReportParticipation produces the empty marker observation emitted
// once per obs_day per report, regardless of activity (spec.md §4.7 step 4).
func (e *Encoder) EncodeReportParticipation(metric registry.Metric, report registry.Report, dayIndex uint32) (Result, error) {
	return Result{
		Observation: telemetry.ReportParticipationObservation{},
		Metadata:    baseMetadata(metric, report, dayIndex),
	}, nil
}
