// Package registry holds the immutable, read-only catalog of customers,
// projects, metrics, and reports that every other Cobalt component
// consults. It is built once from a serialized CobaltConfig at startup and
// never mutated afterward (spec.md §4.1).
package registry

import "cobalt/pkg/cobalterr"

// MetricType enumerates the kinds of metric a device can log against.
type MetricType int

const (
	MetricTypeUnspecified MetricType = iota
	EventOccurred
	EventCount
	ElapsedTime
	FrameRate
	MemoryUsage
	IntHistogram
	Custom
)

// TimeZonePolicy selects which timezone a metric's day index is computed in.
type TimeZonePolicy int

const (
	UTC TimeZonePolicy = iota
	Local
)

// Dimension describes one event-code dimension of a metric. NamedCodes is
// optional documentation only; validation uses MaxEventCode.
type Dimension struct {
	NamedCodes   map[uint32]string
	MaxEventCode uint32
}

// ReportType enumerates the report kinds spec.md §3 names.
type ReportType int

const (
	ReportTypeUnspecified ReportType = iota
	SimpleOccurrenceCount
	UniqueNDayActives
	PerDeviceCount
	PerDeviceHistogram
	PerDeviceNumericStats
	Histogram
	Forculus
)

// AggregationType selects how per-day numeric values combine into a
// windowed aggregate (spec.md §4.6).
type AggregationType int

const (
	AggregationTypeUnspecified AggregationType = iota
	Sum
	Max
	Min
)

// WindowUnit distinguishes hour- from day-denominated aggregation windows.
type WindowUnit int

const (
	WindowDays WindowUnit = iota
	WindowHours
)

// AggregationWindow is one entry of a report's ordered window list.
// spec.md §3 invariant: days ≤ 365, hours ≤ 23.
type AggregationWindow struct {
	Unit  WindowUnit
	Count uint32
}

// Days returns the window size expressed in whole days, rounding
// hour-windows up to 1 day as spec.md §4.6's garbage_collect does
// ("hour-windows contribute 1 day").
func (w AggregationWindow) Days() uint32 {
	if w.Unit == WindowHours {
		return 1
	}
	return w.Count
}

// Validate checks the window is within the bounds spec.md §3 mandates.
func (w AggregationWindow) Validate() error {
	switch w.Unit {
	case WindowDays:
		if w.Count < 1 || w.Count > 365 {
			return cobalterr.NewInvalidArguments("day window must be in [1,365]")
		}
	case WindowHours:
		if w.Count < 1 || w.Count > 23 {
			return cobalterr.NewInvalidArguments("hour window must be in [1,23]")
		}
	default:
		return cobalterr.NewInvalidArguments("unknown window unit")
	}
	return nil
}

// RapporParams carries the privacy parameters for string RAPPOR encoding.
type RapporParams struct {
	P          float64
	Q          float64
	NumBits    uint32
	NumHashes  uint32
	NumCohorts uint32
}

// BasicRapporParams carries the category list and noise parameters for
// Basic RAPPOR (one-hot over categories, no cohorts).
type BasicRapporParams struct {
	Categories []string
	P          float64
	Q          float64
}

// ForculusParams carries the Forculus threshold-encryption parameter.
type ForculusParams struct {
	Threshold uint32
}

// ExportConfig is an opaque passthrough for downstream export settings;
// this core doesn't interpret it (out of scope, spec.md §1).
type ExportConfig struct {
	Name string
}

// Report is one way a metric's events get encoded and/or aggregated.
type Report struct {
	ID              uint32
	Type            ReportType
	AggregationType AggregationType
	Windows         []AggregationWindow
	Rappor          *RapporParams
	BasicRappor     *BasicRapporParams
	Forculus        *ForculusParams
	NoiseLevel      float64
	Export          *ExportConfig
}

// IsImmediate reports whether this report kind is encoded at log time
// rather than via local aggregation (spec.md §4.8 step 5).
func (r Report) IsImmediate() bool {
	switch r.Type {
	case SimpleOccurrenceCount, Forculus, Histogram:
		return true
	default:
		return false
	}
}

// IsLocalAggregate reports whether this report kind accumulates into the
// AggregateStore instead of (or in addition to) being encoded immediately.
func (r Report) IsLocalAggregate() bool {
	switch r.Type {
	case UniqueNDayActives, PerDeviceCount, PerDeviceHistogram, PerDeviceNumericStats:
		return true
	default:
		return false
	}
}

// Metric is a pre-registered schema entry a device logs events against.
type Metric struct {
	ID                  uint32
	Type                MetricType
	Dimensions          []Dimension
	TimeZonePolicy      TimeZonePolicy
	Reports             []Report
	SystemProfileFields []string
}

// MaxEventCode returns the maximum legal event code for dimension i, or 0
// if the metric declares no dimensions (spec.md §4.8 step 4).
func (m Metric) MaxEventCode(dimension int) uint32 {
	if dimension < 0 || dimension >= len(m.Dimensions) {
		return 0
	}
	return m.Dimensions[dimension].MaxEventCode
}

// Project is a named collection of metrics belonging to one customer.
type Project struct {
	ID      uint32
	Name    string
	Metrics []Metric
}

// Customer owns a set of projects.
type Customer struct {
	ID       uint32
	Name     string
	Projects []Project
}
