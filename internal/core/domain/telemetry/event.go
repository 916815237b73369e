package telemetry

// Event is the sealed set of event variants a device can log (spec.md §3).
// A tagged-union interface rather than a class hierarchy, per the design
// notes in spec.md §9: the set of kinds is closed, so a type switch on a
// concrete struct beats a polymorphic EventLogger hierarchy.
type Event interface {
	isEvent()
}

// OccurrenceEvent records that one or more event codes occurred.
type OccurrenceEvent struct {
	EventCodes []uint32
}

func (OccurrenceEvent) isEvent() {}

// StringEvent records a single string value, for SimpleOccurrenceCount
// reports encoded over named string categories (String RAPPOR, or Basic
// RAPPOR one-hot over a category list) rather than integer event codes.
type StringEvent struct {
	Value string
}

func (StringEvent) isEvent() {}

// CountEvent records a count observed over a period for one component.
type CountEvent struct {
	Component          string
	EventCodes         []uint32
	PeriodDurationMicros int64
	Count              int64
}

func (CountEvent) isEvent() {}

// ElapsedTimeEvent records a duration for one component.
type ElapsedTimeEvent struct {
	Component    string
	EventCodes   []uint32
	ElapsedMicros int64
}

func (ElapsedTimeEvent) isEvent() {}

// FrameRateEvent records a frame rate for one component.
type FrameRateEvent struct {
	Component           string
	EventCodes          []uint32
	FramesPer1000Seconds int64
}

func (FrameRateEvent) isEvent() {}

// MemoryUsageEvent records memory usage for one component.
type MemoryUsageEvent struct {
	Component  string
	EventCodes []uint32
	Bytes      int64
}

func (MemoryUsageEvent) isEvent() {}

// HistogramBucket is one (index, count) pair of an IntHistogramEvent.
type HistogramBucket struct {
	Index uint32
	Count uint64
}

// IntHistogramEvent records a histogram of integer buckets for one component.
type IntHistogramEvent struct {
	Component  string
	EventCodes []uint32
	Buckets    []HistogramBucket
}

func (IntHistogramEvent) isEvent() {}

// CustomEvent carries an arbitrary name->value map for Custom metrics.
type CustomEvent struct {
	Values map[string]CustomValue
}

func (CustomEvent) isEvent() {}

// CustomValue is one field of a CustomEvent; exactly one member is set.
type CustomValue struct {
	StringValue *string
	IntValue    *int64
	DoubleValue *float64
	IndexValue  *uint32
}

// LoggedEvent pairs an Event with the day index it was recorded under
// (spec.md §3: "Each logged event carries a day_index... in the metric's
// time zone").
type LoggedEvent struct {
	Event     Event
	DayIndex  uint32
	MetricID  uint32
}
