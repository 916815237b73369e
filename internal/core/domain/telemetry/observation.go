package telemetry

// Observation is the sealed set of encoded-observation variants
// (spec.md §3). Each Encoder operation in spec.md §4.2 produces exactly
// one of these.
type Observation interface {
	isObservation()
}

// ForculusObservation is threshold-encrypted ciphertext for string-tally
// reports.
type ForculusObservation struct {
	Ciphertext []byte
	PointX     []byte // public x-coordinate share
}

func (ForculusObservation) isObservation() {}

// RapporObservation is a noised Bloom-filter bit string plus its cohort.
type RapporObservation struct {
	Bits   []byte
	Cohort uint32
}

func (RapporObservation) isObservation() {}

// BasicRapporObservation is a noised one-hot bit string (no cohorts).
type BasicRapporObservation struct {
	Bits []byte
}

func (BasicRapporObservation) isObservation() {}

// IntegerEventObservation is an unencoded numeric event with its component
// name replaced by a hash.
type IntegerEventObservation struct {
	ComponentNameHash []byte
	EventCode         uint64
	Value             int64
}

func (IntegerEventObservation) isObservation() {}

// HistogramObservation is an unencoded histogram event, or the single-bucket
// form the local-aggregation path emits (spec.md §4.2 encode_per_device_histogram).
type HistogramObservation struct {
	ComponentNameHash []byte
	EventCode         uint64
	Buckets           []HistogramBucket
}

func (HistogramObservation) isObservation() {}

// CustomObservation is an unencoded CustomEvent passthrough.
type CustomObservation struct {
	Values map[string]CustomValue
}

func (CustomObservation) isObservation() {}

// UniqueActivesObservation records whether a device was active for one
// event code within one aggregation window, on one day.
type UniqueActivesObservation struct {
	Window    AggregationWindowSpec
	EventCode uint32
	Active    bool
}

func (UniqueActivesObservation) isObservation() {}

// PerDeviceNumericObservation carries a combined numeric aggregate for one
// component across one aggregation window.
type PerDeviceNumericObservation struct {
	Window     AggregationWindowSpec
	Component  string
	EventCodes []uint32
	Value      int64
}

func (PerDeviceNumericObservation) isObservation() {}

// ReportParticipationObservation is an empty marker observation used
// downstream to infer fleet size (spec.md §4.2).
type ReportParticipationObservation struct{}

func (ReportParticipationObservation) isObservation() {}

// AggregationWindowSpec mirrors registry.AggregationWindow without
// importing the registry package, keeping the telemetry domain free of a
// dependency on the registry domain (only the encoder and aggregate
// services need both).
type AggregationWindowSpec struct {
	Days  uint32
	Hours uint32
}

// ObservationMetadata identifies which report, metric, project, customer,
// and day an Observation belongs to (spec.md §3).
type ObservationMetadata struct {
	SystemProfile *SystemProfile
	CustomerID    uint32
	ProjectID     uint32
	MetricID      uint32
	ReportID      uint32
	DayIndex      uint32
}

// SystemProfile is a snapshot of board/OS/arch/channel/experiments
// attached to observations by the SystemData component (spec.md §4 table).
type SystemProfile struct {
	Board        string
	OS           string
	Arch         string
	Channel      string
	Experiments  []string
}
