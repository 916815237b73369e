package encoder

import (
	"crypto/sha256"

	"cobalt/internal/core/domain/telemetry"
)

// hashComponent returns the 32-byte SHA-256 hash of a component string,
// replacing the cleartext component name before it leaves the device
// (spec.md §4.2: "IntegerEvent / Histogram / Custom: passthrough with a
// 32-byte hash of the component string replacing the cleartext component").
func hashComponent(component string) []byte {
	sum := sha256.Sum256([]byte(component))
	return sum[:]
}

// EncodeIntegerEvent passes a numeric event through unencoded, hashing its
// component name.
func EncodeIntegerEvent(component string, eventCode uint64, value int64) telemetry.IntegerEventObservation {
	return telemetry.IntegerEventObservation{
		ComponentNameHash: hashComponent(component),
		EventCode:         eventCode,
		Value:             value,
	}
}

// EncodeHistogram passes a histogram event through unencoded, hashing its
// component name.
func EncodeHistogram(component string, eventCode uint64, buckets []telemetry.HistogramBucket) telemetry.HistogramObservation {
	return telemetry.HistogramObservation{
		ComponentNameHash: hashComponent(component),
		EventCode:         eventCode,
		Buckets:           buckets,
	}
}

// EncodeCustom passes a CustomEvent through unencoded.
func EncodeCustom(values map[string]telemetry.CustomValue) telemetry.CustomObservation {
	return telemetry.CustomObservation{Values: values}
}
