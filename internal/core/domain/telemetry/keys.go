package telemetry

import (
	"encoding/base64"
	"encoding/binary"
)

// MetricReportId is globally unique within a project (spec.md §3).
type MetricReportId struct {
	MetricID uint32
	ReportID uint32
}

// ProjectKey identifies a project within the registry.
type ProjectKey struct {
	CustomerID uint32
	ProjectID  uint32
}

// ReportAggregationKey is the primary key into the AggregateStore
// (spec.md §3). It extends ProjectKey with the MetricReportId.
type ReportAggregationKey struct {
	ProjectKey
	MetricReportId
}

// Encode serializes the key deterministically and base64-encodes it, so it
// can be used as a map key when the on-disk/in-memory representation needs
// a string (LocalAggregateStore's map<string, ReportAggregates>).
func (k ReportAggregationKey) Encode() string {
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], k.CustomerID)
	binary.BigEndian.PutUint32(buf[4:8], k.ProjectID)
	binary.BigEndian.PutUint32(buf[8:12], k.MetricID)
	binary.BigEndian.PutUint32(buf[12:16], k.ReportID)
	return base64.StdEncoding.EncodeToString(buf[:])
}

// DecodeReportAggregationKey reverses Encode.
func DecodeReportAggregationKey(s string) (ReportAggregationKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) != 16 {
		return ReportAggregationKey{}, errInvalidKeyEncoding
	}
	return ReportAggregationKey{
		ProjectKey: ProjectKey{
			CustomerID: binary.BigEndian.Uint32(raw[0:4]),
			ProjectID:  binary.BigEndian.Uint32(raw[4:8]),
		},
		MetricReportId: MetricReportId{
			MetricID: binary.BigEndian.Uint32(raw[8:12]),
			ReportID: binary.BigEndian.Uint32(raw[12:16]),
		},
	}, nil
}

// PackEventCodes combines up to six dimension event codes into a single
// uint64: dimension i occupies a 10-bit field starting at bit 10*i
// (spec.md §4.2, §6). Codes ≥1024 are truncated to their low 10 bits by
// the caller's responsibility — PackEventCodes itself masks defensively.
func PackEventCodes(codes []uint32) uint64 {
	var packed uint64
	for i, c := range codes {
		if i >= 6 {
			break
		}
		packed |= (uint64(c) & 0x3FF) << uint(10*i)
	}
	return packed
}

// UnpackEventCodes reverses PackEventCodes for n dimensions.
func UnpackEventCodes(packed uint64, n int) []uint32 {
	codes := make([]uint32, n)
	for i := 0; i < n && i < 6; i++ {
		codes[i] = uint32((packed >> uint(10*i)) & 0x3FF)
	}
	return codes
}
