package telemetry

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"cobalt/pkg/cobalterr"
)

// Observation variants are serialized by hand against protowire directly
// rather than through protoc-generated message types: the wire schema is
// small, fixed, and internal-only (it never crosses a service boundary
// that would need .proto-defined compatibility), so a thin field-by-field
// encoding keeps the dependency on google.golang.org/protobuf without the
// code-generation step.
const (
	kindForculus             = 1
	kindRappor               = 2
	kindBasicRappor          = 3
	kindIntegerEvent         = 4
	kindHistogram            = 5
	kindCustom               = 6
	kindUniqueActives        = 7
	kindPerDeviceNumeric     = 8
	kindReportParticipation  = 9
)

// MarshalObservation serializes any Observation variant to bytes.
func MarshalObservation(obs Observation) ([]byte, error) {
	var kind uint64
	var payload []byte

	switch o := obs.(type) {
	case ForculusObservation:
		kind = kindForculus
		payload = protowire.AppendTag(payload, 1, protowire.BytesType)
		payload = protowire.AppendBytes(payload, o.Ciphertext)
		payload = protowire.AppendTag(payload, 2, protowire.BytesType)
		payload = protowire.AppendBytes(payload, o.PointX)
	case RapporObservation:
		kind = kindRappor
		payload = protowire.AppendTag(payload, 1, protowire.BytesType)
		payload = protowire.AppendBytes(payload, o.Bits)
		payload = protowire.AppendTag(payload, 2, protowire.VarintType)
		payload = protowire.AppendVarint(payload, uint64(o.Cohort))
	case BasicRapporObservation:
		kind = kindBasicRappor
		payload = protowire.AppendTag(payload, 1, protowire.BytesType)
		payload = protowire.AppendBytes(payload, o.Bits)
	case IntegerEventObservation:
		kind = kindIntegerEvent
		payload = protowire.AppendTag(payload, 1, protowire.BytesType)
		payload = protowire.AppendBytes(payload, o.ComponentNameHash)
		payload = protowire.AppendTag(payload, 2, protowire.VarintType)
		payload = protowire.AppendVarint(payload, o.EventCode)
		payload = protowire.AppendTag(payload, 3, protowire.VarintType)
		payload = protowire.AppendVarint(payload, protowire.EncodeZigZag(o.Value))
	case HistogramObservation:
		kind = kindHistogram
		payload = protowire.AppendTag(payload, 1, protowire.BytesType)
		payload = protowire.AppendBytes(payload, o.ComponentNameHash)
		payload = protowire.AppendTag(payload, 2, protowire.VarintType)
		payload = protowire.AppendVarint(payload, o.EventCode)
		for _, bucket := range o.Buckets {
			var bb []byte
			bb = protowire.AppendTag(bb, 1, protowire.VarintType)
			bb = protowire.AppendVarint(bb, uint64(bucket.Index))
			bb = protowire.AppendTag(bb, 2, protowire.VarintType)
			bb = protowire.AppendVarint(bb, bucket.Count)
			payload = protowire.AppendTag(payload, 3, protowire.BytesType)
			payload = protowire.AppendBytes(payload, bb)
		}
	case CustomObservation:
		kind = kindCustom
		for name, v := range o.Values {
			var entry []byte
			entry = protowire.AppendTag(entry, 1, protowire.BytesType)
			entry = protowire.AppendBytes(entry, []byte(name))
			entry = appendCustomValue(entry, 2, v)
			payload = protowire.AppendTag(payload, 1, protowire.BytesType)
			payload = protowire.AppendBytes(payload, entry)
		}
	case UniqueActivesObservation:
		kind = kindUniqueActives
		payload = protowire.AppendTag(payload, 1, protowire.VarintType)
		payload = protowire.AppendVarint(payload, uint64(o.Window.Days))
		payload = protowire.AppendTag(payload, 2, protowire.VarintType)
		payload = protowire.AppendVarint(payload, uint64(o.Window.Hours))
		payload = protowire.AppendTag(payload, 3, protowire.VarintType)
		payload = protowire.AppendVarint(payload, uint64(o.EventCode))
		active := uint64(0)
		if o.Active {
			active = 1
		}
		payload = protowire.AppendTag(payload, 4, protowire.VarintType)
		payload = protowire.AppendVarint(payload, active)
	case PerDeviceNumericObservation:
		kind = kindPerDeviceNumeric
		payload = protowire.AppendTag(payload, 1, protowire.VarintType)
		payload = protowire.AppendVarint(payload, uint64(o.Window.Days))
		payload = protowire.AppendTag(payload, 2, protowire.VarintType)
		payload = protowire.AppendVarint(payload, uint64(o.Window.Hours))
		payload = protowire.AppendTag(payload, 3, protowire.BytesType)
		payload = protowire.AppendBytes(payload, []byte(o.Component))
		for _, c := range o.EventCodes {
			payload = protowire.AppendTag(payload, 4, protowire.VarintType)
			payload = protowire.AppendVarint(payload, uint64(c))
		}
		payload = protowire.AppendTag(payload, 5, protowire.VarintType)
		payload = protowire.AppendVarint(payload, protowire.EncodeZigZag(o.Value))
	case ReportParticipationObservation:
		kind = kindReportParticipation
	default:
		return nil, cobalterr.NewOther(fmt.Sprintf("unknown observation variant %T", obs), nil)
	}

	var out []byte
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, kind)
	if len(payload) > 0 {
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, payload)
	}
	return out, nil
}

func appendCustomValue(b []byte, num protowire.Number, v CustomValue) []byte {
	var inner []byte
	switch {
	case v.StringValue != nil:
		inner = protowire.AppendTag(inner, 1, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte(*v.StringValue))
	case v.IntValue != nil:
		inner = protowire.AppendTag(inner, 2, protowire.VarintType)
		inner = protowire.AppendVarint(inner, protowire.EncodeZigZag(*v.IntValue))
	case v.DoubleValue != nil:
		inner = protowire.AppendTag(inner, 3, protowire.Fixed64Type)
		inner = protowire.AppendFixed64(inner, math.Float64bits(*v.DoubleValue))
	case v.IndexValue != nil:
		inner = protowire.AppendTag(inner, 4, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(*v.IndexValue))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b
}

// UnmarshalObservation reverses MarshalObservation.
func UnmarshalObservation(data []byte) (Observation, error) {
	var kind uint64
	var payload []byte

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, cobalterr.NewOther("malformed observation wire data", nil)
		}
		data = data[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, cobalterr.NewOther("malformed observation kind field", nil)
			}
			kind = v
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, cobalterr.NewOther("malformed observation payload field", nil)
			}
			payload = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, cobalterr.NewOther("malformed observation field", nil)
			}
			data = data[n:]
		}
	}

	switch kind {
	case kindForculus:
		return decodeForculus(payload)
	case kindRappor:
		return decodeRappor(payload)
	case kindBasicRappor:
		return decodeBasicRappor(payload)
	case kindIntegerEvent:
		return decodeIntegerEvent(payload)
	case kindHistogram:
		return decodeHistogram(payload)
	case kindCustom:
		return decodeCustom(payload)
	case kindUniqueActives:
		return decodeUniqueActives(payload)
	case kindPerDeviceNumeric:
		return decodePerDeviceNumeric(payload)
	case kindReportParticipation:
		return ReportParticipationObservation{}, nil
	default:
		return nil, cobalterr.NewOther(fmt.Sprintf("unknown observation kind %d", kind), nil)
	}
}

func decodeForculus(data []byte) (Observation, error) {
	var obs ForculusObservation
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			obs.Ciphertext = v
		case 2:
			obs.PointX = v
		}
	})
	return obs, nil
}

func decodeRappor(data []byte) (Observation, error) {
	var obs RapporObservation
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			obs.Bits = v
		case 2:
			obs.Cohort = uint32(i)
		}
	})
	return obs, nil
}

func decodeBasicRappor(data []byte) (Observation, error) {
	var obs BasicRapporObservation
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		if num == 1 {
			obs.Bits = v
		}
	})
	return obs, nil
}

func decodeIntegerEvent(data []byte) (Observation, error) {
	var obs IntegerEventObservation
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			obs.ComponentNameHash = v
		case 2:
			obs.EventCode = uint64(i)
		case 3:
			obs.Value = protowire.DecodeZigZag(uint64(i))
		}
	})
	return obs, nil
}

func decodeHistogram(data []byte) (Observation, error) {
	var obs HistogramObservation
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			obs.ComponentNameHash = v
		case 2:
			obs.EventCode = uint64(i)
		case 3:
			var bucket HistogramBucket
			walkFields(v, func(n protowire.Number, t protowire.Type, bv []byte, bi int64) {
				switch n {
				case 1:
					bucket.Index = uint32(bi)
				case 2:
					bucket.Count = uint64(bi)
				}
			})
			obs.Buckets = append(obs.Buckets, bucket)
		}
	})
	return obs, nil
}

func decodeCustom(data []byte) (Observation, error) {
	obs := CustomObservation{Values: make(map[string]CustomValue)}
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		if num != 1 {
			return
		}
		var name string
		var value CustomValue
		walkFields(v, func(n protowire.Number, t protowire.Type, ev []byte, ei int64) {
			switch n {
			case 1:
				name = string(ev)
			case 2:
				walkFields(ev, func(vn protowire.Number, vt protowire.Type, vv []byte, vi int64) {
					switch vn {
					case 1:
						s := string(vv)
						value.StringValue = &s
					case 2:
						iv := protowire.DecodeZigZag(uint64(vi))
						value.IntValue = &iv
					case 3:
						d := math.Float64frombits(uint64(vi))
						value.DoubleValue = &d
					case 4:
						idx := uint32(vi)
						value.IndexValue = &idx
					}
				})
			}
		})
		obs.Values[name] = value
	})
	return obs, nil
}

func decodeUniqueActives(data []byte) (Observation, error) {
	var obs UniqueActivesObservation
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			obs.Window.Days = uint32(i)
		case 2:
			obs.Window.Hours = uint32(i)
		case 3:
			obs.EventCode = uint32(i)
		case 4:
			obs.Active = i != 0
		}
	})
	return obs, nil
}

func decodePerDeviceNumeric(data []byte) (Observation, error) {
	var obs PerDeviceNumericObservation
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			obs.Window.Days = uint32(i)
		case 2:
			obs.Window.Hours = uint32(i)
		case 3:
			obs.Component = string(v)
		case 4:
			obs.EventCodes = append(obs.EventCodes, uint32(i))
		case 5:
			obs.Value = protowire.DecodeZigZag(uint64(i))
		}
	})
	return obs, nil
}

// walkFields iterates every top-level field of a protowire-encoded
// message, invoking fn with the raw bytes (for BytesType fields) and the
// decoded integer value (for VarintType/Fixed64Type fields, reinterpreted
// by the caller as needed).
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, i int64)) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return
			}
			fn(num, typ, nil, int64(v))
			data = data[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return
			}
			fn(num, typ, nil, int64(v))
			data = data[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return
			}
			fn(num, typ, v, 0)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return
			}
			data = data[n:]
		}
	}
}
