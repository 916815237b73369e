package telemetry

import (
	"google.golang.org/protobuf/encoding/protowire"

	"cobalt/pkg/cobalterr"
)

// MarshalLocalAggregateStore serializes a LocalAggregateStore for the
// write-tmp-then-rename durable store (spec.md §5, §4.6 back_up()).
func MarshalLocalAggregateStore(s *LocalAggregateStore) ([]byte, error) {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(s.Version))
	for key, ra := range s.Entries {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendBytes(entry, []byte(key))
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, marshalReportAggregates(ra))
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}
	return out, nil
}

// UnmarshalLocalAggregateStore reverses MarshalLocalAggregateStore.
func UnmarshalLocalAggregateStore(data []byte) (*LocalAggregateStore, error) {
	s := &LocalAggregateStore{Entries: make(map[string]*ReportAggregates)}
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			s.Version = int(i)
		case 2:
			var key string
			var raBytes []byte
			walkFields(v, func(n protowire.Number, t protowire.Type, ev []byte, ei int64) {
				switch n {
				case 1:
					key = string(ev)
				case 2:
					raBytes = ev
				}
			})
			s.Entries[key] = unmarshalReportAggregates(raBytes)
		}
	})
	if s.Version != currentLocalAggregateStoreVersion && s.Version != 0 {
		return nil, cobalterr.NewInvalidArguments("unknown LocalAggregateStore version")
	}
	return s, nil
}

func marshalReportAggregates(ra *ReportAggregates) []byte {
	var out []byte
	if ra.UniqueActives != nil {
		out = protowire.AppendTag(out, 1, protowire.BytesType)
		out = protowire.AppendBytes(out, marshalUniqueActives(ra.UniqueActives))
	}
	if ra.Numeric != nil {
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, marshalNumeric(ra.Numeric))
	}
	return out
}

func unmarshalReportAggregates(data []byte) *ReportAggregates {
	ra := &ReportAggregates{}
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			ra.UniqueActives = unmarshalUniqueActives(v)
		case 2:
			ra.Numeric = unmarshalNumeric(v)
		}
	})
	return ra
}

func marshalUniqueActives(ua *UniqueActivesAggregates) []byte {
	var out []byte
	for day, codes := range ua.ByDay {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(day))
		for code, active := range codes {
			if !active {
				continue
			}
			entry = protowire.AppendTag(entry, 2, protowire.VarintType)
			entry = protowire.AppendVarint(entry, uint64(code))
		}
		out = protowire.AppendTag(out, 1, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}
	for code, windows := range ua.LastGenerated {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(code))
		for windowDays, lastDay := range windows {
			var we []byte
			we = protowire.AppendTag(we, 1, protowire.VarintType)
			we = protowire.AppendVarint(we, uint64(windowDays))
			we = protowire.AppendTag(we, 2, protowire.VarintType)
			we = protowire.AppendVarint(we, uint64(lastDay))
			entry = protowire.AppendTag(entry, 2, protowire.BytesType)
			entry = protowire.AppendBytes(entry, we)
		}
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}
	return out
}

func unmarshalUniqueActives(data []byte) *UniqueActivesAggregates {
	ua := NewUniqueActivesAggregates()
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			var day uint32
			var codes []uint32
			walkFields(v, func(n protowire.Number, t protowire.Type, ev []byte, ei int64) {
				switch n {
				case 1:
					day = uint32(ei)
				case 2:
					codes = append(codes, uint32(ei))
				}
			})
			if ua.ByDay[day] == nil {
				ua.ByDay[day] = make(map[uint32]bool)
			}
			for _, c := range codes {
				ua.ByDay[day][c] = true
			}
		case 2:
			var code uint32
			windows := make(map[uint32]uint32)
			walkFields(v, func(n protowire.Number, t protowire.Type, ev []byte, ei int64) {
				switch n {
				case 1:
					code = uint32(ei)
				case 2:
					var windowDays, lastDay uint32
					walkFields(ev, func(wn protowire.Number, wt protowire.Type, wv []byte, wi int64) {
						switch wn {
						case 1:
							windowDays = uint32(wi)
						case 2:
							lastDay = uint32(wi)
						}
					})
					windows[windowDays] = lastDay
				}
			})
			ua.LastGenerated[code] = windows
		}
	})
	return ua
}

func marshalNumeric(na *NumericAggregates) []byte {
	var out []byte
	for key, days := range na.ByDay {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendBytes(entry, []byte(key.Component))
		entry = protowire.AppendTag(entry, 2, protowire.VarintType)
		entry = protowire.AppendVarint(entry, key.Codes)
		for day, value := range days {
			var de []byte
			de = protowire.AppendTag(de, 1, protowire.VarintType)
			de = protowire.AppendVarint(de, uint64(day))
			de = protowire.AppendTag(de, 2, protowire.VarintType)
			de = protowire.AppendVarint(de, protowire.EncodeZigZag(value))
			entry = protowire.AppendTag(entry, 3, protowire.BytesType)
			entry = protowire.AppendBytes(entry, de)
		}
		out = protowire.AppendTag(out, 1, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}
	for key, windows := range na.LastGenerated {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendBytes(entry, []byte(key.Component))
		entry = protowire.AppendTag(entry, 2, protowire.VarintType)
		entry = protowire.AppendVarint(entry, key.Codes)
		for windowDays, lastDay := range windows {
			var we []byte
			we = protowire.AppendTag(we, 1, protowire.VarintType)
			we = protowire.AppendVarint(we, uint64(windowDays))
			we = protowire.AppendTag(we, 2, protowire.VarintType)
			we = protowire.AppendVarint(we, uint64(lastDay))
			entry = protowire.AppendTag(entry, 3, protowire.BytesType)
			entry = protowire.AppendBytes(entry, we)
		}
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}
	return out
}

func unmarshalNumeric(data []byte) *NumericAggregates {
	na := NewNumericAggregates()
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			var key NumericKey
			days := make(map[uint32]int64)
			walkFields(v, func(n protowire.Number, t protowire.Type, ev []byte, ei int64) {
				switch n {
				case 1:
					key.Component = string(ev)
				case 2:
					key.Codes = uint64(ei)
				case 3:
					var day uint32
					var value int64
					walkFields(ev, func(dn protowire.Number, dt protowire.Type, dv []byte, di int64) {
						switch dn {
						case 1:
							day = uint32(di)
						case 2:
							value = protowire.DecodeZigZag(uint64(di))
						}
					})
					days[day] = value
				}
			})
			na.ByDay[key] = days
		case 2:
			var key NumericKey
			windows := make(map[uint32]uint32)
			walkFields(v, func(n protowire.Number, t protowire.Type, ev []byte, ei int64) {
				switch n {
				case 1:
					key.Component = string(ev)
				case 2:
					key.Codes = uint64(ei)
				case 3:
					var windowDays, lastDay uint32
					walkFields(ev, func(wn protowire.Number, wt protowire.Type, wv []byte, wi int64) {
						switch wn {
						case 1:
							windowDays = uint32(wi)
						case 2:
							lastDay = uint32(wi)
						}
					})
					windows[windowDays] = lastDay
				}
			})
			na.LastGenerated[key] = windows
		}
	})
	return na
}

// MarshalHistoryStore serializes an AggregatedObservationHistoryStore.
func MarshalHistoryStore(h *AggregatedObservationHistoryStore) ([]byte, error) {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(h.Version))
	for key, day := range h.LastGeneratedDay {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendBytes(entry, []byte(key))
		entry = protowire.AppendTag(entry, 2, protowire.VarintType)
		entry = protowire.AppendVarint(entry, uint64(day))
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}
	return out, nil
}

// UnmarshalHistoryStore reverses MarshalHistoryStore. Per spec.md §9, any
// version other than the current one resets to empty rather than guessing
// at an upgrade path (this store has none).
func UnmarshalHistoryStore(data []byte) (*AggregatedObservationHistoryStore, error) {
	h := NewAggregatedObservationHistoryStore()
	var version int
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			version = int(i)
		case 2:
			var key string
			var day uint32
			walkFields(v, func(n protowire.Number, t protowire.Type, ev []byte, ei int64) {
				switch n {
				case 1:
					key = string(ev)
				case 2:
					day = uint32(ei)
				}
			})
			h.LastGeneratedDay[key] = day
		}
	})
	if version != 0 {
		return NewAggregatedObservationHistoryStore(), nil
	}
	h.Version = version
	return h, nil
}
