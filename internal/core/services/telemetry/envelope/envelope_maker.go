// Package envelope implements the ObservationWriter/ObservationStore/
// EnvelopeMaker pipeline spec.md §4.3/§4.4 describes: a size-budgeted,
// append-mostly buffer that groups encrypted observations into batches by
// ObservationMetadata and hands completed Envelopes to the shipping layer.
package envelope

import (
	"cobalt/internal/core/domain/telemetry"
	"cobalt/pkg/cobalterr"
	"cobalt/pkg/ulid"
)

func metadataKey(meta telemetry.ObservationMetadata) string {
	var buf [20]byte
	putUint32(buf[0:4], meta.CustomerID)
	putUint32(buf[4:8], meta.ProjectID)
	putUint32(buf[8:12], meta.MetricID)
	putUint32(buf[12:16], meta.ReportID)
	putUint32(buf[16:20], meta.DayIndex)
	return string(buf[:])
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// EnvelopeMaker accumulates EncryptedMessages into Batches keyed by
// ObservationMetadata, enforcing per-observation and per-maker byte budgets
// (spec.md §4.4). It is not safe for concurrent use by itself; callers
// (ObservationStore) supply their own locking.
type EnvelopeMaker struct {
	maxPerObs int
	maxTotal  int
	total     int
	order     []string
	batches   map[string]*telemetry.Batch
}

// NewEnvelopeMaker returns an empty maker bounded by maxPerObs (rejects any
// single observation larger than this) and maxTotal (the maker's own
// capacity; exceeding it returns StoreFull so the caller can close this
// maker and open a new one).
func NewEnvelopeMaker(maxPerObs, maxTotal int) *EnvelopeMaker {
	return &EnvelopeMaker{
		maxPerObs: maxPerObs,
		maxTotal:  maxTotal,
		batches:   make(map[string]*telemetry.Batch),
	}
}

// Accept implements spec.md §4.4's accept() pseudocode.
func (m *EnvelopeMaker) Accept(meta telemetry.ObservationMetadata, encObs telemetry.EncryptedMessage) error {
	size := len(encObs.Ciphertext)
	if size > m.maxPerObs {
		return cobalterr.NewObservationTooBig("observation exceeds max_bytes_per_observation")
	}
	if m.total+size > m.maxTotal {
		return cobalterr.NewStoreFull("envelope maker exceeds its byte budget")
	}

	key := metadataKey(meta)
	batch, ok := m.batches[key]
	if !ok {
		batch = &telemetry.Batch{Metadata: meta}
		m.batches[key] = batch
		m.order = append(m.order, key)
	}
	batch.EncryptedObservations = append(batch.EncryptedObservations, encObs)
	m.total += size
	return nil
}

// MergeWith moves every batch of other into m, appending to a matching
// batch when one already exists. Unlike the source implementation this
// preserves the order of other's observations exactly (spec.md §9: the
// reversal in the original is treated as an implementation artifact, not a
// requirement).
func (m *EnvelopeMaker) MergeWith(other *EnvelopeMaker) {
	for _, key := range other.order {
		otherBatch := other.batches[key]
		batch, ok := m.batches[key]
		if !ok {
			copied := *otherBatch
			copied.EncryptedObservations = append([]telemetry.EncryptedMessage(nil), otherBatch.EncryptedObservations...)
			m.batches[key] = &copied
			m.order = append(m.order, key)
		} else {
			batch.EncryptedObservations = append(batch.EncryptedObservations, otherBatch.EncryptedObservations...)
		}
	}
	m.total += other.total
}

// Clear resets the maker to empty.
func (m *EnvelopeMaker) Clear() {
	m.total = 0
	m.order = nil
	m.batches = make(map[string]*telemetry.Batch)
}

// Take returns the current Envelope and clears the maker.
func (m *EnvelopeMaker) Take() telemetry.Envelope {
	env := telemetry.Envelope{
		ID:      ulid.New(),
		Batches: make([]telemetry.Batch, 0, len(m.order)),
	}
	for _, key := range m.order {
		env.Batches = append(env.Batches, *m.batches[key])
	}
	m.Clear()
	return env
}

// Size returns the maker's current total observation payload size.
func (m *EnvelopeMaker) Size() int {
	return m.total
}

// IsEmpty reports whether the maker holds no observations.
func (m *EnvelopeMaker) IsEmpty() bool {
	return len(m.order) == 0
}
