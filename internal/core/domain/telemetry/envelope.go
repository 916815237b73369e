package telemetry

import "cobalt/pkg/ulid"

// EncryptedMessage is the on-wire encrypted form of a serialized
// Observation or Envelope (spec.md §6).
type EncryptedMessage struct {
	PublicKeyFingerprint *uint64
	Ciphertext           []byte
	Scheme               EncryptionScheme
}

// EncryptionScheme enumerates the wire encryption schemes spec.md §6 names.
type EncryptionScheme int

const (
	SchemeNone EncryptionScheme = iota
	SchemeHybridECDHV1
)

// Batch groups EncryptedMessages that share one ObservationMetadata
// (spec.md §3).
type Batch struct {
	Metadata             ObservationMetadata
	EncryptedObservations []EncryptedMessage
}

// Size returns the batch's contribution to an envelope's byte budget: the
// sum of its encrypted observation sizes. Metadata overhead is not counted
// against the per-observation/per-envelope caps, which bound payload size.
func (b Batch) Size() int {
	total := 0
	for _, m := range b.EncryptedObservations {
		total += len(m.Ciphertext)
	}
	return total
}

// Envelope is an ordered list of Batches, shipped upstream as a unit
// (spec.md §3). ID is a sortable identifier stamped when the envelope is
// taken from its EnvelopeMaker, used by the shipping layer for logging and
// retry bookkeeping — it carries no on-wire meaning to the shuffler.
type Envelope struct {
	ID      ulid.ULID
	Batches []Batch
}

// Size returns the envelope's total observation payload size in bytes.
func (e Envelope) Size() int {
	total := 0
	for _, b := range e.Batches {
		total += b.Size()
	}
	return total
}

// NumObservations returns the total count of encrypted observations across
// all batches.
func (e Envelope) NumObservations() int {
	n := 0
	for _, b := range e.Batches {
		n += len(b.EncryptedObservations)
	}
	return n
}
