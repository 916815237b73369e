package telemetry

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"cobalt/pkg/cobalterr"
	"cobalt/pkg/ulid"
)

// MarshalEnvelope serializes an Envelope to the bytes ShippingManager hands
// the shuffler client (spec.md §4.5). Batches carry already-encrypted
// observations, so this only needs to frame metadata and ciphertexts, not
// re-encode their contents.
func MarshalEnvelope(env Envelope) ([]byte, error) {
	var out []byte

	id := env.ID.String()
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, []byte(id))

	for _, b := range env.Batches {
		batchBytes, err := marshalBatch(b)
		if err != nil {
			return nil, err
		}
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, batchBytes)
	}
	return out, nil
}

func marshalBatch(b Batch) ([]byte, error) {
	var out []byte

	meta := marshalMetadata(b.Metadata)
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, meta)

	for _, m := range b.EncryptedObservations {
		msgBytes := marshalEncryptedMessage(m)
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, msgBytes)
	}
	return out, nil
}

func marshalMetadata(meta ObservationMetadata) []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(meta.CustomerID))
	out = protowire.AppendTag(out, 2, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(meta.ProjectID))
	out = protowire.AppendTag(out, 3, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(meta.MetricID))
	out = protowire.AppendTag(out, 4, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(meta.ReportID))
	out = protowire.AppendTag(out, 5, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(meta.DayIndex))
	return out
}

func marshalEncryptedMessage(m EncryptedMessage) []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(m.Scheme))
	if m.PublicKeyFingerprint != nil {
		out = protowire.AppendTag(out, 2, protowire.VarintType)
		out = protowire.AppendVarint(out, *m.PublicKeyFingerprint)
	}
	out = protowire.AppendTag(out, 3, protowire.BytesType)
	out = protowire.AppendBytes(out, m.Ciphertext)
	return out
}

// MarshalEnvelopeList serializes a slice of Envelopes, used to flush the
// ObservationStore's pending envelopes to disk on shutdown (spec.md §4.5).
func MarshalEnvelopeList(envs []Envelope) ([]byte, error) {
	var out []byte
	for _, env := range envs {
		b, err := MarshalEnvelope(env)
		if err != nil {
			return nil, err
		}
		out = protowire.AppendTag(out, 1, protowire.BytesType)
		out = protowire.AppendBytes(out, b)
	}
	return out, nil
}

// UnmarshalEnvelopeList reverses MarshalEnvelopeList.
func UnmarshalEnvelopeList(data []byte) ([]Envelope, error) {
	var envs []Envelope
	err := walkTopLevel(data, func(num protowire.Number, v []byte) error {
		if num != 1 {
			return nil
		}
		env, err := UnmarshalEnvelope(v)
		if err != nil {
			return err
		}
		envs = append(envs, env)
		return nil
	})
	return envs, err
}

// UnmarshalEnvelope reverses MarshalEnvelope. Used by tests and by any
// future local replay tooling; the shuffler itself only ever consumes the
// bytes.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	var idStr string

	err := walkTopLevel(data, func(num protowire.Number, v []byte) error {
		switch num {
		case 1:
			idStr = string(v)
		case 2:
			b, err := unmarshalBatch(v)
			if err != nil {
				return err
			}
			env.Batches = append(env.Batches, b)
		}
		return nil
	})
	if err != nil {
		return Envelope{}, err
	}
	if idStr != "" {
		id, err := ulid.Parse(idStr)
		if err != nil {
			return Envelope{}, cobalterr.NewOther("malformed envelope id", err)
		}
		env.ID = id
	}
	return env, nil
}

func unmarshalBatch(data []byte) (Batch, error) {
	var b Batch
	err := walkTopLevel(data, func(num protowire.Number, v []byte) error {
		switch num {
		case 1:
			b.Metadata = unmarshalMetadata(v)
		case 2:
			b.EncryptedObservations = append(b.EncryptedObservations, unmarshalEncryptedMessage(v))
		}
		return nil
	})
	return b, err
}

func unmarshalMetadata(data []byte) ObservationMetadata {
	var meta ObservationMetadata
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			meta.CustomerID = uint32(i)
		case 2:
			meta.ProjectID = uint32(i)
		case 3:
			meta.MetricID = uint32(i)
		case 4:
			meta.ReportID = uint32(i)
		case 5:
			meta.DayIndex = uint32(i)
		}
	})
	return meta
}

func unmarshalEncryptedMessage(data []byte) EncryptedMessage {
	var m EncryptedMessage
	walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte, i int64) {
		switch num {
		case 1:
			m.Scheme = EncryptionScheme(i)
		case 2:
			fp := uint64(i)
			m.PublicKeyFingerprint = &fp
		case 3:
			m.Ciphertext = v
		}
	})
	return m
}

// walkTopLevel iterates bytes-typed top-level fields only, the shape every
// message in this file uses; err is returned from fn to abort the walk.
func walkTopLevel(data []byte, fn func(num protowire.Number, v []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return cobalterr.NewOther("malformed envelope wire data", nil)
		}
		data = data[n:]
		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return cobalterr.NewOther("malformed envelope field", nil)
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return cobalterr.NewOther(fmt.Sprintf("malformed envelope field %d", num), nil)
		}
		if err := fn(num, v); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
