package envelope

import (
	"log/slog"

	"cobalt/internal/core/domain/telemetry"
	"cobalt/pkg/cobalterr"
	"cobalt/pkg/cryptobox"
	"cobalt/pkg/logging"
)

// ShippingNotifier is the subset of ShippingManager the writer depends on
// (spec.md §4.3: "calls NotifyObservationsAdded on a registered
// recipient"). Kept as a narrow interface so envelope tests don't need a
// real worker.
type ShippingNotifier interface {
	NotifyObservationsAdded()
}

// Writer is the only path to persist an Observation (spec.md §4.3). It
// optionally seals the serialized observation in a HYBRID_ECDH_V1 envelope
// to the analyzer's public key before handing it to the Store.
type Writer struct {
	store      *Store
	scheme     cryptobox.Scheme
	analyzer   cryptobox.PublicKey
	notifier   ShippingNotifier
	logger     *slog.Logger
	dropLogger *logging.RateLimited
}

// NewWriter builds a Writer. scheme SchemeNone disables encryption; the
// serialized observation is stored verbatim (used in tests and for
// deployments that encrypt at a lower layer). logger may be nil, in which
// case write failures go unlogged (used by tests that don't care).
func NewWriter(store *Store, scheme cryptobox.Scheme, analyzerKey cryptobox.PublicKey, notifier ShippingNotifier, logger *slog.Logger) *Writer {
	w := &Writer{
		store:    store,
		scheme:   scheme,
		analyzer: analyzerKey,
		notifier: notifier,
		logger:   logger,
	}
	if logger != nil {
		w.dropLogger = logging.NewRateLimited(logger, dropLogWindow, dropLogBurst)
	}
	return w
}

// Write serializes obs, optionally seals it, and hands it to the Store.
// After a successful store it notifies the registered ShippingManager.
func (w *Writer) Write(obs telemetry.Observation, meta telemetry.ObservationMetadata) error {
	plaintext, err := telemetry.MarshalObservation(obs)
	if err != nil {
		return cobalterr.NewOther("failed to serialize observation", err)
	}

	msg := telemetry.EncryptedMessage{Scheme: telemetry.SchemeNone}
	switch w.scheme {
	case cryptobox.SchemeNone:
		msg.Ciphertext = plaintext
	case cryptobox.SchemeHybridECDHV1:
		sealed, err := cryptobox.Seal(w.analyzer, plaintext)
		if err != nil {
			return cobalterr.NewOther("failed to seal observation", err)
		}
		fp := cryptobox.Fingerprint(w.analyzer)
		msg.Ciphertext = sealed
		msg.Scheme = telemetry.SchemeHybridECDHV1
		msg.PublicKeyFingerprint = &fp
	}

	if err := w.store.Write(meta, msg); err != nil {
		if w.dropLogger != nil {
			w.dropLogger.Warn("observation write failed",
				"status", cobalterr.StatusOf(err),
				"metric_id", meta.MetricID,
				"report_id", meta.ReportID,
			)
		}
		return err
	}

	if w.notifier != nil {
		w.notifier.NotifyObservationsAdded()
	}
	return nil
}
