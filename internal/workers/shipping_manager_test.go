package workers

import (
	"context"
	"log/slog"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cobalt/internal/core/domain/telemetry"
	"cobalt/internal/core/services/telemetry/envelope"
	"cobalt/pkg/cobalterr"
	"cobalt/pkg/cryptobox"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnvelopeStore(t *testing.T) *envelope.Store {
	t.Helper()
	return envelope.NewStore(envelope.StoreConfig{
		MaxBytesPerObservation: 4096,
		MaxBytesPerEnvelope:    1 << 20,
		MaxBytesTotal:          1 << 20,
	}, nil)
}

func writeOneObservation(t *testing.T, store *envelope.Store) {
	t.Helper()
	writer := envelope.NewWriter(store, cryptobox.SchemeNone, cryptobox.PublicKey{}, nil, nil)
	err := writer.Write(telemetry.IntegerEventObservation{EventCode: 1, Value: 1}, telemetry.ObservationMetadata{MetricID: 1, ReportID: 1})
	require.NoError(t, err)
}

type fakeUploader struct {
	attempts int32
	fn       func(attempt int32) error
}

func (f *fakeUploader) Upload(ctx context.Context, sealedEnvelope []byte) error {
	n := atomic.AddInt32(&f.attempts, 1)
	return f.fn(n)
}

func TestShippingManagerSendsBufferedEnvelope(t *testing.T) {
	store := newTestEnvelopeStore(t)
	writeOneObservation(t, store)

	uploader := &fakeUploader{fn: func(int32) error { return nil }}
	m := NewShippingManager(store, uploader, discardLogger(), ShippingManagerConfig{
		SendInterval: time.Hour,
		MinInterval:  10 * time.Millisecond,
	})
	m.Start()
	defer func() {
		close(m.quit)
		<-m.done
	}()

	m.RequestSendSoon()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&uploader.attempts) == 1
	}, time.Second, 5*time.Millisecond)

	_, ok := store.TakeNextEnvelope()
	require.False(t, ok, "store should be drained after a successful send")
}

func TestShippingManagerRetriesRetryableFailureThenSucceeds(t *testing.T) {
	store := newTestEnvelopeStore(t)
	writeOneObservation(t, store)

	uploader := &fakeUploader{fn: func(attempt int32) error {
		if attempt < 3 {
			return cobalterr.NewWriteFailed("simulated transient failure", nil)
		}
		return nil
	}}
	m := NewShippingManager(store, uploader, discardLogger(), ShippingManagerConfig{
		SendInterval: time.Hour,
		MinInterval:  10 * time.Millisecond,
		BaseBackoff:  time.Millisecond,
		MaxBackoff:   5 * time.Millisecond,
		MaxAttempts:  5,
	})
	m.Start()
	defer func() {
		close(m.quit)
		<-m.done
	}()

	m.RequestSendSoon()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&uploader.attempts) == 3
	}, time.Second, 5*time.Millisecond)

	_, ok := store.TakeNextEnvelope()
	require.False(t, ok, "store should be drained once the retried send succeeds")
}

func TestShippingManagerDropsAfterExhaustingRetries(t *testing.T) {
	store := newTestEnvelopeStore(t)
	writeOneObservation(t, store)

	uploader := &fakeUploader{fn: func(int32) error {
		return cobalterr.NewWriteFailed("simulated persistent failure", nil)
	}}
	m := NewShippingManager(store, uploader, discardLogger(), ShippingManagerConfig{
		SendInterval: time.Hour,
		MinInterval:  10 * time.Millisecond,
		BaseBackoff:  time.Millisecond,
		MaxBackoff:   2 * time.Millisecond,
		MaxAttempts:  3,
	})
	m.Start()
	defer func() {
		close(m.quit)
		<-m.done
	}()

	m.RequestSendSoon()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&uploader.attempts) == 3
	}, time.Second, 5*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	_, ok := store.TakeNextEnvelope()
	require.False(t, ok, "exhausting every retryable attempt drops the envelope with a logged error")
}

func TestShippingManagerFailsFastOnNonRetryable(t *testing.T) {
	store := newTestEnvelopeStore(t)
	writeOneObservation(t, store)

	uploader := &fakeUploader{fn: func(int32) error {
		return cobalterr.NewInvalidArguments("simulated malformed envelope")
	}}
	m := NewShippingManager(store, uploader, discardLogger(), ShippingManagerConfig{
		SendInterval: time.Hour,
		MinInterval:  10 * time.Millisecond,
		BaseBackoff:  time.Millisecond,
		MaxBackoff:   2 * time.Millisecond,
		MaxAttempts:  5,
	})
	m.Start()
	defer func() {
		close(m.quit)
		<-m.done
	}()

	m.RequestSendSoon()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&uploader.attempts) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&uploader.attempts), "non-retryable failures must not be retried")

	_, ok := store.TakeNextEnvelope()
	require.False(t, ok, "non-retryable failures drop the envelope rather than requeuing it")
}

func TestShippingManagerWaitUntilIdle(t *testing.T) {
	store := newTestEnvelopeStore(t)
	uploader := &fakeUploader{fn: func(int32) error { return nil }}
	m := NewShippingManager(store, uploader, discardLogger(), ShippingManagerConfig{
		SendInterval: time.Hour,
		MinInterval:  time.Hour,
	})
	m.Start()
	defer func() {
		close(m.quit)
		<-m.done
	}()

	m.WaitUntilIdle(time.Now().Add(50 * time.Millisecond))
}
