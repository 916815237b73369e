package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cobalt/internal/core/domain/telemetry"
	"cobalt/internal/core/services/telemetry/envelope"
	"cobalt/pkg/cobalterr"
	"cobalt/pkg/cryptobox"
	"cobalt/pkg/logging"
)

// Uploader is the shipping layer's dependency on the shuffler HTTP client,
// narrowed so tests can substitute a fake (spec.md §4.5).
type Uploader interface {
	Upload(ctx context.Context, sealedEnvelope []byte) error
}

// ShippingManagerConfig carries the two independent schedules and the
// backoff shape spec.md §4.5 describes. BaseBackoff, MaxBackoff, and
// MaxAttempts default to the spec's values (10ms, 5s, 11) when left zero;
// tests shrink them to keep retry coverage fast.
type ShippingManagerConfig struct {
	SendInterval time.Duration
	MinInterval  time.Duration

	Scheme      cryptobox.Scheme
	ShufflerKey cryptobox.PublicKey

	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
}

const (
	defaultShippingBaseBackoff = 10 * time.Millisecond
	defaultShippingMaxBackoff  = 5 * time.Second
	defaultShippingMaxAttempts = 11

	// dropLogWindow/dropLogBurst bound how often "dropping envelope" gets
	// logged under sustained upload failure, per spec.md §7's "log first N
	// then suppress" discipline for self-amplifying drop paths.
	dropLogWindow = 10 * time.Second
	dropLogBurst  = 3
)

// ShippingManager owns the ObservationStore's outbound path: a worker that
// periodically takes the oldest envelope, seals it, and uploads it, retrying
// transient failures with exponential backoff (spec.md §4.5).
type ShippingManager struct {
	store      *envelope.Store
	uploader   Uploader
	cfg        ShippingManagerConfig
	logger     *slog.Logger
	dropLogger *logging.RateLimited

	sendSoon chan struct{}
	quit     chan struct{}
	done     chan struct{}

	mu       sync.Mutex
	idleCond *sync.Cond
	busy     bool
}

// NewShippingManager builds a ShippingManager. Call Start to launch its
// worker goroutine.
func NewShippingManager(store *envelope.Store, uploader Uploader, logger *slog.Logger, cfg ShippingManagerConfig) *ShippingManager {
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = defaultShippingBaseBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = defaultShippingMaxBackoff
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultShippingMaxAttempts
	}
	m := &ShippingManager{
		store:      store,
		uploader:   uploader,
		cfg:        cfg,
		logger:     logger,
		dropLogger: logging.NewRateLimited(logger, dropLogWindow, dropLogBurst),
		sendSoon:   make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	m.idleCond = sync.NewCond(&m.mu)
	return m
}

// NotifyObservationsAdded implements envelope.ShippingNotifier, letting the
// ObservationWriter wake this worker as soon as it accepts a write.
func (m *ShippingManager) NotifyObservationsAdded() {
	m.RequestSendSoon()
}

// RequestSendSoon asks the worker to attempt a send within MinInterval,
// without waiting for the next periodic tick (spec.md §4.5).
func (m *ShippingManager) RequestSendSoon() {
	select {
	case m.sendSoon <- struct{}{}:
	default:
	}
}

// Start launches the worker goroutine.
func (m *ShippingManager) Start() {
	m.logger.Info("starting shipping manager",
		"send_interval", m.cfg.SendInterval,
		"min_interval", m.cfg.MinInterval,
	)
	go m.run()
}

func (m *ShippingManager) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.SendInterval)
	defer ticker.Stop()

	var soonTimer *time.Timer
	var soonC <-chan time.Time

	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
			m.drainOne()
		case <-m.sendSoon:
			if soonTimer == nil {
				soonTimer = time.NewTimer(m.cfg.MinInterval)
				soonC = soonTimer.C
			}
		case <-soonC:
			soonTimer = nil
			soonC = nil
			m.drainOne()
		}
	}
}

// drainOne takes and ships every envelope currently buffered, marking the
// worker busy for the duration so WaitUntilIdle can observe progress.
func (m *ShippingManager) drainOne() {
	m.setBusy(true)
	defer m.setBusy(false)

	for {
		env, ok := m.store.TakeNextEnvelope()
		if !ok {
			return
		}
		if err := m.sendWithBackoff(env); err != nil {
			m.dropLogger.Error("envelope send failed after retries, dropping", "envelope_id", env.ID.String(), "error", err)
		}
	}
}

// sendWithBackoff uploads env, retrying retryable failures up to
// cfg.MaxAttempts times with exponential backoff doubling from
// cfg.BaseBackoff and capped at cfg.MaxBackoff. A non-retryable error fails
// fast; exhausting every retryable attempt gives up too — both cases drop
// the envelope and return the failure for the caller to log (spec.md §4.5,
// §7 table: "...then drop with logged error").
func (m *ShippingManager) sendWithBackoff(env telemetry.Envelope) error {
	sealed, err := m.seal(env)
	if err != nil {
		return err
	}

	backoff := m.cfg.BaseBackoff
	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := m.uploader.Upload(ctx, sealed)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if !cobalterr.IsRetryable(err) {
			return err
		}

		if attempt == m.cfg.MaxAttempts-1 {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > m.cfg.MaxBackoff {
			backoff = m.cfg.MaxBackoff
		}
	}

	return lastErr
}

// seal serializes and, if configured, encrypts env to the shuffler public
// key before it leaves the process (spec.md §4.5: "encrypts envelope to
// the shuffler public key").
func (m *ShippingManager) seal(env telemetry.Envelope) ([]byte, error) {
	plaintext, err := telemetry.MarshalEnvelope(env)
	if err != nil {
		return nil, cobalterr.NewOther("failed to serialize envelope", err)
	}
	if m.cfg.Scheme == cryptobox.SchemeNone {
		return plaintext, nil
	}
	sealed, err := cryptobox.Seal(m.cfg.ShufflerKey, plaintext)
	if err != nil {
		return nil, cobalterr.NewOther("failed to seal envelope", err)
	}
	return sealed, nil
}

func (m *ShippingManager) setBusy(busy bool) {
	m.mu.Lock()
	m.busy = busy
	m.mu.Unlock()
	m.idleCond.Broadcast()
}

// WaitUntilIdle blocks until the worker is not mid-send, or deadline
// elapses, whichever comes first (spec.md §4.5).
func (m *ShippingManager) WaitUntilIdle(deadline time.Time) {
	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		for m.busy {
			m.idleCond.Wait()
		}
		m.mu.Unlock()
		close(done)
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		m.idleCond.Broadcast()
	}
}

// Shutdown signals the worker, joins it, and flushes the ObservationStore
// to disk before returning (spec.md §4.5, §4.10 cancellation model).
func (m *ShippingManager) Shutdown(deadline time.Time) error {
	m.logger.Info("stopping shipping manager")
	m.WaitUntilIdle(deadline)
	close(m.quit)
	<-m.done
	return m.store.FlushToDisk()
}
