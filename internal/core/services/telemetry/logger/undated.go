package logger

import (
	"sync"
	"time"

	"cobalt/internal/core/domain/registry"
	"cobalt/internal/core/domain/telemetry"
	"cobalt/pkg/clock"
	"cobalt/pkg/cobalterr"
)

// undatedEntry pairs a saved event with its metric and the real wall-clock
// instant it was saved at, used only to measure elapsed time at flush — not
// to compute the day index directly, since the system clock may have been
// inaccurate at save time (spec.md §4.9).
type undatedEntry struct {
	event    telemetry.Event
	metric   registry.Metric
	savedAt  time.Time
}

// UndatedEventManager holds events logged while the clock validator reports
// the system clock as inaccurate (spec.md §4.9). It is a finite bounded
// queue that flushes exactly once.
type UndatedEventManager struct {
	mu       sync.Mutex
	capacity int
	queue    []undatedEntry
	flushed  bool
	clk      clock.Clock
}

// NewUndatedEventManager builds a manager bounded at capacity entries,
// using clk to compute corrected day indices at flush time.
func NewUndatedEventManager(capacity int, clk clock.Clock) *UndatedEventManager {
	return &UndatedEventManager{capacity: capacity, clk: clk}
}

// Save stores (event, wall_time_at_log, metric) for later replay. Returns
// StoreFull if the queue is at capacity, or AlreadyFlushed if Flush has
// already run.
func (m *UndatedEventManager) Save(event telemetry.Event, metric registry.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.flushed {
		return cobalterr.NewAlreadyFlushed("undated event manager already flushed")
	}
	if len(m.queue) >= m.capacity {
		return cobalterr.NewStoreFull("undated event queue is full")
	}
	m.queue = append(m.queue, undatedEntry{event: event, metric: metric, savedAt: time.Now()})
	return nil
}

// Len reports how many events are currently queued.
func (m *UndatedEventManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Flush replays every saved event through replay in insertion order,
// computing each one's day index from now_clock minus the real elapsed
// time since it was saved, and marks the manager as flushed so further
// Save calls fail with AlreadyFlushed (spec.md §4.9). Calling Flush more
// than once is a no-op returning AlreadyFlushed; the Logger's LogEvent path
// handles the race where the clock flips to accurate between a caller's
// inaccurate-path decision and the actual Save by simply retrying the log
// once the corresponding Save call itself observes AlreadyFlushed.
func (m *UndatedEventManager) Flush(replay func(metric registry.Metric, event telemetry.Event, dayIndex uint32) error) error {
	m.mu.Lock()
	if m.flushed {
		m.mu.Unlock()
		return cobalterr.NewAlreadyFlushed("undated event manager already flushed")
	}
	entries := m.queue
	m.queue = nil
	m.flushed = true
	now := m.clk.Now()
	realNow := time.Now()
	m.mu.Unlock()

	var worst error
	for _, e := range entries {
		elapsed := realNow.Sub(e.savedAt)
		corrected := now.Add(-elapsed)

		tz := clock.UTC
		if e.metric.TimeZonePolicy == registry.Local {
			tz = clock.Local
		}
		dayIndex := m.clk.DayIndex(corrected, tz)

		if err := replay(e.metric, e.event, dayIndex); err != nil && worst == nil {
			worst = err
		}
	}
	return worst
}
