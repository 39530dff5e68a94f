// Package monitor tracks whether the backing store is reachable.
//
// The monitor is a two-state circuit breaker. It starts available and is
// tripped externally by MarkUnavailable whenever a connection-class failure
// is observed. While tripped, a probe task pings the store on a fixed
// period; the first successful ping closes the breaker and stops probing.
// No probing happens while the store is believed healthy.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/SebastienMelki/timebuffer/internal/observability"
)

// State is the store availability state.
type State int

const (
	StateAvailable State = iota
	StateUnavailable
)

func (s State) String() string {
	if s == StateUnavailable {
		return "unavailable"
	}
	return "available"
}

// Config holds monitor configuration.
type Config struct {
	// ProbeInterval is the period between liveness probes while unavailable
	ProbeInterval time.Duration `env:"PROBE_INTERVAL" envDefault:"5s"`

	// ProbeTimeout bounds a single liveness probe
	ProbeTimeout time.Duration `env:"PROBE_TIMEOUT" envDefault:"3s"`
}

// Pinger issues a trivial liveness query against the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// probeTask is one run of the recurring probe.
type probeTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Monitor owns the availability flag and the probe task lifecycle.
type Monitor struct {
	pinger  Pinger
	config  Config
	metrics *observability.Metrics
	logger  *slog.Logger

	unavailable atomic.Bool

	// mu guards the probe task handle only; the flag is read lock-free.
	mu     sync.Mutex
	task   *probeTask
	closed bool
}

// New creates a monitor in the available state.
func New(pinger Pinger, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 5 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = cfg.ProbeInterval
	}

	return &Monitor{
		pinger:  pinger,
		config:  cfg,
		metrics: metrics,
		logger:  logger.With("component", "availability-monitor"),
	}
}

// IsAvailable reports whether the store is believed reachable.
func (m *Monitor) IsAvailable() bool {
	return !m.unavailable.Load()
}

// State returns the current availability state.
func (m *Monitor) State() State {
	if m.unavailable.Load() {
		return StateUnavailable
	}
	return StateAvailable
}

// MarkUnavailable trips the breaker. Redundant calls are no-ops. On an
// actual transition the probe task is started in the background; the
// caller never waits for a probe.
func (m *Monitor) MarkUnavailable() {
	if !m.unavailable.CompareAndSwap(false, true) {
		return
	}

	m.logger.Warn("marking store as unavailable, starting health probe",
		"probe_interval", m.config.ProbeInterval,
	)
	m.recordTransition(StateUnavailable)
	m.startProbe()
}

// markAvailable closes the breaker after a successful probe by t. The flag
// flip and the task release happen under the same lock so a concurrent
// MarkUnavailable always finds the slot free and starts a fresh probe.
func (m *Monitor) markAvailable(t *probeTask) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.unavailable.CompareAndSwap(true, false) {
		return false
	}
	if m.task == t {
		m.task = nil
	}
	return true
}

func (m *Monitor) startProbe() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.task != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &probeTask{cancel: cancel, done: make(chan struct{})}
	m.task = t

	go m.probeLoop(ctx, t)
}

// probeLoop probes immediately and then every ProbeInterval until a probe
// succeeds or the task is cancelled.
func (m *Monitor) probeLoop(ctx context.Context, t *probeTask) {
	defer close(t.done)

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		if m.probe(ctx) {
			if m.markAvailable(t) {
				m.logger.Info("store is available again, stopping health probe")
				m.recordTransition(StateAvailable)
			}
			t.cancel()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// probe runs one liveness check and reports success.
func (m *Monitor) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	if m.metrics != nil {
		m.metrics.ProbeRuns.Add(ctx, 1)
	}

	if err := m.pinger.Ping(ctx); err != nil {
		m.logger.Warn("store health probe failed", "error", err)
		if m.metrics != nil {
			m.metrics.ProbeFailures.Add(context.Background(), 1)
		}
		return false
	}
	return true
}

// Close stops any running probe and prevents new ones from starting.
// The availability flag keeps working after Close.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	t := m.task
	m.task = nil
	m.mu.Unlock()

	if t != nil {
		t.cancel()
		<-t.done
	}
	m.logger.Debug("availability monitor closed")
}

func (m *Monitor) recordTransition(to State) {
	if m.metrics == nil {
		return
	}
	m.metrics.AvailabilityTransitions.Add(context.Background(), 1,
		otelmetric.WithAttributes(attribute.String("state", to.String())),
	)
}
