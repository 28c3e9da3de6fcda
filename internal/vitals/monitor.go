package vitals

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"triage-assistant/internal/domain"
	"triage-assistant/internal/observability"
)

// Sink receives every generated sample, e.g. a message broker.
type Sink interface {
	Publish(ctx context.Context, s domain.VitalSample) error
	Close() error
}

type Monitor struct {
	gen      *Generator
	history  *History
	interval time.Duration
	sinks    []Sink

	mu      sync.Mutex
	subs    map[int]chan domain.VitalSample
	nextSub int
	stopped bool
}

// NewMonitor seeds a full history so charts have data before the first tick.
func NewMonitor(gen *Generator, interval time.Duration, sinks ...Sink) *Monitor {
	m := &Monitor{
		gen:      gen,
		history:  NewHistory(HistorySize),
		interval: interval,
		sinks:    sinks,
		subs:     make(map[int]chan domain.VitalSample),
	}
	for i := 0; i < HistorySize; i++ {
		m.history.Push(gen.Next())
	}
	return m
}

// Run ticks until ctx is cancelled, then closes every subscriber channel.
func (m *Monitor) Run(ctx context.Context) {
	defer m.closeSubscribers()

	log := observability.WithFields("component", "vitals", "profile", m.gen.Profile().Name)
	log.Info("vitals monitor started", "interval", m.interval.String())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("vitals monitor stopping")
			return
		case <-ticker.C:
			m.Step(ctx)
		}
	}
}

// Step generates one sample, records it and fans it out.
func (m *Monitor) Step(ctx context.Context) domain.VitalSample {
	s := m.gen.Next()
	m.history.Push(s)

	m.mu.Lock()
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
			// slow reader, drop the sample
		}
	}
	m.mu.Unlock()

	for _, sink := range m.sinks {
		if err := sink.Publish(ctx, s); err != nil {
			observability.Logger().Warn("vitals sink publish failed", "error", err)
		}
	}
	return s
}

// Current returns the newest sample, or the baseline if there is none.
func (m *Monitor) Current() domain.VitalSample {
	if s, ok := m.history.Latest(); ok {
		return s
	}
	return Baseline
}

func (m *Monitor) History() []domain.VitalSample {
	return m.history.Snapshot()
}

func (m *Monitor) closeSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

// Subscribe returns a channel of new samples and a func to stop receiving them.
// The channel is closed when the monitor stops; subscribing to a stopped
// monitor returns a closed channel.
func (m *Monitor) Subscribe() (<-chan domain.VitalSample, func()) {
	ch := make(chan domain.VitalSample, 8)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
}

// Close closes every sink and reports all failures together.
func (m *Monitor) Close() error {
	var result *multierror.Error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
