package vitals

import (
	"sync"

	"triage-assistant/internal/domain"
)

// HistorySize is how many samples the monitor keeps.
const HistorySize = 20

// History is a fixed-size FIFO of samples. The oldest sample is evicted first.
type History struct {
	mu      sync.RWMutex
	samples []domain.VitalSample
	size    int
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = HistorySize
	}
	return &History{size: size, samples: make([]domain.VitalSample, 0, size)}
}

func (h *History) Push(s domain.VitalSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) == h.size {
		copy(h.samples, h.samples[1:])
		h.samples = h.samples[:h.size-1]
	}
	h.samples = append(h.samples, s)
}

// Snapshot returns the samples oldest first.
func (h *History) Snapshot() []domain.VitalSample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.VitalSample, len(h.samples))
	copy(out, h.samples)
	return out
}

func (h *History) Latest() (domain.VitalSample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.samples) == 0 {
		return domain.VitalSample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}
