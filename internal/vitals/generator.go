package vitals

import (
	"math/rand"
	"sync"
	"time"

	"triage-assistant/internal/domain"
)

// Range is an inclusive integer interval.
type Range struct {
	Min, Max int
}

func (r Range) pick(rng *rand.Rand) int {
	return rng.Intn(r.Max-r.Min+1) + r.Min
}

func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

type Profile struct {
	Name        string
	HeartRate   Range
	SpO2        Range
	BPSystolic  Range
	BPDiastolic Range
}

var (
	// MonitorProfile feeds the doctor dashboard.
	MonitorProfile = Profile{
		Name:        "monitor",
		HeartRate:   Range{60, 100},
		SpO2:        Range{92, 100},
		BPSystolic:  Range{110, 140},
		BPDiastolic: Range{70, 90},
	}

	// HomeProfile feeds the patient view and stays within calmer ranges.
	HomeProfile = Profile{
		Name:        "home",
		HeartRate:   Range{60, 100},
		SpO2:        Range{95, 100},
		BPSystolic:  Range{110, 130},
		BPDiastolic: Range{70, 85},
	}
)

// Baseline is the reading shown before the first tick.
var Baseline = domain.VitalSample{HeartRate: 72, SpO2: 98, BPSystolic: 120, BPDiastolic: 80}

func ProfileByName(name string) (Profile, bool) {
	switch name {
	case MonitorProfile.Name:
		return MonitorProfile, true
	case HomeProfile.Name:
		return HomeProfile, true
	}
	return Profile{}, false
}

type Generator struct {
	profile Profile
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator(p Profile, seed int64) *Generator {
	return &Generator{
		profile: p,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Next returns a sample with every field inside the profile ranges.
func (g *Generator) Next() domain.VitalSample {
	g.mu.Lock()
	defer g.mu.Unlock()

	return domain.VitalSample{
		Timestamp:   g.now(),
		HeartRate:   g.profile.HeartRate.pick(g.rng),
		SpO2:        g.profile.SpO2.pick(g.rng),
		BPSystolic:  g.profile.BPSystolic.pick(g.rng),
		BPDiastolic: g.profile.BPDiastolic.pick(g.rng),
	}
}

func (g *Generator) Profile() Profile {
	return g.profile
}
