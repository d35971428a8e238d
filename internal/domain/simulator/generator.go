// Package simulator produces synthetic sensor readings and schedules them on a
// fixed interval.
package simulator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/internal/domain/risk"
	"github.com/okian/padmon/pkg/metrics"
)

// DefaultSymptomProbability is the share of readings drawn from the
// symptomatic range.
const DefaultSymptomProbability = 0.2

// span is a closed-open uniform range.
type span struct{ lo, hi float64 }

func (s span) draw(rng *rand.Rand) float64 {
	return s.lo + rng.Float64()*(s.hi-s.lo)
}

// Physiological ranges for each branch.
var (
	healthyBloodFlow   = span{80, 100}
	healthyTemperature = span{36, 37}
	healthyPressure    = span{80, 120}

	symptomBloodFlow   = span{40, 70}
	symptomTemperature = span{33, 35}
	symptomPressure    = span{130, 150}

	motionAxis = span{-1, 1}
)

// Generator draws readings from a healthy baseline with occasional
// symptomatic excursions. It is safe for concurrent use.
type Generator struct {
	mu                 sync.Mutex
	rng                *rand.Rand
	symptomProbability float64
}

// NewGenerator creates a generator seeded from the wall clock unless a seed
// or random source is supplied.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		symptomProbability: DefaultSymptomProbability,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // synthetic data
	}
	return g
}

// Generate produces one scored reading stamped with now.
func (g *Generator) Generate(now time.Time) model.SensorReading {
	g.mu.Lock()
	m := model.Measurement{
		BloodFlow:   healthyBloodFlow.draw(g.rng),
		Temperature: healthyTemperature.draw(g.rng),
		Pressure:    healthyPressure.draw(g.rng),
	}
	symptomatic := g.rng.Float64() < g.symptomProbability
	if symptomatic {
		m.BloodFlow = symptomBloodFlow.draw(g.rng)
		m.Temperature = symptomTemperature.draw(g.rng)
		m.Pressure = symptomPressure.draw(g.rng)
	}
	m.Motion = model.Motion{
		X: motionAxis.draw(g.rng),
		Y: motionAxis.draw(g.rng),
		Z: motionAxis.draw(g.rng),
	}
	g.mu.Unlock()

	metrics.RecordReadingSimulated(symptomatic)
	return risk.Assess(m, now, model.SourceSimulator)
}

// SymptomProbability reports the configured symptomatic share.
func (g *Generator) SymptomProbability() float64 {
	return g.symptomProbability
}
