package probe

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/internal/domain/simulator"
)

// generate draws n measurements from the simulator's distribution, each with
// a fresh readingId. A dupRate share of extra submissions repeats an earlier
// id; the second return value counts them.
func generate(n int, dupRate float64, seed int64, now time.Time) ([]model.Measurement, int) {
	if seed == 0 {
		seed = now.UnixNano()
	}
	gen := simulator.NewGenerator(simulator.WithSeed(seed))
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // synthetic data

	out := make([]model.Measurement, 0, n+int(float64(n)*dupRate))
	for i := 0; i < n; i++ {
		r := gen.Generate(now)
		out = append(out, model.Measurement{
			ReadingID:   uuid.NewString(),
			BloodFlow:   r.BloodFlow,
			Temperature: r.Temperature,
			Pressure:    r.Pressure,
			Motion:      r.Motion,
			Timestamp:   now.Add(time.Duration(i) * time.Millisecond).UnixMilli(),
		})
	}

	dups := 0
	if n > 0 {
		for i := 0; i < n; i++ {
			if rng.Float64() < dupRate {
				out = append(out, out[rng.Intn(n)])
				dups++
			}
		}
	}
	return out, dups
}
