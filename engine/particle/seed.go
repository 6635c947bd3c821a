package particle

import "fmt"

// SeedStrategy selects how the initial particle distribution is generated.
type SeedStrategy string

const (
	// SeedZero zero-initialises every particle.
	SeedZero SeedStrategy = "zero"

	// SeedTrace lays particles out left to right as a flat trace across clip space,
	// each segment long enough to touch its neighbours.
	SeedTrace SeedStrategy = "trace"
)

// ParseSeedStrategy converts a config string into a SeedStrategy. An empty string selects SeedTrace.
//
// Parameters:
//   - s: the strategy name
//
// Returns:
//   - SeedStrategy: the parsed strategy
//   - error: an error for unknown names
func ParseSeedStrategy(s string) (SeedStrategy, error) {
	switch SeedStrategy(s) {
	case "", SeedTrace:
		return SeedTrace, nil
	case SeedZero:
		return SeedZero, nil
	default:
		return "", fmt.Errorf("unknown seed strategy %q", s)
	}
}

// GenerateSeed builds the initial particle data for count slots.
//
// Parameters:
//   - strategy: the distribution to generate
//   - count: the number of particles
//
// Returns:
//   - []GPUParticle: the generated seed
//   - error: an error for a non-positive count or unknown strategy
func GenerateSeed(strategy SeedStrategy, count int) ([]GPUParticle, error) {
	if count <= 0 {
		return nil, fmt.Errorf("particle count must be positive, got %d", count)
	}
	seed := make([]GPUParticle, count)
	switch strategy {
	case SeedZero:
		return seed, nil
	case SeedTrace, "":
		n := float32(count)
		for i := range seed {
			seed[i] = GPUParticle{
				Position: [2]float32{-1 + (2*float32(i)+1)/n, 0},
				Angle:    0,
				Length:   2 / n,
			}
		}
		return seed, nil
	default:
		return nil, fmt.Errorf("unknown seed strategy %q", strategy)
	}
}
