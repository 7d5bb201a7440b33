package scenario

import (
	"fmt"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/smpsim/internal/actors"
)

// Options shape a generated scenario.
type Options struct {
	Name string
	Desc string

	// Correlated draws positions from a smooth noise field so that an
	// actor's stances on neighboring dimensions tend to agree.
	Correlated bool
}

const (
	noiseFreq    = 1.7
	noiseDimStep = 0.45
	noiseOctaves = 3
)

// Random builds na actors in nd dimensions with randomized capabilities and
// saliences. All draws come from rng.
func Random(rng *rand.Rand, na, nd int, opts Options) *Scenario {
	s := &Scenario{Name: opts.Name, Desc: opts.Desc}
	if s.Name == "" {
		s.Name = "random"
	}
	if s.Desc == "" {
		s.Desc = fmt.Sprintf("%d random actors in %d dimensions", na, nd)
	}
	for d := 0; d < nd; d++ {
		s.Dims = append(s.Dims, fmt.Sprintf("Dim-%02d", d))
	}

	for i := 0; i < na; i++ {
		a := actors.New(fmt.Sprintf("SActor-%02d", i), "Random spatial actor", 0, nil)
		a.Randomize(rng, nd)
		s.Actors = append(s.Actors, ActorSpec{
			Name:       a.Name,
			Desc:       a.Desc,
			Capability: a.Capability,
			Salience:   a.Salience,
		})
	}

	if opts.Correlated {
		field := opensimplex.NewNormalized(rng.Int63())
		for i := range s.Actors {
			x := rng.Float64() * 8
			pos := make([]float64, nd)
			for d := range pos {
				pos[d] = clamp01(octaveNoise(field, x, float64(d)*noiseDimStep))
			}
			s.Actors[i].Position = pos
		}
	} else {
		for i := range s.Actors {
			pos := make([]float64, nd)
			for d := range pos {
				pos[d] = rng.Float64()
			}
			s.Actors[i].Position = pos
		}
	}
	return s
}

// octaveNoise layers a few frequencies of the field at (x, y).
func octaveNoise(noise opensimplex.Noise, x, y float64) float64 {
	total, amp, norm, freq := 0.0, 1.0, 0.0, noiseFreq
	for o := 0; o < noiseOctaves; o++ {
		total += noise.Eval2(x*freq, y*freq) * amp
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return total / norm
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
