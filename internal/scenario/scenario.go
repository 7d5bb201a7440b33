// Package scenario reads, writes and generates the starting point of a run:
// the actors, the policy dimensions, and where each actor stands and how much
// it cares on each dimension.
//
// Positions and saliences are held on the model's [0,1] scale. CSV files use
// a 0-100 scale.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/talgya/smpsim/internal/actors"
	"github.com/talgya/smpsim/internal/engine"
	"github.com/talgya/smpsim/internal/geometry"
)

// ErrInvalidScenario is wrapped by every validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

const (
	MinActors     = 3
	MaxActors     = 100
	MaxCapability = 1e8

	salienceTol = 1e-9
)

// ActorSpec is one actor's row.
type ActorSpec struct {
	Name       string    `json:"name"`
	Desc       string    `json:"desc"`
	Capability float64   `json:"capability"`
	Position   []float64 `json:"position"`
	Salience   []float64 `json:"salience"`
}

// Scenario is a complete starting configuration.
type Scenario struct {
	Name   string      `json:"name"`
	Desc   string      `json:"desc"`
	Dims   []string    `json:"dims"`
	Actors []ActorSpec `json:"actors"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...))
}

// Validate checks counts, shapes and ranges.
func (s *Scenario) Validate() error {
	nd := len(s.Dims)
	if nd < 1 {
		return invalid("need at least one dimension")
	}
	if na := len(s.Actors); na < MinActors || na > MaxActors {
		return invalid("%d actors, want %d to %d", na, MinActors, MaxActors)
	}
	for i, a := range s.Actors {
		if a.Name == "" {
			return invalid("actor %d has no name", i)
		}
		if a.Capability < 0 || a.Capability >= MaxCapability || math.IsNaN(a.Capability) {
			return invalid("actor %d (%s) capability %g out of range", i, a.Name, a.Capability)
		}
		if len(a.Position) != nd || len(a.Salience) != nd {
			return invalid("actor %d (%s) has %d positions and %d saliences for %d dimensions",
				i, a.Name, len(a.Position), len(a.Salience), nd)
		}
		var total float64
		for d := 0; d < nd; d++ {
			if p := a.Position[d]; !(p >= 0 && p <= 1) {
				return invalid("actor %d (%s) position %g on dimension %d out of bounds", i, a.Name, 100*p, d)
			}
			if sl := a.Salience[d]; !(sl >= 0 && sl <= 1) {
				return invalid("actor %d (%s) salience %g on dimension %d out of bounds", i, a.Name, 100*sl, d)
			}
			total += a.Salience[d]
		}
		if total > 1+salienceTol {
			return invalid("actor %d (%s) total salience %g exceeds 100", i, a.Name, 100*total)
		}
		if total <= 0 {
			return invalid("actor %d (%s) has no salience on any dimension", i, a.Name)
		}
	}
	return nil
}

// Model builds a ready-to-run model holding the scenario's actors and a
// single initial state.
func (s *Scenario) Model(rng *rand.Rand) (*engine.Model, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	m := engine.NewModel(s.Name, rng)
	m.Desc = s.Desc
	for _, d := range s.Dims {
		m.AddDim(d)
	}
	for _, a := range s.Actors {
		m.AddActor(actors.New(a.Name, a.Desc, a.Capability, a.Salience))
	}
	st := engine.NewState(m)
	for _, a := range s.Actors {
		st.AddPosition(geometry.Position(a.Position).Clone())
	}
	m.AddState(st)
	return m, nil
}
