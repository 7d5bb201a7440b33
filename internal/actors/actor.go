// Package actors provides the political actor data model: capability,
// salience, voting behavior, and the bargains two actors can strike.
package actors

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/talgya/smpsim/internal/geometry"
	"github.com/talgya/smpsim/internal/voting"
)

// ID is an actor's index in the model roster.
type ID int

// View is what an actor needs to know about the current state to evaluate
// positions: where every actor stands and how risk tolerant each one is.
type View interface {
	Position(id ID) geometry.Position
	RiskAttitude(id ID) float64
}

// Actor is a participant in the spatial bargaining game.
type Actor struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Desc string `json:"desc"`

	Capability float64     `json:"capability"` // scalar power, >= 0
	Salience   []float64   `json:"salience"`   // per dimension, >= 0, sum <= 1
	Rule       voting.Rule `json:"voting_rule"`
}

// New creates an actor with proportional voting.
func New(name, desc string, capability float64, salience []float64) *Actor {
	return &Actor{
		Name:       name,
		Desc:       desc,
		Capability: capability,
		Salience:   append([]float64(nil), salience...),
		Rule:       voting.Proportional,
	}
}

// TotalSalience is the share of the actor's attention spent on all
// dimensions together.
func (a *Actor) TotalSalience() float64 {
	return floats.Sum(a.Salience)
}

// Weight is capability scaled by total salience: the influence the actor
// brings to a contest over the dimensions it cares about.
func (a *Actor) Weight() float64 {
	return a.Capability * a.TotalSalience()
}

// Randomize overwrites capability, salience and voting rule with draws from
// rng for a d-dimensional issue space. Name and description are kept.
func (a *Actor) Randomize(rng *rand.Rand, d int) {
	if d < 1 {
		panic(fmt.Sprintf("actors: cannot randomize over %d dimensions", d))
	}
	a.Capability = 10 + 190*rng.Float64()

	// Total salience in [0.75, 0.99], spread over dimensions in proportion
	// to draws from [0.1, 1.0].
	s := 0.75 + 0.24*rng.Float64()
	sal := make([]float64, d)
	var total float64
	for i := range sal {
		sal[i] = 0.1 + 0.9*rng.Float64()
		total += sal[i]
	}
	for i := range sal {
		sal[i] *= s / total
	}
	a.Salience = sal
	a.Rule = voting.Proportional
}

// PosUtil is the actor's utility for a candidate position, measured from its
// own position in view and shaped by its risk attitude there.
func (a *Actor) PosUtil(candidate geometry.Position, v View) float64 {
	own := v.Position(a.ID)
	return geometry.VectorUtil(candidate.Sub(own), a.Salience, v.RiskAttitude(a.ID))
}

// Vote is the actor's capability-weighted vote between two positions.
// Positive favors p1.
func (a *Actor) Vote(p1, p2 geometry.Position, v View) float64 {
	return voting.Vote(a.Rule, a.Capability, a.PosUtil(p1, v), a.PosUtil(p2, v))
}

func (a *Actor) String() string {
	return fmt.Sprintf("%s (cap %.1f, sal %.3f)", a.Name, a.Capability, a.TotalSalience())
}
