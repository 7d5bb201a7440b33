package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/talgya/smpsim/internal/actors"
	"github.com/talgya/smpsim/internal/geometry"
	"github.com/talgya/smpsim/internal/voting"
)

const (
	// duTol is the smallest change risk inference must make to the utility
	// matrix before the state is flagged as degenerate.
	duTol = 1e-6
	// probTol bounds how far a probability vector may stray from summing to one.
	probTol = 1e-8
	// minSpread floors the probability spread when mapping to risk attitudes.
	minSpread = 1e-10
)

// State is one snapshot of the game: a position per actor. Positions never
// change after the state joins a model's history. The utility matrices are
// derived on demand by SetAUtil and cached.
type State struct {
	model     *Model
	Turn      int
	positions []geometry.Position

	// Transition describes the bargaining that produced this state, nil for
	// the initial state.
	Transition *Transition

	mu         sync.Mutex
	nra        []float64    // inferred risk attitude per actor
	diff       *mat.Dense   // diff(i,j): salience-weighted distance from i to j, in i's eyes
	aUtil      []*mat.Dense // aUtil[h](i,j): h's estimate of i's utility for j's position
	degenerate bool
}

// NewState creates an empty state for m. Add one position per actor, in
// roster order, before handing it to the model.
func NewState(m *Model) *State {
	return &State{model: m, positions: make([]geometry.Position, 0, m.NumActors())}
}

// Model returns the model this state belongs to.
func (s *State) Model() *Model { return s.model }

// AddPosition appends the next actor's position.
func (s *State) AddPosition(p geometry.Position) {
	if len(p) != s.model.NumDims() {
		panic(fmt.Sprintf("engine: position has %d dimensions, model has %d", len(p), s.model.NumDims()))
	}
	if len(s.positions) >= s.model.NumActors() {
		panic("engine: more positions than actors")
	}
	s.positions = append(s.positions, p.Clone())
}

// Position is where actor id stands. Callers must not modify the result.
func (s *State) Position(id actors.ID) geometry.Position { return s.positions[id] }

// Positions returns every actor's position in roster order. Callers must not
// modify the result.
func (s *State) Positions() []geometry.Position { return s.positions }

// RiskAttitude is actor id's inferred risk attitude, or neutral before
// SetAUtil has run.
func (s *State) RiskAttitude(id actors.ID) float64 {
	if s.nra == nil {
		return 0
	}
	return s.nra[id]
}

// RiskAttitudes returns a copy of the inferred risk attitudes.
func (s *State) RiskAttitudes() []float64 { return append([]float64(nil), s.nra...) }

// Degenerate reports whether risk inference left utilities unchanged, as
// happens when every actor's position is equally likely to prevail.
func (s *State) Degenerate() bool { return s.degenerate }

// ActorCaps returns every actor's capability in roster order.
func (s *State) ActorCaps() []float64 {
	w := make([]float64, s.model.NumActors())
	for i, a := range s.model.Actors {
		w[i] = a.Capability
	}
	return w
}

// HasAUtil reports whether the utility matrices are available.
func (s *State) HasAUtil() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aUtil != nil
}

// EnsureAUtil runs SetAUtil unless it already has.
func (s *State) EnsureAUtil() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aUtil == nil {
		s.setAUtil()
	}
}

// AUtil is h's estimate of the utility matrix. Panics before SetAUtil.
func (s *State) AUtil(h int) *mat.Dense {
	if s.aUtil == nil {
		panic("engine: utility matrices used before SetAUtil")
	}
	return s.aUtil[h]
}

// Diff returns the salience-weighted distance matrix. Panics before SetAUtil.
func (s *State) Diff() *mat.Dense {
	if s.diff == nil {
		panic("engine: distance matrix used before SetAUtil")
	}
	return s.diff
}

// SetAUtil infers every actor's risk attitude from how likely its position is
// to prevail under risk-neutral utilities, then builds each actor h's
// estimate of all actors' utilities for all positions. Running it again
// yields identical results.
func (s *State) SetAUtil() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setAUtil()
}

func (s *State) setAUtil() {
	m := s.model
	na := m.NumActors()
	if len(s.positions) != na {
		panic(fmt.Sprintf("engine: state has %d positions for %d actors", len(s.positions), na))
	}

	diff := mat.NewDense(na, na, nil)
	for i, ai := range m.Actors {
		for j := 0; j < na; j++ {
			diff.Set(i, j, geometry.WeightedDistance(s.positions[i].Sub(s.positions[j]), ai.Salience))
		}
	}

	utilWith := func(r func(i int) float64) *mat.Dense {
		u := mat.NewDense(na, na, nil)
		for i := 0; i < na; i++ {
			ri := r(i)
			for j := 0; j < na; j++ {
				u.Set(i, j, geometry.ScalarUtil(diff.At(i, j), ri))
			}
		}
		return u
	}

	rnUtil := utilWith(func(int) float64 { return 0 })
	p := voting.ScalarPCE(s.ActorCaps(), rnUtil, m.Params.VotingRule, m.Params.VictoryModel, m.Params.PCEModel)
	nra := BigRFromProb(p, m.Params.BigRRange)
	raUtil := utilWith(func(i int) float64 { return nra[i] })

	var delta mat.Dense
	delta.Sub(rnUtil, raUtil)
	s.degenerate = mat.Norm(&delta, 2) <= duTol
	if s.degenerate {
		slog.Warn("risk inference left utilities unchanged", "turn", s.Turn, "actors", na)
	}

	f := m.Params.BigRAdjust.Fraction()
	aUtil := make([]*mat.Dense, na)
	for h := 0; h < na; h++ {
		aUtil[h] = utilWith(func(i int) float64 { return estNRA(nra, h, i, f) })
	}

	s.diff = diff
	s.nra = nra
	s.aUtil = aUtil
	slog.Debug("utilities set", "turn", s.Turn, "risk", fmt.Sprintf("%+.3f", nra),
		"rms_shift", fmt.Sprintf("%.4f", mat.Norm(&delta, 2)/float64(na)))
}

// EstNRA is h's estimate of i's risk attitude.
func (s *State) EstNRA(h, i int) float64 {
	if s.nra == nil {
		panic("engine: risk attitudes used before SetAUtil")
	}
	return estNRA(s.nra, h, i, s.model.Params.BigRAdjust.Fraction())
}

func estNRA(nra []float64, h, i int, f float64) float64 {
	return nra[h] + f*(nra[i]-nra[h])
}

// BigRFromProb maps each actor's probability of prevailing onto a risk
// attitude: the actor with the lowest probability gets the bottom of the
// range and the one with the highest gets +1.
func BigRFromProb(p []float64, r BigRRange) []float64 {
	if s := floats.Sum(p); math.Abs(1-s) > probTol {
		panic(fmt.Sprintf("engine: probabilities sum to %v", s))
	}
	for _, x := range p {
		if x < 0 || x > 1 {
			panic(fmt.Sprintf("engine: probability %v outside [0,1]", x))
		}
	}
	pMin, pMax := floats.Min(p), floats.Max(p)
	spread := math.Max(pMax-pMin, minSpread)

	out := make([]float64, len(p))
	for i, x := range p {
		switch r {
		case RangeMin:
			out[i] = (x - pMin) / spread
		case RangeMid:
			out[i] = (3*x - (pMax + 2*pMin)) / (2 * spread)
		case RangeMax:
			out[i] = (2*x - (pMax + pMin)) / spread
		default:
			panic(fmt.Sprintf("engine: unknown risk range %d", r))
		}
	}
	return out
}

// EquivNdx reports whether actors i and j hold the same position, within the
// model's tolerance.
func (s *State) EquivNdx(i, j int) bool {
	return s.positions[i].Dist(s.positions[j]) < s.model.PosTol
}

// UniqueNdx returns, in ascending order, the actors whose position is not
// equivalent to that of any lower-indexed actor.
func (s *State) UniqueNdx() []int {
	var unq []int
	for i := range s.positions {
		if s.reprNdx(i) == i {
			unq = append(unq, i)
		}
	}
	return unq
}

// reprNdx is the lowest-indexed actor whose position is equivalent to i's.
func (s *State) reprNdx(i int) int {
	for j := 0; j < i; j++ {
		if s.EquivNdx(i, j) {
			return j
		}
	}
	return i
}

// PDist is the probability that each distinct position prevails, as judged
// by actor persp, or by every actor in its own eyes when persp is -1. Only
// positions not equivalent to a lower-indexed one take part; their indices
// are returned alongside, in the same order as the probabilities.
func (s *State) PDist(persp int) ([]float64, []int) {
	na := s.model.NumActors()
	var u *mat.Dense
	switch {
	case persp == -1:
		u = mat.NewDense(na, na, nil)
		for i := 0; i < na; i++ {
			for j := 0; j < na; j++ {
				u.Set(i, j, s.AUtil(i).At(i, j))
			}
		}
	case persp >= 0 && persp < na:
		u = s.AUtil(persp)
	default:
		panic(fmt.Sprintf("engine: unrecognized perspective %d", persp))
	}

	unq := s.UniqueNdx()
	uu := mat.NewDense(na, len(unq), nil)
	for i := 0; i < na; i++ {
		for k, j := range unq {
			uu.Set(i, k, u.At(i, j))
		}
	}
	p := voting.ScalarPCE(s.ActorCaps(), uu, s.model.Params.VotingRule, s.model.Params.VictoryModel, s.model.Params.PCEModel)
	return p, unq
}

// PosProb is the probability that actor i's position prevails, given a
// distribution over the unique positions unq from PDist. Equivalence within
// tolerance is not transitive, so when no unique position is equivalent to
// i's the nearest one stands in for it.
func (s *State) PosProb(i int, unq []int, pdt []float64) float64 {
	if len(unq) != len(pdt) || len(unq) == 0 {
		panic(fmt.Sprintf("engine: %d unique positions with %d probabilities", len(unq), len(pdt)))
	}
	nearest, best := 0, math.Inf(1)
	for k, j := range unq {
		if s.EquivNdx(i, j) {
			return pdt[k]
		}
		if d := s.positions[i].Dist(s.positions[j]); d < best {
			nearest, best = k, d
		}
	}
	return pdt[nearest]
}
