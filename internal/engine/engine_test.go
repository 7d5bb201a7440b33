package engine

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/talgya/smpsim/internal/actors"
	"github.com/talgya/smpsim/internal/geometry"
)

// lineModel places equally capable actors, fully attentive to a single
// dimension, at the given coordinates.
func lineModel(t *testing.T, xs ...float64) *Model {
	t.Helper()
	m := NewModel("line", rand.New(rand.NewSource(1)))
	m.AddDim("left-right")
	for i := range xs {
		m.AddActor(actors.New(fmt.Sprintf("A%d", i), "", 100, []float64{1}))
	}
	s := NewState(m)
	for _, x := range xs {
		s.AddPosition(geometry.Position{x})
	}
	m.AddState(s)
	return m
}

// unevenLine is a three-actor line with unequal capabilities.
func unevenLine(t *testing.T) *Model {
	t.Helper()
	m := lineModel(t, 0.1, 0.45, 0.9)
	for i, c := range []float64{100, 80, 120} {
		m.Actors[i].Capability = c
	}
	return m
}

// randomModel builds na randomized actors at random positions in nd
// dimensions.
func randomModel(t *testing.T, seed int64, na, nd int) *Model {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	m := NewModel("random", rng)
	for d := 0; d < nd; d++ {
		m.AddDim(fmt.Sprintf("D%d", d))
	}
	for i := 0; i < na; i++ {
		a := actors.New(fmt.Sprintf("SActor-%02d", i), "Random spatial actor", 0, nil)
		a.Randomize(rng, nd)
		m.AddActor(a)
	}
	s := NewState(m)
	for i := 0; i < na; i++ {
		p := make(geometry.Position, nd)
		for d := range p {
			p[d] = rng.Float64()
		}
		s.AddPosition(p)
	}
	m.AddState(s)
	return m
}

func positions(m *Model) [][]float64 {
	var out [][]float64
	for _, s := range m.History {
		for _, p := range s.Positions() {
			out = append(out, []float64(p))
		}
	}
	return out
}

func TestSetAUtilLine(t *testing.T) {
	m := lineModel(t, 0.1, 0.5, 0.9)
	s := m.History[0]
	assert.False(t, s.HasAUtil())
	assert.Zero(t, s.RiskAttitude(1))

	s.SetAUtil()
	require.True(t, s.HasAUtil())
	assert.InDeltaSlice(t, []float64{-0.5, 1, -0.5}, s.RiskAttitudes(), 1e-9)
	assert.False(t, s.Degenerate())

	want0 := mat.NewDense(3, 3, []float64{
		1.00, 0.48, 0.12,
		0.66, 1.00, 0.66,
		0.12, 0.48, 1.00,
	})
	assert.True(t, mat.EqualApprox(want0, s.AUtil(0), 1e-9), "%v", mat.Formatted(s.AUtil(0)))
	assert.InDelta(t, 0.84, s.AUtil(1).At(1, 0), 1e-9)
	assert.InDelta(t, 0.25, s.EstNRA(1, 0), 1e-9)
	assert.InDelta(t, 0.8, s.Diff().At(0, 2), 1e-9)
}

func TestSetAUtilIdempotent(t *testing.T) {
	m := randomModel(t, 3, 6, 2)
	s := m.History[0]
	s.SetAUtil()
	first := make([]*mat.Dense, m.NumActors())
	for h := range first {
		first[h] = mat.DenseCopyOf(s.AUtil(h))
	}
	nra := s.RiskAttitudes()

	s.SetAUtil()
	for h := range first {
		assert.True(t, mat.Equal(first[h], s.AUtil(h)), "estimator %d", h)
	}
	assert.Equal(t, nra, s.RiskAttitudes())
}

func TestAUtilBeforeSetPanics(t *testing.T) {
	m := lineModel(t, 0.1, 0.5, 0.9)
	assert.Panics(t, func() { m.History[0].AUtil(0) })
	assert.Panics(t, func() { m.History[0].EstNRA(0, 1) })
}

func TestBigRFromProb(t *testing.T) {
	p := []float64{0.2, 0.3, 0.5}
	assert.InDeltaSlice(t, []float64{0, 1.0 / 3, 1}, BigRFromProb(p, RangeMin), 1e-12)
	assert.InDeltaSlice(t, []float64{-0.5, 0, 1}, BigRFromProb(p, RangeMid), 1e-12)
	assert.InDeltaSlice(t, []float64{-1, -1.0 / 3, 1}, BigRFromProb(p, RangeMax), 1e-12)
	assert.Equal(t, []float64{0, 0}, BigRFromProb([]float64{0.5, 0.5}, RangeMid))

	assert.Panics(t, func() { BigRFromProb([]float64{0.5, 0.6}, RangeMid) })
	assert.Panics(t, func() { BigRFromProb([]float64{1.5, -0.5}, RangeMid) })
}

func TestChallengesOnLine(t *testing.T) {
	m := lineModel(t, 0.1, 0.5, 0.9)
	s := m.History[0]
	s.SetAUtil()

	p, gain := s.ProbEduChlg(0, 0, 0, 1)
	assert.InDelta(t, 0.66773, p, 1e-4)
	assert.InDelta(t, 0.17444, gain, 1e-4)

	p, gain = s.ProbEduChlg(0, 0, 0, 2)
	assert.InDelta(t, 0.5, p, 1e-9)
	assert.InDelta(t, 0, gain, 1e-9)

	for _, i := range []int{0, 2} {
		j, pj, g := s.BestChallenge(i)
		assert.Equal(t, 1, j, "actor %d", i)
		assert.Greater(t, pj, 0.5)
		assert.Greater(t, g, 0.0)
	}

	j, _, g := s.BestChallenge(1)
	assert.Equal(t, -1, j)
	assert.Zero(t, g)
}

func TestStepBCN(t *testing.T) {
	m := unevenLine(t)
	next, err := StepBCN(context.Background(), m.History[0])
	require.NoError(t, err)

	tr := next.Transition
	require.NotNil(t, tr)
	require.Len(t, tr.Bargains, 2)
	assert.Equal(t, actors.ID(0), tr.Bargains[0].Init.ID)
	assert.Equal(t, actors.ID(2), tr.Bargains[1].Init.ID)
	assert.Equal(t, []int{statusQuo, 0, 1}, tr.Queues[1])
	assert.Equal(t, []int{statusQuo, 0}, tr.Queues[0])

	assert.Nil(t, tr.Selected(0))
	assert.Same(t, tr.Bargains[1], tr.Selected(1))
	assert.Same(t, tr.Bargains[1], tr.Selected(2))

	assert.Equal(t, geometry.Position{0.1}, next.Position(0))
	assert.InDelta(t, 0.84980, next.Position(1)[0], 1e-4)
	assert.InDelta(t, 0.84980, next.Position(2)[0], 1e-4)
	assert.True(t, next.EquivNdx(1, 2))
	assert.Equal(t, 1, next.Turn)

	// The source state is untouched.
	assert.Equal(t, geometry.Position{0.45}, m.History[0].Position(1))
}

func TestEquivalenceAndPDist(t *testing.T) {
	m := lineModel(t, 0.2, 0.2005, 0.8)
	s := m.History[0]
	s.SetAUtil()

	assert.True(t, s.EquivNdx(0, 1))
	assert.True(t, s.EquivNdx(1, 0))
	assert.True(t, s.EquivNdx(2, 2))
	assert.False(t, s.EquivNdx(0, 2))
	assert.Equal(t, []int{0, 2}, s.UniqueNdx())

	for persp := -1; persp < 3; persp++ {
		pdt, unq := s.PDist(persp)
		require.Equal(t, []int{0, 2}, unq)
		assert.InDelta(t, 1.0, floats.Sum(pdt), 1e-8)
		assert.Equal(t, s.PosProb(0, unq, pdt), s.PosProb(1, unq, pdt))
	}
	assert.Panics(t, func() { s.PDist(3) })
	assert.Panics(t, func() { s.PDist(-2) })
}

func TestPDistCollocated(t *testing.T) {
	m := lineModel(t, 0.4, 0.4)
	s := m.History[0]
	s.SetAUtil()
	assert.True(t, s.Degenerate())

	pdt, unq := s.PDist(-1)
	assert.Equal(t, []float64{1}, pdt)
	assert.Equal(t, []int{0}, unq)
	assert.Equal(t, 1.0, s.PosProb(1, unq, pdt))
}

func TestPDistInvariantUnderTiedReorder(t *testing.T) {
	a := lineModel(t, 0.3, 0.3, 0.7, 0.9)
	b := lineModel(t, 0.3, 0.3, 0.7, 0.9)
	// Swap the two collocated actors' names; nothing else distinguishes them.
	b.Actors[0].Name, b.Actors[1].Name = b.Actors[1].Name, b.Actors[0].Name
	a.History[0].SetAUtil()
	b.History[0].SetAUtil()
	pa, ua := a.History[0].PDist(-1)
	pb, ub := b.History[0].PDist(-1)
	assert.Equal(t, ua, ub)
	assert.InDeltaSlice(t, pa, pb, 1e-12)
}

func TestRunMaxTurns(t *testing.T) {
	m := unevenLine(t)
	m.Stop = MaxTurns(3)
	require.NoError(t, m.Run(context.Background()))

	require.Len(t, m.History, 4)
	for turn, s := range m.History {
		assert.Equal(t, turn, s.Turn)
		if turn > 0 {
			assert.NotNil(t, s.Transition)
		}
		for _, p := range s.Positions() {
			assert.GreaterOrEqual(t, p[0], 0.0)
			assert.LessOrEqual(t, p[0], 1.0)
		}
	}
	assert.Nil(t, m.History[0].Transition)
}

func TestQuiescence(t *testing.T) {
	m := lineModel(t, 0.1, 0.5, 0.9)
	add := func(xs ...float64) *State {
		s := NewState(m)
		for _, x := range xs {
			s.AddPosition(geometry.Position{x})
		}
		m.AddState(s)
		return s
	}
	stop := Quiescence(10, 100)

	s1 := add(0.2, 0.5, 0.7) // moved 0.3
	assert.False(t, stop(1, s1))
	s2 := add(0.21, 0.5, 0.7) // moved 0.01
	assert.False(t, stop(2, s2))
	s3 := add(0.211, 0.5, 0.7) // moved 0.001
	assert.True(t, stop(3, s3))

	assert.True(t, Quiescence(3, 100)(3, s2))
	assert.True(t, MaxTurns(2)(2, s2))
	assert.False(t, MaxTurns(2)(1, s1))
}

func TestRunStationaryStopsAfterOneTurn(t *testing.T) {
	m := lineModel(t, 0.4, 0.4, 0.4)
	m.Stop = Quiescence(50, DefaultQuiescenceFactor)
	require.NoError(t, m.Run(context.Background()))
	assert.Len(t, m.History, 2)
}

func TestRunPreconditions(t *testing.T) {
	m := NewModel("empty", rand.New(rand.NewSource(1)))
	m.Stop = MaxTurns(1)
	assert.Error(t, m.Run(context.Background()))

	m = lineModel(t, 0.1, 0.5, 0.9)
	assert.Error(t, m.Run(context.Background()), "no stop rule")

	m = lineModel(t, 0.1, 0.5, 0.9)
	m.Stop = MaxTurns(1)
	m.Params.VotingRule = 99
	assert.Error(t, m.Run(context.Background()))
}

func TestRunCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := randomModel(t, 9, 5, 2)
	m.Stop = MaxTurns(100)
	ctx, cancel := context.WithCancel(context.Background())
	m.OnTurn = func(turn int, _ *State) {
		if turn == 2 {
			cancel()
		}
	}
	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, m.History, 3)
}

func TestRunDeterministicAcrossWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	run := func(workers int) [][]float64 {
		m := randomModel(t, 0x5EED, 7, 3)
		m.Workers = workers
		m.Stop = Quiescence(8, DefaultQuiescenceFactor)
		require.NoError(t, m.Run(context.Background()))
		return positions(m)
	}
	serial := run(1)
	if diff := cmp.Diff(serial, run(4)); diff != "" {
		t.Errorf("parallel run differs (-serial +parallel):\n%s", diff)
	}
}

func TestRunStochasticSeeded(t *testing.T) {
	run := func() [][]float64 {
		m := randomModel(t, 21, 6, 2)
		m.Params.Transitions = Stochastic
		m.Workers = 3
		m.Stop = MaxTurns(4)
		require.NoError(t, m.Run(context.Background()))
		return positions(m)
	}
	assert.Equal(t, run(), run())
}

func TestRunAllParameterVariants(t *testing.T) {
	base := DefaultParams()
	variants := map[string]func(p *Params){
		"square":           func(p *Params) { p.VictoryModel = 1 },
		"binary victory":   func(p *Params) { p.VictoryModel = 4 },
		"markov incentive": func(p *Params) { p.PCEModel = 1 },
		"markov uniform":   func(p *Params) { p.PCEModel = 2 },
		"cubic":            func(p *Params) { p.VotingRule = 4 },
		"asymmetric":       func(p *Params) { p.VotingRule = 5 },
		"no adjust":        func(p *Params) { p.BigRAdjust = AdjustNone },
		"full adjust":      func(p *Params) { p.BigRAdjust = AdjustFull },
		"max range":        func(p *Params) { p.BigRRange = RangeMax },
		"no commit":        func(p *Params) { p.ThirdPartyCommit = 0 },
		"full commit":      func(p *Params) { p.ThirdPartyCommit = 2 },
		"s1p1":             func(p *Params) { p.InterVecBrgn = actors.S1P1 },
		"s2pmax":           func(p *Params) { p.InterVecBrgn = actors.S2PMax },
		"init rcvr":        func(p *Params) { p.BargainModel = InitRcvrInterp },
		"power weighted":   func(p *Params) { p.BargainModel = PWCompInterp },
	}
	for name, set := range variants {
		t.Run(name, func(t *testing.T) {
			m := randomModel(t, 77, 5, 2)
			m.Params = base
			set(&m.Params)
			m.Stop = MaxTurns(3)
			require.NoError(t, m.Run(context.Background()))
			for _, p := range m.Latest().Positions() {
				for _, x := range p {
					assert.GreaterOrEqual(t, x, 0.0)
					assert.LessOrEqual(t, x, 1.0)
				}
			}
		})
	}
}

func TestRunRecordsEveryState(t *testing.T) {
	m := unevenLine(t)
	rec := &MemoryRecorder{}
	m.Recorder = rec
	m.Record = RecordOptions{Votes: true, ThirdParties: true}
	m.Stop = MaxTurns(2)
	require.NoError(t, m.Run(context.Background()))

	require.Equal(t, []string{m.RunID.String()}, rec.Scenarios)
	require.Len(t, rec.Turns, len(m.History))

	first := rec.Turns[0]
	assert.Equal(t, 0, first.Turn)
	assert.Len(t, first.Positions, 3)
	assert.Len(t, first.PosUtils, 27)
	assert.Len(t, first.PosVotes, 18)
	assert.Len(t, first.PosProbs, 12)
	assert.Len(t, first.Challenges, 6)
	assert.Len(t, first.ProbVicts, 6)
	assert.Len(t, first.ThirdParties, 6)
	require.Len(t, first.Bargains, 2)
	assert.Len(t, first.BargainCoords, 2)
	assert.Len(t, first.BargainUtils, 6)

	b := first.Bargains[0]
	assert.Equal(t, 0, b.Init)
	assert.Equal(t, 1, b.Rcvr)
	assert.InDelta(t, 0.22729, b.Value, 1e-4)
	assert.False(t, b.InitSelected)
	assert.False(t, b.RcvrSelected)
	assert.Greater(t, b.InitProb, 0.0)

	b = first.Bargains[1]
	assert.Equal(t, 2, b.Init)
	assert.Equal(t, 1, b.Rcvr)
	assert.InDelta(t, 0.23728, b.Value, 1e-4)
	assert.True(t, b.InitSelected)
	assert.True(t, b.RcvrSelected)

	last := rec.Turns[len(rec.Turns)-1]
	assert.Equal(t, 2, last.Turn)
	assert.Empty(t, last.Bargains)
	assert.Empty(t, last.Challenges)
	assert.Greater(t, last.NumRows(), 0)
}

func TestStateDist(t *testing.T) {
	m := lineModel(t, 0.1, 0.5, 0.9)
	s := NewState(m)
	s.AddPosition(geometry.Position{0.2})
	s.AddPosition(geometry.Position{0.5})
	s.AddPosition(geometry.Position{0.6})
	assert.InDelta(t, 0.4, m.StateDist(m.History[0], s), 1e-12)
}

func TestModelRosterChecks(t *testing.T) {
	m := NewModel("roster", rand.New(rand.NewSource(1)))
	m.AddDim("x")
	a := actors.New("a", "", 1, []float64{0.5})
	m.AddActor(a)
	assert.Equal(t, 0, m.ActorIndex(a))
	assert.Equal(t, -1, m.ActorIndex(actors.New("b", "", 1, []float64{0.5})))
	assert.Panics(t, func() { m.AddActor(actors.New("c", "", 1, []float64{0.5, 0.5})) })
	assert.Panics(t, func() { m.AddDim("y") })

	s := NewState(m)
	assert.Panics(t, func() { s.AddPosition(geometry.Position{0.1, 0.2}) })
	s.AddPosition(geometry.Position{0.1})
	assert.Panics(t, func() { s.AddPosition(geometry.Position{0.1}) })
}

func TestParamsSet(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Set("VotingRule", "Cubic"))
	require.NoError(t, p.Set("bigradjust", "TwoThirds"))
	require.NoError(t, p.Set("BargnModel", "PWCompInterp"))
	require.NoError(t, p.Set("InterVecBrgn", "S1P1"))
	assert.Equal(t, "Linear/Conditional/Deterministic/Cubic/TwoThirds/Mid/SemiCommit/S1P1/PWCompInterp", p.String())
	assert.Error(t, p.Set("Nonsense", "x"))
	assert.Error(t, p.Set("BigRRange", "Huge"))
	assert.NoError(t, p.Validate())
	assert.Len(t, ParamNames(), 9)
	v, err := p.Get("votingrule")
	require.NoError(t, err)
	assert.Equal(t, "Cubic", v)
	_, err = p.Get("Nonsense")
	assert.Error(t, err)
	for _, name := range ParamNames() {
		assert.NotContains(t, p.Set(name, "bogus").Error(), "unknown model parameter")
	}
}

func TestParamValues(t *testing.T) {
	counts := map[string]int{
		"VictoryProbModel": 5, "PCEModel": 3, "StateTransitions": 2, "VotingRule": 6, "BigRAdjust": 5,
		"BigRRange": 3, "ThirdPartyCommit": 3, "InterVecBrgn": 3, "BargnModel": 3,
	}
	for _, name := range ParamNames() {
		values, err := ParamValues(name)
		require.NoError(t, err, name)
		assert.Len(t, values, counts[name], name)
		for _, v := range values {
			p := DefaultParams()
			require.NoError(t, p.Set(name, v), "%s=%s", name, v)
			got, err := p.Get(name)
			require.NoError(t, err)
			assert.Equal(t, v, got)
		}
	}
	_, err := ParamValues("Colour")
	assert.Error(t, err)
}
