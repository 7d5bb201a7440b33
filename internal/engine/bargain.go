package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/talgya/smpsim/internal/actors"
	"github.com/talgya/smpsim/internal/geometry"
	"github.com/talgya/smpsim/internal/voting"
)

// statusQuo marks the no-bargain entry at the head of every actor's queue.
const statusQuo = -1

// Transition records the bargaining that turned one state into the next.
type Transition struct {
	From int // turn of the state bargained over

	Challenges []Challenge       // best target per actor
	Bargains   []*actors.Bargain // each bargain once, in initiator order
	Values     []float64         // initiator's expected gain per bargain
	Queues     [][]int           // per actor: bargain IDs considered, statusQuo first
	Probs      [][]float64       // per actor: election probability of each queue entry
	Chosen     []int             // per actor: index of the selected queue entry
	SQUtils    []float64         // per actor: utility of the status quo
	Utils      [][]float64       // per bargain, per actor: utility of the bargain
}

// Selected returns the bargain actor k adopted, or nil if it kept its
// position.
func (t *Transition) Selected(k int) *actors.Bargain {
	id := t.Queues[k][t.Chosen[k]]
	if id == statusQuo {
		return nil
	}
	return t.Bargains[id]
}

// ProbOf is the election probability of bargain id in actor k's queue, and
// whether k selected it. Both are zero when the bargain is not in k's queue.
func (t *Transition) ProbOf(k, id int) (float64, bool) {
	for m, b := range t.Queues[k] {
		if b == id {
			return t.Probs[k][m], t.Chosen[k] == m
		}
	}
	return 0, false
}

// StepBCN is the standard turn: every actor looks for its best challenge,
// proposes a bargain to that target, and then adopts whichever of the bargains
// it is party to (or the status quo) wins an election among all actors.
func StepBCN(ctx context.Context, s *State) (*State, error) {
	s.EnsureAUtil()
	return s.doBCN(ctx)
}

func (s *State) doBCN(ctx context.Context) (*State, error) {
	m := s.model
	na := m.NumActors()
	detail := m.Recorder != nil
	tr := &Transition{
		From:       s.Turn,
		Challenges: make([]Challenge, na),
		Queues:     make([][]int, na),
		Probs:      make([][]float64, na),
		Chosen:     make([]int, na),
		SQUtils:    make([]float64, na),
	}

	if err := m.parallel(ctx, na, func(i int) {
		tr.Challenges[i] = s.bestChallenge(i, detail)
	}); err != nil {
		return nil, err
	}

	for k := range tr.Queues {
		tr.Queues[k] = []int{statusQuo}
	}
	for i, c := range tr.Challenges {
		if c.Target < 0 {
			slog.Debug("no advantageous target", "turn", s.Turn, "actor", i)
			continue
		}
		b := s.proposeBargain(c)
		b.ID = len(tr.Bargains)
		tr.Bargains = append(tr.Bargains, b)
		tr.Values = append(tr.Values, c.Gain)
		tr.Queues[i] = append(tr.Queues[i], b.ID)
		tr.Queues[c.Target] = append(tr.Queues[c.Target], b.ID)
		slog.Debug("bargain proposed", "turn", s.Turn, "init", i, "rcvr", c.Target,
			"gain", fmt.Sprintf("%.3f", c.Gain), "prob", fmt.Sprintf("%.3f", c.Prob))
		m.logDecision(map[string]any{
			"event": "challenge", "run": m.RunID.String(), "turn": s.Turn,
			"init": i, "rcvr": c.Target, "prob": c.Prob, "gain": c.Gain,
			"pos_init": []float64(b.PosInit), "pos_rcvr": []float64(b.PosRcvr),
		})
	}

	tr.Utils = make([][]float64, len(tr.Bargains))
	for b := range tr.Utils {
		tr.Utils[b] = make([]float64, na)
	}
	if err := m.parallel(ctx, na, func(a int) {
		tr.SQUtils[a] = s.sqUtil(a)
		for id, b := range tr.Bargains {
			tr.Utils[id][a] = s.bargainUtil(a, b)
		}
	}); err != nil {
		return nil, err
	}

	w := s.ActorCaps()
	if err := m.parallel(ctx, na, func(k int) {
		q := tr.Queues[k]
		u := mat.NewDense(na, len(q), nil)
		for a := 0; a < na; a++ {
			for j, id := range q {
				if id == statusQuo {
					u.Set(a, j, tr.SQUtils[a])
				} else {
					u.Set(a, j, tr.Utils[id][a])
				}
			}
		}
		tr.Probs[k] = voting.ScalarPCE(w, u, m.Params.VotingRule, m.Params.VictoryModel, m.Params.PCEModel)
		if m.Params.Transitions == Deterministic {
			tr.Chosen[k] = floats.MaxIdx(tr.Probs[k])
		}
	}); err != nil {
		return nil, err
	}
	if m.Params.Transitions == Stochastic {
		// Sampled in roster order so a seed fixes the outcome.
		for k := range tr.Chosen {
			tr.Chosen[k] = sample(m.rng.Float64(), tr.Probs[k])
		}
	}

	next := NewState(m)
	next.Turn = s.Turn + 1
	next.Transition = tr
	for k := 0; k < na; k++ {
		b := tr.Selected(k)
		var pk geometry.Position
		switch {
		case b == nil:
			pk = s.positions[k]
		case int(b.Init.ID) == k:
			pk = b.PosInit
		case int(b.Rcvr.ID) == k:
			pk = b.PosRcvr
		default:
			panic(fmt.Sprintf("engine: actor %d selected bargain %d it is not party to", k, b.ID))
		}
		next.AddPosition(pk)
		if b != nil {
			m.logDecision(map[string]any{
				"event": "bargain_selected", "run": m.RunID.String(), "turn": s.Turn,
				"actor": k, "bargain": b.ID, "init": int(b.Init.ID), "rcvr": int(b.Rcvr.ID),
				"prob": tr.Probs[k][tr.Chosen[k]],
			})
		}
	}
	return next, nil
}

// proposeBargain builds the terms initiator c.Init offers target c.Target.
func (s *State) proposeBargain(c Challenge) *actors.Bargain {
	m := s.model
	i, j := c.Init, c.Target
	ai, aj := m.Actors[i], m.Actors[j]

	prbI := c.Prob
	prbJ := 1 - c.Prob
	switch m.Params.BargainModel {
	case InitOnlyInterp:
	case InitRcvrInterp:
		// j judges its own chances.
		pj, _ := s.ProbEduChlg(j, j, i, j)
		prbJ = 1 - pj
	case PWCompInterp:
		pj, _ := s.ProbEduChlg(j, j, i, j)
		wi, wj := ai.Weight(), aj.Weight()
		p := c.Prob
		if wi+wj > 0 {
			p = (wi*c.Prob + wj*pj) / (wi + wj)
		}
		prbI, prbJ = p, 1-p
	default:
		panic(fmt.Sprintf("engine: unknown bargain model %d", m.Params.BargainModel))
	}
	return actors.InterpolateBargain(ai, aj, s.positions[i], s.positions[j], prbI, prbJ, m.Params.InterVecBrgn)
}

// sqUtil is actor a's mean utility over the current positions.
func (s *State) sqUtil(a int) float64 {
	u := s.AUtil(a)
	var sum float64
	for n := 0; n < s.model.NumActors(); n++ {
		sum += u.At(a, n)
	}
	return checkMeanUtil(sum / float64(s.model.NumActors()))
}

// bargainUtil is actor a's mean utility over the positions that would stand
// after bargain b: the new terms for its two parties and the current
// positions of everyone else.
func (s *State) bargainUtil(a int, b *actors.Bargain) float64 {
	m := s.model
	actor := m.Actors[a]
	init, rcvr := int(b.Init.ID), int(b.Rcvr.ID)
	sum := actor.PosUtil(b.PosInit, s) + actor.PosUtil(b.PosRcvr, s)
	u := s.AUtil(a)
	for n := 0; n < m.NumActors(); n++ {
		if n != init && n != rcvr {
			sum += u.At(a, n)
		}
	}
	return checkMeanUtil(sum / float64(m.NumActors()))
}

func checkMeanUtil(u float64) float64 {
	if u < -probTol || u > 1+probTol {
		panic(fmt.Sprintf("engine: mean utility %v outside [0,1]", u))
	}
	return u
}

// sample picks the index whose cumulative probability first exceeds x.
func sample(x float64, p []float64) int {
	var acc float64
	for i, pi := range p {
		acc += pi
		if x < acc {
			return i
		}
	}
	return len(p) - 1
}

// parallel runs fn for every index in [0,n) on the model's worker pool.
// Each call must write only to its own slots.
func (m *Model) parallel(ctx context.Context, n int, fn func(i int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	return g.Wait()
}
