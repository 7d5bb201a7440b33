package engine

import (
	"sync"

	"github.com/talgya/smpsim/internal/voting"
)

// Recorder receives the scenario once per run and one record per state.
// Implementations must not retain or modify the model's states.
type Recorder interface {
	RecordScenario(m *Model) error
	RecordTurn(rec *TurnRecord) error
}

// PositionRow is one coordinate of one actor's position.
type PositionRow struct {
	Actor, Dim int
	Coord      float64
}

// PosUtilRow is Est's estimate of Actor's utility for Pos's position.
type PosUtilRow struct {
	Est, Actor, Pos int
	Util            float64
}

// PosVoteRow is Voter's vote between the positions of PosI and PosJ, as Est
// sees it.
type PosVoteRow struct {
	Est, Voter, PosI, PosJ int
	Vote                   float64
}

// PosProbRow is the probability that Actor's position prevails, as judged by
// Est, or by all actors together when Est is -1.
type PosProbRow struct {
	Est, Actor int
	Prob       float64
}

// PosEquivRow maps an actor to the lowest-indexed actor holding an
// equivalent position.
type PosEquivRow struct {
	Pos, Eqv int
}

// UtilChlgRow is Est's view of what Init challenging Rcvr is worth to Aff.
type UtilChlgRow struct {
	Est, Aff, Init, Rcvr      int
	USQ, UVict, UCntst, UChlg float64
}

// ProbVictRow is Est's estimate of the chance Init prevails over Rcvr.
type ProbVictRow struct {
	Est, Init, Rcvr int
	Prob            float64
}

// ThirdPartyRow is Est's estimate of how third party N weighs a contest
// between Init and Rcvr.
type ThirdPartyRow struct {
	Est, Init, N, Rcvr int
	Prob, UtilV, UtilL float64
}

// BargainRow summarizes one bargain and how each party's election went.
type BargainRow struct {
	ID, Init, Rcvr int
	Value          float64
	InitProb       float64
	InitSelected   bool
	RcvrProb       float64
	RcvrSelected   bool
}

// BargainCoordRow is one dimension of a bargain's terms.
type BargainCoordRow struct {
	Bargain, Dim     int
	InitPos, RcvrPos float64
}

// BargainUtilRow is Actor's utility for the state a bargain would produce.
type BargainUtilRow struct {
	Bargain, Actor int
	Util           float64
}

// TurnRecord is everything recorded about one state and the bargaining that
// followed it.
type TurnRecord struct {
	RunID    string
	Scenario string
	Turn     int

	Positions     []PositionRow
	PosUtils      []PosUtilRow
	PosVotes      []PosVoteRow
	PosProbs      []PosProbRow
	PosEquivs     []PosEquivRow
	Challenges    []UtilChlgRow
	ProbVicts     []ProbVictRow
	ThirdParties  []ThirdPartyRow
	Bargains      []BargainRow
	BargainCoords []BargainCoordRow
	BargainUtils  []BargainUtilRow
}

// NumRows is the total row count across all record sets.
func (r *TurnRecord) NumRows() int {
	return len(r.Positions) + len(r.PosUtils) + len(r.PosVotes) + len(r.PosProbs) +
		len(r.PosEquivs) + len(r.Challenges) + len(r.ProbVicts) + len(r.ThirdParties) +
		len(r.Bargains) + len(r.BargainCoords) + len(r.BargainUtils)
}

// BuildTurnRecord captures state s, whose utilities must be set, and the
// bargaining recorded in next's transition. next is nil for the final state.
func BuildTurnRecord(s *State, next *State) *TurnRecord {
	m := s.model
	na, nd := m.NumActors(), m.NumDims()
	rec := &TurnRecord{RunID: m.RunID.String(), Scenario: m.Scenario, Turn: s.Turn}

	for i, p := range s.positions {
		for d := 0; d < nd; d++ {
			rec.Positions = append(rec.Positions, PositionRow{Actor: i, Dim: d, Coord: p[d]})
		}
		rec.PosEquivs = append(rec.PosEquivs, PosEquivRow{Pos: i, Eqv: s.reprNdx(i)})
	}

	for h := 0; h < na; h++ {
		u := s.AUtil(h)
		for i := 0; i < na; i++ {
			for j := 0; j < na; j++ {
				rec.PosUtils = append(rec.PosUtils, PosUtilRow{Est: h, Actor: i, Pos: j, Util: u.At(i, j)})
			}
		}
	}

	if m.Record.Votes {
		for k, ak := range m.Actors {
			u := s.AUtil(k)
			for i := 0; i < na; i++ {
				for j := 0; j < na; j++ {
					if i == j {
						continue
					}
					v := voting.Vote(m.Params.VotingRule, ak.Capability, u.At(k, i), u.At(k, j))
					rec.PosVotes = append(rec.PosVotes, PosVoteRow{Est: k, Voter: k, PosI: i, PosJ: j, Vote: v})
				}
			}
		}
	}

	for h := -1; h < na; h++ {
		pdt, unq := s.PDist(h)
		for i := 0; i < na; i++ {
			rec.PosProbs = append(rec.PosProbs, PosProbRow{Est: h, Actor: i, Prob: s.PosProb(i, unq, pdt)})
		}
	}

	if next == nil || next.Transition == nil {
		return rec
	}
	tr := next.Transition

	for _, c := range tr.Challenges {
		for _, a := range c.Assessments {
			rec.Challenges = append(rec.Challenges, UtilChlgRow{
				Est: a.Est, Aff: a.Aff, Init: a.Init, Rcvr: a.Rcvr,
				USQ: a.USQ, UVict: a.UVict, UCntst: a.UCntst, UChlg: a.UChlg,
			})
			rec.ProbVicts = append(rec.ProbVicts, ProbVictRow{Est: a.Est, Init: a.Init, Rcvr: a.Rcvr, Prob: a.Prob})
			if m.Record.ThirdParties {
				for _, tp := range a.ThirdParties {
					rec.ThirdParties = append(rec.ThirdParties, ThirdPartyRow{
						Est: a.Est, Init: a.Init, N: tp.N, Rcvr: a.Rcvr,
						Prob: tp.Prob, UtilV: tp.UtilV, UtilL: tp.UtilL,
					})
				}
			}
		}
	}

	for id, b := range tr.Bargains {
		init, rcvr := int(b.Init.ID), int(b.Rcvr.ID)
		row := BargainRow{ID: id, Init: init, Rcvr: rcvr, Value: tr.Values[id]}
		row.InitProb, row.InitSelected = tr.ProbOf(init, id)
		row.RcvrProb, row.RcvrSelected = tr.ProbOf(rcvr, id)
		rec.Bargains = append(rec.Bargains, row)
		for d := 0; d < nd; d++ {
			rec.BargainCoords = append(rec.BargainCoords, BargainCoordRow{
				Bargain: id, Dim: d, InitPos: b.PosInit[d], RcvrPos: b.PosRcvr[d],
			})
		}
		for a := 0; a < na; a++ {
			rec.BargainUtils = append(rec.BargainUtils, BargainUtilRow{Bargain: id, Actor: a, Util: tr.Utils[id][a]})
		}
	}
	return rec
}

// MemoryRecorder keeps every record in memory.
type MemoryRecorder struct {
	mu        sync.Mutex
	Scenarios []string
	Turns     []*TurnRecord
}

func (r *MemoryRecorder) RecordScenario(m *Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Scenarios = append(r.Scenarios, m.RunID.String())
	return nil
}

func (r *MemoryRecorder) RecordTurn(rec *TurnRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Turns = append(r.Turns, rec)
	return nil
}
