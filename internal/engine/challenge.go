package engine

import (
	"fmt"

	"github.com/talgya/smpsim/internal/voting"
)

const (
	// minSig is the smallest expected gain that makes a challenge worth
	// considering. Gains are typically 0.01 to 0.5.
	minSig = 1e-5
	// minCltn seeds both sides of a contest so neither coalition is empty.
	minCltn = 1e-10
)

// Assessment is observer h's estimate of what a challenge by i against j
// means for actor k.
type Assessment struct {
	Est, Aff, Init, Rcvr int

	Prob   float64 // chance i prevails
	USQ    float64 // utility to k of the status quo positions of i and j
	UVict  float64 // utility to k of i prevailing
	UCntst float64 // expected utility to k of the contest
	UChlg  float64 // expected utility to k of the challenge

	ThirdParties []ThirdParty
}

// Gain is the expected change in k's utility from the challenge.
func (a *Assessment) Gain() float64 { return a.UChlg - a.USQ }

// ThirdParty is h's estimate of how an uninvolved actor n sizes up the
// contest between i and j.
type ThirdParty struct {
	N     int
	Prob  float64 // chance i prevails with n's help
	UtilV float64 // utility to n of winning alongside i
	UtilL float64 // utility to n of losing alongside j
	Vote  float64 // n's vote, positive for i
}

// Challenge is the best target an actor found, if any.
type Challenge struct {
	Init   int
	Target int // -1 when no challenge is worth making
	Prob   float64
	Gain   float64

	// Assessments holds the evaluation of every candidate target when the
	// model records its turns.
	Assessments []Assessment
}

// ProbEduChlg is h's estimate of the probability that i prevails over j and
// of the expected change in utility to k from i challenging j, compared to
// the status quo. SetAUtil must have run.
func (s *State) ProbEduChlg(h, k, i, j int) (float64, float64) {
	a := s.assessChallenge(h, k, i, j, false)
	return a.Prob, a.Gain()
}

func (s *State) assessChallenge(h, k, i, j int, detail bool) Assessment {
	m := s.model
	p := m.Params
	u := s.AUtil(h)

	uii, uij := u.At(i, i), u.At(i, j)
	uji, ujj := u.At(j, i), u.At(j, j)

	a := Assessment{Est: h, Aff: k, Init: i, Rcvr: j}
	a.USQ = u.At(k, i) + u.At(k, j)
	// If i wins, j adopts i's position, and vice versa.
	a.UVict = 2 * u.At(k, i)
	uLoss := 2 * u.At(k, j)

	ai, aj := m.Actors[i], m.Actors[j]
	sj := aj.TotalSalience()
	if sj <= 0 || sj > 1+probTol {
		panic(fmt.Sprintf("engine: actor %d has total salience %v", j, sj))
	}

	chij := minCltn + voting.Vote(p.VotingRule, ai.Weight(), uii, uij)
	chji := minCltn - voting.Vote(p.VotingRule, aj.Weight(), uji, ujj)
	if chij <= 0 || chji <= 0 {
		panic(fmt.Sprintf("engine: contest %d:%d has an actor voting against itself", i, j))
	}

	if detail {
		a.ThirdParties = make([]ThirdParty, 0, m.NumActors()-2)
	}
	for n, an := range m.Actors {
		if n == i || n == j {
			continue
		}
		wn := an.Weight()
		uni, unj, unn := u.At(n, i), u.At(n, j), u.At(n, n)

		pin := voting.VProbLittle(p.VotingRule, wn, uni, unj, chij, chji)
		pjn := 1 - pin
		vnij := voting.ThirdPartyVoteSU(wn, p.VotingRule, p.ThirdPartyCommit, pin, pjn, uni, unj, unn)
		if vnij > 0 {
			chij += vnij
		} else {
			chji -= vnij
		}

		if detail {
			iwi, _, _, iwj := voting.ThirdPartyOutcomes(p.ThirdPartyCommit, uni, unj, unn)
			a.ThirdParties = append(a.ThirdParties, ThirdParty{N: n, Prob: pin, UtilV: iwi, UtilL: iwj, Vote: vnij})
		}
	}

	a.Prob = voting.VictoryProb(p.VictoryModel, chij, chji)
	a.UCntst = a.Prob*a.UVict + (1-a.Prob)*uLoss
	// j only contests with the share of its attention the dimensions get.
	a.UChlg = (1-sj)*a.UVict + sj*a.UCntst
	return a
}

// BestChallenge scans every other actor as a target for i, in roster order,
// and returns the one with the largest expected gain to i in i's own eyes,
// the estimated chance of prevailing, and the gain. Gains at or below minSig
// do not count; ties go to the lower index. The target is -1 when nothing
// qualifies.
func (s *State) BestChallenge(i int) (int, float64, float64) {
	c := s.bestChallenge(i, false)
	return c.Target, c.Prob, c.Gain
}

func (s *State) bestChallenge(i int, detail bool) Challenge {
	c := Challenge{Init: i, Target: -1}
	for j := 0; j < s.model.NumActors(); j++ {
		if j == i {
			continue
		}
		a := s.assessChallenge(i, i, i, j, detail)
		if detail {
			c.Assessments = append(c.Assessments, a)
		}
		if g := a.Gain(); g > minSig && g > c.Gain {
			c.Target = j
			c.Prob = a.Prob
			c.Gain = g
		}
	}
	return c
}
