// Package voting turns utilities into votes, votes into coalition strengths,
// and coalition strengths into probabilities of victory over a set of
// options.
package voting

import (
	"fmt"
	"math"
)

// binaryMargin is the relative difference in strength below which the Binary
// victory model calls a contest even.
const binaryMargin = 0.01

// Vote is the signed vote of a voter with weight w between two options it
// values at u1 and u2. Positive favors the first option.
func Vote(r Rule, w, u1, u2 float64) float64 {
	du := u1 - u2
	prop := w * du
	bin := w * sign(du)
	cubic := w * du * du * du
	switch r {
	case Binary:
		return bin
	case PropBin:
		return 0.8*prop + 0.2*bin
	case Proportional:
		return prop
	case PropCbc:
		return (prop + cubic) / 2
	case Cubic:
		return cubic
	case ASymProsp:
		if du < 0 {
			return prop
		}
		return 2 * prop / 3
	}
	panic(fmt.Sprintf("voting: unknown rule %d", r))
}

// VictoryProb is the probability that a coalition of strength c1 defeats one
// of strength c2. Two empty coalitions tie.
func VictoryProb(m VictoryModel, c1, c2 float64) float64 {
	if c1 < 0 || c2 < 0 {
		panic(fmt.Sprintf("voting: negative coalition strength %v, %v", c1, c2))
	}
	if c1+c2 <= 0 {
		return 0.5
	}
	var n float64
	switch m {
	case Linear:
		n = 1
	case Square:
		n = 2
	case Quartic:
		n = 4
	case Octic:
		n = 8
	case BinaryVictory:
		switch d := c1 - c2; {
		case d > binaryMargin*(c1+c2):
			return 1
		case -d > binaryMargin*(c1+c2):
			return 0
		default:
			return 0.5
		}
	default:
		panic(fmt.Sprintf("voting: unknown victory model %d", m))
	}
	// Normalize by the larger side so high powers stay finite.
	top := math.Max(c1, c2)
	a := math.Pow(c1/top, n)
	b := math.Pow(c2/top, n)
	return a / (a + b)
}

// VProbLittle is the probability that option i beats option j once third
// party n, with weight w and utilities uni and unj for the two options, adds
// the magnitude of its vote to i's side. cij and cji are the strengths the
// two sides already have.
func VProbLittle(r Rule, w, uni, unj, cij, cji float64) float64 {
	v := math.Abs(Vote(r, w, uni, unj))
	num := cij + v
	den := num + cji
	if den <= 0 {
		return 0.5
	}
	return num / den
}

// ThirdPartyOutcomes returns third party n's utility for the four ways a
// contest between i and j can end for it: it joined i and i won, it joined i
// and j won, it joined j and j won, it joined j and i won. uni, unj and unn
// are n's utilities for the positions of i, j and n itself. Each outcome is
// the mean of n's utility over the three positions left standing, so the
// values share the scale of a single utility.
func ThirdPartyOutcomes(c ThirdPartyCommit, uni, unj, unn float64) (iWinJoinedI, jWinJoinedI, jWinJoinedJ, iWinJoinedJ float64) {
	switch c {
	case NoCommit:
		// n keeps its own position whatever happens.
		iWinJoinedI = 2*uni + unn
		jWinJoinedI = 2*unj + unn
		jWinJoinedJ = 2*unj + unn
		iWinJoinedJ = 2*uni + unn
	case SemiCommit:
		// n keeps its position if its side wins, and adopts the winner's if not.
		iWinJoinedI = 2*uni + unn
		jWinJoinedI = 3 * unj
		jWinJoinedJ = 2*unj + unn
		iWinJoinedJ = 3 * uni
	case FullCommit:
		// n adopts the winner's position either way.
		iWinJoinedI = 3 * uni
		jWinJoinedI = 3 * unj
		jWinJoinedJ = 3 * unj
		iWinJoinedJ = 3 * uni
	default:
		panic(fmt.Sprintf("voting: unknown third party commitment %d", c))
	}
	return iWinJoinedI / 3, jWinJoinedI / 3, jWinJoinedJ / 3, iWinJoinedJ / 3
}

// ThirdPartyVoteSU is the vote of third party n between joining i and joining
// j, given pin (the chance i wins with n's help) and pjn (the chance j wins
// with n's help). Positive favors i.
func ThirdPartyVoteSU(w float64, r Rule, c ThirdPartyCommit, pin, pjn, uni, unj, unn float64) float64 {
	iwi, jwi, jwj, iwj := ThirdPartyOutcomes(c, uni, unj, unn)
	joinI := pin*iwi + (1-pin)*jwi
	joinJ := pjn*jwj + (1-pjn)*iwj
	return Vote(r, w, joinI, joinJ)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
