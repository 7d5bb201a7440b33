package voting

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	sumTol       = 1e-8
	markovTol    = 1e-12
	markovMaxItr = 10000
)

// Coalitions returns the strength of the coalition favoring each option over
// each other: c(i,j) is the sum over voters k of k's positive votes for option
// i against option j. u holds one row per voter and one column per option;
// w holds the voter weights.
func Coalitions(r Rule, w []float64, u mat.Matrix) *mat.Dense {
	na, no := u.Dims()
	if len(w) != na {
		panic(fmt.Sprintf("voting: %d weights for %d voters", len(w), na))
	}
	c := mat.NewDense(no, no, nil)
	for i := 0; i < no; i++ {
		for j := 0; j < i; j++ {
			var cij, cji float64
			for k := 0; k < na; k++ {
				v := Vote(r, w[k], u.At(k, i), u.At(k, j))
				if v > 0 {
					cij += v
				} else {
					cji -= v
				}
			}
			c.Set(i, j, cij)
			c.Set(j, i, cji)
		}
	}
	return c
}

// VictoryMatrix maps coalition strengths to pairwise victory probabilities.
// The diagonal is one half.
func VictoryMatrix(m VictoryModel, c mat.Matrix) *mat.Dense {
	n, _ := c.Dims()
	pv := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			pv.Set(i, j, VictoryProb(m, c.At(i, j), c.At(j, i)))
		}
	}
	return pv
}

// ProbCE is the conditional probabilistic Condorcet election: each option's
// chance is proportional to the product of its pairwise chances of beating
// every other option. If every option loses some contest outright the result
// is uniform.
func ProbCE(pv mat.Matrix) []float64 {
	n, _ := pv.Dims()
	logp := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				logp[i] += math.Log(pv.At(i, j))
			}
		}
	}
	top := floats.Max(logp)
	p := make([]float64, n)
	if math.IsInf(top, -1) {
		for i := range p {
			p[i] = 1 / float64(n)
		}
		return p
	}
	for i, l := range logp {
		p[i] = math.Exp(l - top)
	}
	floats.Scale(1/floats.Sum(p), p)
	return p
}

// MarkovUniformPCE is the stationary distribution of a chain in which the
// status quo option is challenged by an option chosen uniformly at random and
// replaced when the challenger wins.
func MarkovUniformPCE(pv mat.Matrix) []float64 {
	return markovPCE(pv, func(i, j int) float64 { return 1 })
}

// MarkovIncentivePCE is MarkovUniformPCE with the challenger chosen in
// proportion to the influence c(i,j) promoting it over the status quo.
func MarkovIncentivePCE(c, pv mat.Matrix) []float64 {
	return markovPCE(pv, c.At)
}

// markovPCE builds the transition matrix for challenger weights q(i,j) (the
// weight of i challenging status quo j) and finds its stationary distribution
// by power iteration on the lazy chain, which has the same fixed point and
// cannot oscillate.
func markovPCE(pv mat.Matrix, q func(i, j int) float64) []float64 {
	n, _ := pv.Dims()
	if n == 1 {
		return []float64{1}
	}
	// t(i,j) is the chance of moving from j to i.
	t := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		var total float64
		for i := 0; i < n; i++ {
			if i != j {
				total += q(i, j)
			}
		}
		stay := 1.0
		if total > 0 {
			for i := 0; i < n; i++ {
				if i == j {
					continue
				}
				move := q(i, j) / total * pv.At(i, j)
				t.Set(i, j, move/2)
				stay -= move
			}
		}
		t.Set(j, j, (1+stay)/2)
	}

	p := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		p.SetVec(i, 1/float64(n))
	}
	next := mat.NewVecDense(n, nil)
	for itr := 0; itr < markovMaxItr; itr++ {
		next.MulVec(t, p)
		var delta float64
		for i := 0; i < n; i++ {
			delta += math.Abs(next.AtVec(i) - p.AtVec(i))
		}
		p.CopyVec(next)
		if delta < markovTol {
			break
		}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = p.AtVec(i)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// ScalarPCE runs a full probabilistic Condorcet election: voters (rows of u,
// weighted by w) score the options (columns of u), coalitions form under rule
// r, the victory model vm gives pairwise probabilities, and pm turns them into
// one probability per option. The result sums to one.
func ScalarPCE(w []float64, u mat.Matrix, r Rule, vm VictoryModel, pm PCEModel) []float64 {
	na, no := u.Dims()
	if len(w) != na {
		panic(fmt.Sprintf("voting: %d weights for %d voters", len(w), na))
	}
	if no == 1 {
		return []float64{1}
	}
	c := Coalitions(r, w, u)
	pv := VictoryMatrix(vm, c)

	var p []float64
	switch pm {
	case Conditional:
		p = ProbCE(pv)
	case MarkovUniform:
		p = MarkovUniformPCE(pv)
	case MarkovIncentive:
		p = MarkovIncentivePCE(c, pv)
	default:
		panic(fmt.Sprintf("voting: unknown PCE model %d", pm))
	}

	if s := floats.Sum(p); math.Abs(s-1) > sumTol {
		panic(fmt.Sprintf("voting: election probabilities sum to %v", s))
	}
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("scalar PCE", "voters", na, "options", no, "rule", r, "victory", vm, "pce", pm,
			"probs", fmt.Sprintf("%.4f", p))
	}
	return p
}
