package voting

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Three voters at 0.1, 0.5 and 0.9 on one dimension, risk neutral.
func lineUtils() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1.0, 0.6, 0.2,
		0.6, 1.0, 0.6,
		0.2, 0.6, 1.0,
	})
}

func TestVote(t *testing.T) {
	tests := []struct {
		rule   Rule
		u1, u2 float64
		want   float64
	}{
		{Binary, 0.7, 0.2, 10},
		{Binary, 0.2, 0.7, -10},
		{Binary, 0.5, 0.5, 0},
		{Proportional, 0.7, 0.2, 5},
		{PropBin, 0.7, 0.2, 0.8*5 + 0.2*10},
		{Cubic, 0.7, 0.2, 10 * 0.125},
		{PropCbc, 0.7, 0.2, (5 + 1.25) / 2},
		{ASymProsp, 0.7, 0.2, 10.0 / 3},
		{ASymProsp, 0.2, 0.7, -5},
	}
	for _, tt := range tests {
		t.Run(tt.rule.String(), func(t *testing.T) {
			assert.InDelta(t, tt.want, Vote(tt.rule, 10, tt.u1, tt.u2), 1e-12)
		})
	}
}

func TestVoteAntisymmetricSign(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for r := Binary; r <= ASymProsp; r++ {
		for i := 0; i < 50; i++ {
			u1, u2 := rng.Float64(), rng.Float64()
			a := Vote(r, 3, u1, u2)
			b := Vote(r, 3, u2, u1)
			assert.True(t, a*b <= 0, "%v: %v and %v share a sign", r, a, b)
		}
	}
}

func TestVictoryProb(t *testing.T) {
	assert.InDelta(t, 2.0/3, VictoryProb(Linear, 2, 1), 1e-12)
	assert.InDelta(t, 4.0/5, VictoryProb(Square, 2, 1), 1e-12)
	assert.InDelta(t, 16.0/17, VictoryProb(Quartic, 2, 1), 1e-12)
	assert.InDelta(t, 256.0/257, VictoryProb(Octic, 2, 1), 1e-12)
	assert.Equal(t, 1.0, VictoryProb(BinaryVictory, 2, 1))
	assert.Equal(t, 0.0, VictoryProb(BinaryVictory, 1, 2))
	assert.Equal(t, 0.5, VictoryProb(BinaryVictory, 1, 1.001))
	assert.Equal(t, 0.5, VictoryProb(Octic, 0, 0))
	assert.InDelta(t, 1.0, VictoryProb(Octic, 1e200, 1e100), 1e-12)
	assert.Panics(t, func() { VictoryProb(Linear, -1, 1) })
}

func TestCoalitions(t *testing.T) {
	c := Coalitions(Proportional, []float64{100, 100, 100}, lineUtils())
	want := mat.NewDense(3, 3, []float64{
		0, 40, 80,
		80, 0, 80,
		80, 40, 0,
	})
	assert.True(t, mat.EqualApprox(want, c, 1e-9), "got %v", mat.Formatted(c))
}

func TestScalarPCEConditional(t *testing.T) {
	p := ScalarPCE([]float64{100, 100, 100}, lineUtils(), Proportional, Linear, Conditional)
	assert.InDeltaSlice(t, []float64{3.0 / 14, 8.0 / 14, 3.0 / 14}, p, 1e-12)
}

func TestScalarPCESingleOption(t *testing.T) {
	u := mat.NewDense(2, 1, []float64{1, 1})
	assert.Equal(t, []float64{1}, ScalarPCE([]float64{1, 1}, u, Proportional, Linear, Conditional))
}

func TestScalarPCESumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		na, no := 2+rng.Intn(8), 2+rng.Intn(8)
		w := make([]float64, na)
		for i := range w {
			w[i] = 1 + 99*rng.Float64()
		}
		u := mat.NewDense(na, no, nil)
		for i := 0; i < na; i++ {
			for j := 0; j < no; j++ {
				u.Set(i, j, rng.Float64())
			}
		}
		for r := Binary; r <= ASymProsp; r++ {
			for vm := Linear; vm <= BinaryVictory; vm++ {
				for pm := Conditional; pm <= MarkovUniform; pm++ {
					p := ScalarPCE(w, u, r, vm, pm)
					require.Len(t, p, no)
					assert.InDelta(t, 1.0, floats.Sum(p), 1e-8)
					for _, x := range p {
						assert.GreaterOrEqual(t, x, 0.0)
					}
				}
			}
		}
	}
}

func TestScalarPCEShapeMismatch(t *testing.T) {
	assert.Panics(t, func() {
		ScalarPCE([]float64{1, 1}, lineUtils(), Proportional, Linear, Conditional)
	})
}

func TestMarkovFavorsStrongOption(t *testing.T) {
	c := Coalitions(Proportional, []float64{100, 100, 100}, lineUtils())
	pv := VictoryMatrix(Linear, c)
	for _, p := range [][]float64{MarkovUniformPCE(pv), MarkovIncentivePCE(c, pv)} {
		assert.InDelta(t, 1.0, floats.Sum(p), 1e-12)
		assert.Equal(t, 1, floats.MaxIdx(p))
		assert.InDelta(t, p[0], p[2], 1e-9)
	}
}

func TestProbCECondorcetCycle(t *testing.T) {
	pv := mat.NewDense(3, 3, []float64{
		0.5, 1, 0,
		0, 0.5, 1,
		1, 0, 0.5,
	})
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, ProbCE(pv), 1e-12)
}

func TestVProbLittle(t *testing.T) {
	// n's vote of magnitude 36 joins i's 52 against j's 34.
	assert.InDelta(t, 88.0/122, VProbLittle(Proportional, 100, 0.12, 0.48, 52, 34), 1e-12)
	assert.Equal(t, 0.5, VProbLittle(Proportional, 100, 0.5, 0.5, 0, 0))
}

func TestThirdPartyVoteSU(t *testing.T) {
	// Without commitment n simply follows its preference between i and j.
	v := ThirdPartyVoteSU(10, Proportional, NoCommit, 0.6, 0.6, 0.9, 0.3, 1)
	assert.Greater(t, v, 0.0)
	v = ThirdPartyVoteSU(10, Proportional, NoCommit, 0.6, 0.6, 0.3, 0.9, 1)
	assert.Less(t, v, 0.0)

	// Fully committed, indifferent between i and j: no reason to take sides.
	assert.InDelta(t, 0.0, ThirdPartyVoteSU(10, Proportional, FullCommit, 0.7, 0.7, 0.5, 0.5, 1), 1e-12)

	iwi, jwi, jwj, iwj := ThirdPartyOutcomes(SemiCommit, 0.12, 0.48, 1)
	assert.InDelta(t, (0.24+1)/3, iwi, 1e-12)
	assert.InDelta(t, 0.48, jwi, 1e-12)
	assert.InDelta(t, (0.96+1)/3, jwj, 1e-12)
	assert.InDelta(t, 0.12, iwj, 1e-12)
}

func TestEnumText(t *testing.T) {
	var r Rule
	require.NoError(t, r.UnmarshalText([]byte("cubic")))
	assert.Equal(t, Cubic, r)
	b, err := Proportional.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Prop", string(b))

	var vm VictoryModel
	require.NoError(t, vm.UnmarshalText([]byte("Binary")))
	assert.Equal(t, BinaryVictory, vm)

	var c ThirdPartyCommit
	assert.Error(t, c.UnmarshalText([]byte("Sometimes")))
}
