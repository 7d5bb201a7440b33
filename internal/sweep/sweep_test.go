package sweep

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/talgya/smpsim/internal/engine"
	"github.com/talgya/smpsim/internal/scenario"
	"github.com/talgya/smpsim/internal/voting"
)

func TestParse(t *testing.T) {
	tests := []struct {
		spec string
		want Axis
	}{
		{"VotingRule=(Prop,Cubic)", Axis{"VotingRule", []string{"Prop", "Cubic"}}},
		{"votingrule = prop, cubic, PROP", Axis{"votingrule", []string{"Prop", "Cubic"}}},
		{"BigRRange=(Min)", Axis{"BigRRange", []string{"Min"}}},
		{"PCEModel=Conditional,MarkovUniform,", Axis{"PCEModel", []string{"Conditional", "MarkovUniform"}}},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := Parse(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"VotingRule", "Colour=(Red)", "VotingRule=(Plurality)", "VotingRule=()"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestExpand(t *testing.T) {
	base := engine.DefaultParams()
	axes := []Axis{
		{"VotingRule", []string{"Prop", "Cubic"}},
		{"BigRAdjust", []string{"None", "Half", "Full"}},
	}
	vs, err := Expand(base, axes)
	require.NoError(t, err)
	require.Len(t, vs, 6)

	assert.Equal(t, "VotingRule=Prop BigRAdjust=None", vs[0].Label)
	assert.Equal(t, "VotingRule=Cubic BigRAdjust=Full", vs[5].Label)
	assert.Equal(t, voting.Cubic, vs[3].Params.VotingRule)
	assert.Equal(t, engine.AdjustNone, vs[3].Params.BigRAdjust)
	for i, v := range vs {
		assert.Equal(t, i, v.Index)
		assert.Equal(t, base.PCEModel, v.Params.PCEModel)
	}
	assert.Equal(t, voting.Proportional, base.VotingRule)

	vs, err = Expand(base, nil)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "base", vs[0].Label)
	assert.Equal(t, base, vs[0].Params)

	_, err = Expand(base, []Axis{{"Nope", []string{"x"}}})
	assert.Error(t, err)
}

func builder(seed int64) BuildFunc {
	sc := scenario.Random(rand.New(rand.NewSource(seed)), 5, 2, scenario.Options{})
	return func(v Variant) (*engine.Model, error) {
		m, err := sc.Model(rand.New(rand.NewSource(seed)))
		if err != nil {
			return nil, err
		}
		m.Workers = 1
		m.Stop = engine.Quiescence(5, engine.DefaultQuiescenceFactor)
		return m, nil
	}
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	axes := []Axis{{"VotingRule", []string{"Prop", "Cubic", "Binary"}}}
	vs, err := Expand(engine.DefaultParams(), axes)
	require.NoError(t, err)

	results, err := Run(context.Background(), vs, builder(4), 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, vs[i].Label, r.Variant.Label)
		assert.NotEmpty(t, r.RunID)
		assert.GreaterOrEqual(t, r.Turns, 1)
		assert.LessOrEqual(t, r.Turns, 5)
		require.Len(t, r.Final, 5)
		require.Len(t, r.Probs, 5)
		for _, p := range r.Probs {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0+1e-9)
		}
	}
	assert.NotEqual(t, results[0].RunID, results[1].RunID)

	again, err := Run(context.Background(), vs, builder(4), 0)
	require.NoError(t, err)
	for i := range results {
		assert.Equal(t, results[i].Final, again[i].Final)
		assert.Equal(t, results[i].Turns, again[i].Turns)
	}
}

func TestRunBuildError(t *testing.T) {
	defer goleak.VerifyNone(t)

	vs, err := Expand(engine.DefaultParams(), nil)
	require.NoError(t, err)
	boom := errors.New("boom")
	_, err = Run(context.Background(), vs, func(Variant) (*engine.Model, error) { return nil, boom }, 1)
	assert.ErrorIs(t, err, boom)
}
