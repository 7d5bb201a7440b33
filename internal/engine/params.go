package engine

import (
	"fmt"
	"strings"

	"github.com/talgya/smpsim/internal/actors"
	"github.com/talgya/smpsim/internal/enum"
	"github.com/talgya/smpsim/internal/voting"
)

// BigRAdjust is how far an observer h moves from its own risk attitude
// toward actor i's true one when estimating i's utilities.
type BigRAdjust uint8

const (
	AdjustNone BigRAdjust = iota
	AdjustOneThird
	AdjustHalf
	AdjustTwoThirds
	AdjustFull
)

var bigRAdjustNames = []string{"None", "OneThird", "Half", "TwoThirds", "Full"}

func (a BigRAdjust) String() string { return enum.String(bigRAdjustNames, a) }

func (a BigRAdjust) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *BigRAdjust) UnmarshalText(b []byte) error {
	return enum.Parse(bigRAdjustNames, "risk adjustment", string(b), a)
}

// Fraction is the weight on i's true attitude in h's estimate.
func (a BigRAdjust) Fraction() float64 {
	switch a {
	case AdjustNone:
		return 0
	case AdjustOneThird:
		return 1.0 / 3
	case AdjustHalf:
		return 0.5
	case AdjustTwoThirds:
		return 2.0 / 3
	case AdjustFull:
		return 1
	}
	panic(fmt.Sprintf("engine: unknown risk adjustment %d", a))
}

// BigRRange is the interval inferred risk attitudes are mapped onto.
type BigRRange uint8

const (
	RangeMin BigRRange = iota // [0, +1]
	RangeMid                  // [-1/2, +1]
	RangeMax                  // [-1, +1]
)

var bigRRangeNames = []string{"Min", "Mid", "Max"}

func (r BigRRange) String() string { return enum.String(bigRRangeNames, r) }

func (r BigRRange) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *BigRRange) UnmarshalText(b []byte) error {
	return enum.Parse(bigRRangeNames, "risk range", string(b), r)
}

// StateTransitions selects how each actor picks among its bargains.
type StateTransitions uint8

const (
	Deterministic StateTransitions = iota
	Stochastic
)

var transitionNames = []string{"Deterministic", "Stochastic"}

func (t StateTransitions) String() string { return enum.String(transitionNames, t) }

func (t StateTransitions) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *StateTransitions) UnmarshalText(b []byte) error {
	return enum.Parse(transitionNames, "state transition", string(b), t)
}

// BargainModel selects whose estimate of the contest outcome drives bargain
// interpolation.
type BargainModel uint8

const (
	InitOnlyInterp BargainModel = iota // the initiator's estimate for both sides
	InitRcvrInterp                     // each side's own estimate
	PWCompInterp                       // power-weighted blend of both estimates
)

var bargainModelNames = []string{"InitOnlyInterp", "InitRcvrInterp", "PWCompInterp"}

func (b BargainModel) String() string { return enum.String(bargainModelNames, b) }

func (b BargainModel) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *BargainModel) UnmarshalText(t []byte) error {
	return enum.Parse(bargainModelNames, "bargain model", string(t), b)
}

// Params are the sub-model choices of a run.
type Params struct {
	VictoryModel     voting.VictoryModel     `yaml:"victory_prob_model" json:"victory_prob_model"`
	PCEModel         voting.PCEModel         `yaml:"pce_model" json:"pce_model"`
	Transitions      StateTransitions        `yaml:"state_transitions" json:"state_transitions"`
	VotingRule       voting.Rule             `yaml:"voting_rule" json:"voting_rule"`
	BigRAdjust       BigRAdjust              `yaml:"big_r_adjust" json:"big_r_adjust"`
	BigRRange        BigRRange               `yaml:"big_r_range" json:"big_r_range"`
	ThirdPartyCommit voting.ThirdPartyCommit `yaml:"third_party_commit" json:"third_party_commit"`
	InterVecBrgn     actors.Interpolation    `yaml:"inter_vec_brgn" json:"inter_vec_brgn"`
	BargainModel     BargainModel            `yaml:"bargain_model" json:"bargain_model"`
}

// DefaultParams returns the standard model: proportional voting, linear
// victory odds, conditional elections, half risk adjustment on the mid range,
// semi-committed third parties and quadratic interpolation by the initiator.
func DefaultParams() Params {
	return Params{
		VictoryModel:     voting.Linear,
		PCEModel:         voting.Conditional,
		Transitions:      Deterministic,
		VotingRule:       voting.Proportional,
		BigRAdjust:       AdjustHalf,
		BigRRange:        RangeMid,
		ThirdPartyCommit: voting.SemiCommit,
		InterVecBrgn:     actors.S2P2,
		BargainModel:     InitOnlyInterp,
	}
}

// ParamNames lists the names accepted by Set, in display order.
func ParamNames() []string {
	return []string{
		"VictoryProbModel", "PCEModel", "StateTransitions", "VotingRule", "BigRAdjust",
		"BigRRange", "ThirdPartyCommit", "InterVecBrgn", "BargnModel",
	}
}

// ParamValues lists the values Set accepts for the named parameter.
func ParamValues(name string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "victoryprobmodel":
		return voting.VictoryModelNames(), nil
	case "pcemodel":
		return voting.PCEModelNames(), nil
	case "statetransitions":
		return append([]string(nil), transitionNames...), nil
	case "votingrule":
		return voting.RuleNames(), nil
	case "bigradjust":
		return append([]string(nil), bigRAdjustNames...), nil
	case "bigrrange":
		return append([]string(nil), bigRRangeNames...), nil
	case "thirdpartycommit":
		return voting.CommitNames(), nil
	case "intervecbrgn":
		return actors.InterpolationNames(), nil
	case "bargnmodel", "bargainmodel":
		return append([]string(nil), bargainModelNames...), nil
	}
	return nil, fmt.Errorf("unknown model parameter %q", name)
}

// Set assigns one parameter by name from its text value.
func (p *Params) Set(name, value string) error {
	b := []byte(value)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "victoryprobmodel":
		return p.VictoryModel.UnmarshalText(b)
	case "pcemodel":
		return p.PCEModel.UnmarshalText(b)
	case "statetransitions":
		return p.Transitions.UnmarshalText(b)
	case "votingrule":
		return p.VotingRule.UnmarshalText(b)
	case "bigradjust":
		return p.BigRAdjust.UnmarshalText(b)
	case "bigrrange":
		return p.BigRRange.UnmarshalText(b)
	case "thirdpartycommit":
		return p.ThirdPartyCommit.UnmarshalText(b)
	case "intervecbrgn":
		return p.InterVecBrgn.UnmarshalText(b)
	case "bargnmodel", "bargainmodel":
		return p.BargainModel.UnmarshalText(b)
	}
	return fmt.Errorf("unknown model parameter %q", name)
}

// Get returns one parameter's value by name, as Set accepts it.
func (p Params) Get(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "victoryprobmodel":
		return p.VictoryModel.String(), nil
	case "pcemodel":
		return p.PCEModel.String(), nil
	case "statetransitions":
		return p.Transitions.String(), nil
	case "votingrule":
		return p.VotingRule.String(), nil
	case "bigradjust":
		return p.BigRAdjust.String(), nil
	case "bigrrange":
		return p.BigRRange.String(), nil
	case "thirdpartycommit":
		return p.ThirdPartyCommit.String(), nil
	case "intervecbrgn":
		return p.InterVecBrgn.String(), nil
	case "bargnmodel", "bargainmodel":
		return p.BargainModel.String(), nil
	}
	return "", fmt.Errorf("unknown model parameter %q", name)
}

// Validate reports the first parameter holding a value outside its range.
func (p Params) Validate() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"VictoryProbModel", p.VictoryModel <= voting.BinaryVictory},
		{"PCEModel", p.PCEModel <= voting.MarkovUniform},
		{"StateTransitions", p.Transitions <= Stochastic},
		{"VotingRule", p.VotingRule <= voting.ASymProsp},
		{"BigRAdjust", p.BigRAdjust <= AdjustFull},
		{"BigRRange", p.BigRRange <= RangeMax},
		{"ThirdPartyCommit", p.ThirdPartyCommit <= voting.FullCommit},
		{"InterVecBrgn", p.InterVecBrgn <= actors.S2PMax},
		{"BargnModel", p.BargainModel <= PWCompInterp},
	}
	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("model parameter %s out of range", c.name)
		}
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s/%s/%s/%s",
		p.VictoryModel, p.PCEModel, p.Transitions, p.VotingRule, p.BigRAdjust,
		p.BigRRange, p.ThirdPartyCommit, p.InterVecBrgn, p.BargainModel)
}
