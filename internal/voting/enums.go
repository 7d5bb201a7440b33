package voting

import "github.com/talgya/smpsim/internal/enum"

// Rule converts a voter's utility difference between two options into a vote.
type Rule uint8

const (
	Binary Rule = iota
	PropBin
	Proportional
	PropCbc
	Cubic
	ASymProsp
)

var ruleNames = []string{"Binary", "PropBin", "Prop", "PropCbc", "Cubic", "ASymProsp"}

// RuleNames lists the accepted names of Rule values.
func RuleNames() []string { return append([]string(nil), ruleNames...) }

func (r Rule) String() string { return enum.String(ruleNames, r) }

func (r Rule) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Rule) UnmarshalText(b []byte) error {
	return enum.Parse(ruleNames, "voting rule", string(b), r)
}

// VictoryModel maps two coalition strengths to a probability of victory.
type VictoryModel uint8

const (
	Linear VictoryModel = iota
	Square
	Quartic
	Octic
	BinaryVictory
)

var victoryNames = []string{"Linear", "Square", "Quartic", "Octic", "Binary"}

// VictoryModelNames lists the accepted names of VictoryModel values.
func VictoryModelNames() []string { return append([]string(nil), victoryNames...) }

func (m VictoryModel) String() string { return enum.String(victoryNames, m) }

func (m VictoryModel) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *VictoryModel) UnmarshalText(b []byte) error {
	return enum.Parse(victoryNames, "victory model", string(b), m)
}

// PCEModel selects how pairwise victory probabilities become a probabilistic
// Condorcet election over all options.
type PCEModel uint8

const (
	Conditional PCEModel = iota
	MarkovIncentive
	MarkovUniform
)

var pceNames = []string{"Conditional", "MarkovIncentive", "MarkovUniform"}

func PCEModelNames() []string { return append([]string(nil), pceNames...) }

func (m PCEModel) String() string { return enum.String(pceNames, m) }

func (m PCEModel) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *PCEModel) UnmarshalText(b []byte) error {
	return enum.Parse(pceNames, "PCE model", string(b), m)
}

// ThirdPartyCommit is how firmly a third party is bound by the outcome of a
// contest it joined.
type ThirdPartyCommit uint8

const (
	NoCommit ThirdPartyCommit = iota
	SemiCommit
	FullCommit
)

var commitNames = []string{"NoCommit", "SemiCommit", "FullCommit"}

func CommitNames() []string { return append([]string(nil), commitNames...) }

func (c ThirdPartyCommit) String() string { return enum.String(commitNames, c) }

func (c ThirdPartyCommit) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ThirdPartyCommit) UnmarshalText(b []byte) error {
	return enum.Parse(commitNames, "third party commitment", string(b), c)
}
