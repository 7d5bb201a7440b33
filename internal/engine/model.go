// Package engine runs the spatial bargaining game: it holds the actor roster
// and the history of states, and advances the game one turn at a time until a
// stop rule fires.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/smpsim/internal/actors"
)

// DefaultPosTol is the distance below which two positions count as the same.
const DefaultPosTol = 0.001

// StepFunc produces the state that follows s.
type StepFunc func(ctx context.Context, s *State) (*State, error)

// StopFunc decides, after turn has produced latest, whether the run is over.
type StopFunc func(turn int, latest *State) bool

// DecisionLog receives structured traces of bargaining decisions.
type DecisionLog interface {
	Log(entry map[string]any)
}

// RecordOptions enables the larger optional record sets.
type RecordOptions struct {
	Votes        bool // every actor's vote between every pair of positions
	ThirdParties bool // third-party assessments inside each challenge
}

// Model owns the roster, the issue space and the append-only history.
type Model struct {
	RunID    uuid.UUID
	Scenario string
	Desc     string

	Actors   []*actors.Actor
	DimNames []string
	PosTol   float64
	Params   Params
	Workers  int // worker pool size per turn, 0 for one per CPU

	History []*State

	Step StepFunc // StepBCN when nil
	Stop StopFunc

	Recorder  Recorder
	Record    RecordOptions
	Decisions DecisionLog

	// OnTurn is called after each new state joins the history.
	OnTurn func(turn int, s *State)

	rng *rand.Rand
}

// NewModel creates an empty model. rng drives every random choice the run
// makes.
func NewModel(scenario string, rng *rand.Rand) *Model {
	if rng == nil {
		panic("engine: model needs a random source")
	}
	return &Model{
		RunID:    uuid.New(),
		Scenario: scenario,
		PosTol:   DefaultPosTol,
		Params:   DefaultParams(),
		rng:      rng,
	}
}

// NumActors is the size of the roster.
func (m *Model) NumActors() int { return len(m.Actors) }

// NumDims is the number of policy dimensions.
func (m *Model) NumDims() int { return len(m.DimNames) }

// AddDim adds a named policy dimension. Dimensions must all be added before
// any actor.
func (m *Model) AddDim(name string) {
	if len(m.Actors) > 0 {
		panic("engine: dimensions added after actors")
	}
	m.DimNames = append(m.DimNames, name)
}

// AddActor appends a to the roster and assigns its ID.
func (m *Model) AddActor(a *actors.Actor) {
	if len(a.Salience) != m.NumDims() {
		panic(fmt.Sprintf("engine: actor %q has %d saliences for %d dimensions", a.Name, len(a.Salience), m.NumDims()))
	}
	if len(m.History) > 0 {
		panic("engine: actors added after the first state")
	}
	a.ID = actors.ID(len(m.Actors))
	m.Actors = append(m.Actors, a)
}

// ActorIndex returns a's position in the roster, or -1.
func (m *Model) ActorIndex(a *actors.Actor) int {
	for i, x := range m.Actors {
		if x == a {
			return i
		}
	}
	return -1
}

// AddState appends s to the history. s must hold a position for every actor.
func (m *Model) AddState(s *State) {
	if s.model != m {
		panic("engine: state belongs to another model")
	}
	if len(s.positions) != m.NumActors() {
		panic(fmt.Sprintf("engine: state has %d positions for %d actors", len(s.positions), m.NumActors()))
	}
	s.Turn = len(m.History)
	m.History = append(m.History, s)
}

// Latest is the most recent state.
func (m *Model) Latest() *State {
	if len(m.History) == 0 {
		return nil
	}
	return m.History[len(m.History)-1]
}

// StateDist is the total distance every actor moved between two states.
func (m *Model) StateDist(s1, s2 *State) float64 {
	var d float64
	for i := range s1.positions {
		d += s1.positions[i].Dist(s2.positions[i])
	}
	return d
}

func (m *Model) workers() int {
	if m.Workers > 0 {
		return m.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (m *Model) logDecision(entry map[string]any) {
	if m.Decisions != nil {
		m.Decisions.Log(entry)
	}
}

// Run advances the game from its single initial state until the stop rule
// fires or ctx is cancelled. Every state produced is appended to History,
// and recorded when a Recorder is set.
func (m *Model) Run(ctx context.Context) error {
	if len(m.History) != 1 {
		return fmt.Errorf("run needs exactly one initial state, have %d", len(m.History))
	}
	if m.NumActors() < 2 {
		return fmt.Errorf("run needs at least two actors, have %d", m.NumActors())
	}
	if m.Stop == nil {
		return errors.New("run has no stop rule")
	}
	if err := m.Params.Validate(); err != nil {
		return err
	}
	step := m.Step
	if step == nil {
		step = StepBCN
	}

	start := time.Now()
	slog.Info("model run started", "run", m.RunID, "scenario", m.Scenario,
		"actors", m.NumActors(), "dims", m.NumDims(), "params", m.Params.String())

	if m.Recorder != nil {
		if err := m.Recorder.RecordScenario(m); err != nil {
			return fmt.Errorf("record scenario: %w", err)
		}
	}

	s0 := m.History[0]
	for turn := 1; ; turn++ {
		if err := ctx.Err(); err != nil {
			slog.Info("model run interrupted", "run", m.RunID, "turn", turn-1)
			return err
		}
		s1, err := step(ctx, s0)
		if err != nil {
			return fmt.Errorf("turn %d: %w", turn, err)
		}
		if m.Recorder != nil {
			if err := m.Recorder.RecordTurn(BuildTurnRecord(s0, s1)); err != nil {
				return fmt.Errorf("record turn %d: %w", s0.Turn, err)
			}
		}
		m.AddState(s1)
		if m.OnTurn != nil {
			m.OnTurn(turn, s1)
		}

		var bargains int
		if s1.Transition != nil {
			bargains = len(s1.Transition.Bargains)
		}
		slog.Info("turn complete", "turn", turn, "bargains", bargains,
			"moved", fmt.Sprintf("%.4f", m.StateDist(s0, s1)))

		if m.Stop(turn, s1) {
			break
		}
		s0 = s1
	}

	final := m.Latest()
	if m.Recorder != nil {
		final.EnsureAUtil()
		if err := m.Recorder.RecordTurn(BuildTurnRecord(final, nil)); err != nil {
			return fmt.Errorf("record turn %d: %w", final.Turn, err)
		}
	}
	slog.Info("model run finished", "run", m.RunID, "turns", final.Turn,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"states", humanize.Comma(int64(len(m.History))))
	return nil
}
