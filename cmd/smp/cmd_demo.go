package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/smpsim/internal/actors"
	"github.com/talgya/smpsim/internal/engine"
	"github.com/talgya/smpsim/internal/entropy"
	"github.com/talgya/smpsim/internal/geometry"
	"github.com/talgya/smpsim/internal/report"
	"github.com/talgya/smpsim/internal/scenario"
	"github.com/talgya/smpsim/internal/voting"
)

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a random scenario and show its opening election",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			if err := applyRunFlags(cmd, a); err != nil {
				return err
			}
			format, err := report.ParseFormat(mustString(cmd, "format"))
			if err != nil {
				return err
			}

			na, _ := cmd.Flags().GetInt("actors")
			nd, _ := cmd.Flags().GetInt("dims")
			correlated, _ := cmd.Flags().GetBool("correlated")
			rng := a.newRand()
			sc := scenario.Random(rng, na, nd, scenario.Options{Name: "demo", Correlated: correlated})
			m, err := sc.Model(rng)
			if err != nil {
				return err
			}
			a.configure(m)

			fmt.Fprintf(a.out, "Seed %s: %d actors, %d dimensions\n", entropy.FormatSeed(a.seed), na, nd)
			o := openingElection(m)
			if err := report.Write(a.out, format, openingTables(m, o)...); err != nil {
				return err
			}
			lc, ac := openingCorrelation(o)
			fmt.Fprintf(a.out, "L-corr of prob and net support: %+.4f\n", lc)
			fmt.Fprintf(a.out, "A-corr of prob and net support: %+.4f\n", ac)

			return a.runAndReport(cmd, m)
		},
	}
	cmd.Flags().Int("actors", 7, "number of actors")
	cmd.Flags().Int("dims", 3, "number of dimensions")
	cmd.Flags().Bool("correlated", false, "correlate positions across dimensions")
	addRunFlags(cmd)
	return cmd
}

// opening holds the election over the actors' starting positions held
// under the binary rule.
type opening struct {
	u   *mat.Dense // u(i,j): actor i's utility for j's position
	w   []float64
	p   []float64
	net []float64 // capability-weighted support for each position
}

func openingElection(m *engine.Model) opening {
	s := m.History[0]
	s.EnsureAUtil()
	na := m.NumActors()
	u := mat.NewDense(na, na, nil)
	for i, ai := range m.Actors {
		for j := 0; j < na; j++ {
			u.Set(i, j, ai.PosUtil(s.Position(actors.ID(j)), s))
		}
	}
	w := s.ActorCaps()
	p := voting.ScalarPCE(w, u, voting.Binary, voting.Linear, voting.Conditional)
	net := make([]float64, na)
	for j := range net {
		for i := range w {
			net[j] += w[i] * u.At(i, j)
		}
	}
	return opening{u: u, w: w, p: p, net: net}
}

func openingTables(m *engine.Model, o opening) []report.Table {
	names := make([]string, m.NumActors())
	for i, a := range m.Actors {
		names[i] = a.Name
	}

	s := m.History[0]
	pos := report.Table{Title: "Starting positions and risk attitudes", Header: append([]string{"Actor"}, m.DimNames...)}
	pos.Header = append(pos.Header, "Risk")
	for i, a := range m.Actors {
		row := []string{a.Name}
		for _, x := range s.Position(actors.ID(i)) {
			row = append(row, fmt.Sprintf("%.1f", 100*x))
		}
		row = append(row, fmt.Sprintf("%+.4f", s.RiskAttitude(actors.ID(i))))
		pos.Rows = append(pos.Rows, row)
	}

	eu := mat.NewVecDense(len(o.p), nil)
	eu.MulVec(o.u, mat.NewVecDense(len(o.p), o.p))
	elect := report.Table{
		Title:  fmt.Sprintf("Election over positions (%s rule)", voting.Binary),
		Header: []string{"Actor", "Prob", "Expected util", "Net support"},
	}
	for i, n := range names {
		elect.Rows = append(elect.Rows, []string{
			n, fmt.Sprintf("%.4f", o.p[i]), fmt.Sprintf("%.3f", eu.AtVec(i)), fmt.Sprintf("%.3f", o.net[i]),
		})
	}

	return []report.Table{
		report.Actors(m),
		pos,
		report.Matrix("Actor-position utilities", names, names, o.u, "%.4f"),
		elect,
	}
}

// openingCorrelation compares the election's probabilities with net support,
// raw (cosine) and centered (Pearson).
func openingCorrelation(o opening) (float64, float64) {
	lc := floats.Dot(o.net, o.p) / (floats.Norm(o.net, 2) * floats.Norm(o.p, 2))
	return lc, stat.Correlation(o.net, o.p, nil)
}

func newActorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actors",
		Short: "Show one random actor voting between two random positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			const nd = 3
			rng := a.newRand()
			sp1, sp2 := make(geometry.Position, nd), make(geometry.Position, nd)
			for d := 0; d < nd; d++ {
				sp1[d] = rng.Float64()
			}
			for d := 0; d < nd; d++ {
				sp2[d] = rng.Float64()
			}
			alice := actors.New("Alice", "first cryptographer", 0, nil)
			alice.Randomize(rng, nd)

			m := engine.NewModel("actors", rng)
			for d := 0; d < nd; d++ {
				m.AddDim(fmt.Sprintf("Dim-%02d", d))
			}
			m.AddActor(alice)
			s := engine.NewState(m)
			own := make(geometry.Position, nd)
			for d := range own {
				own[d] = (2*sp1[d] + sp2[d]) / 3
			}
			s.AddPosition(own)
			m.AddState(s)

			v := alice.Vote(sp1, sp2, s)
			w := a.out
			fmt.Fprintf(w, "Seed %s\n", entropy.FormatSeed(a.seed))
			fmt.Fprintf(w, "Position sp1: %s\n", sp1)
			fmt.Fprintf(w, "Position sp2: %s\n", sp2)
			fmt.Fprintf(w, "Alice stands at (2*sp1 + sp2)/3: %s\n", own)
			fmt.Fprintf(w, "Capability %.3f, voting rule %s, risk attitude %.3f\n",
				alice.Capability, alice.Rule, s.RiskAttitude(alice.ID))
			fmt.Fprintf(w, "Total salience %.4f, saliences %.3f\n", alice.TotalSalience(), alice.Salience)
			fmt.Fprintf(w, "Vote on [sp1:sp2] %+.3f\n", v)
			if v <= 0 {
				return fmt.Errorf("vote %+.3f should favor the nearer position", v)
			}
			return nil
		},
	}
}
