package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/smpsim/internal/engine"
	"github.com/talgya/smpsim/internal/entropy"
	"github.com/talgya/smpsim/internal/report"
	"github.com/talgya/smpsim/internal/scenario"
	"github.com/talgya/smpsim/internal/sweep"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a scenario under every combination of parameter values",
		Long: `Run a scenario once per combination of the --vary values, all from the
same seed. Parameters not varied keep their configured values.

Parameters:
` + paramList(),
		Example: `  smp sweep --csv eu.csv --vary 'VotingRule=(Prop,Cubic)' --vary 'BigRAdjust=(None,Half,Full)'`,
		Args:    cobra.NoArgs,
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

			var axes []sweep.Axis
			vary, _ := cmd.Flags().GetStringArray("vary")
			for _, v := range vary {
				ax, err := sweep.Parse(v)
				if err != nil {
					return err
				}
				axes = append(axes, ax)
			}
			variants, err := sweep.Expand(a.cfg.Model, axes)
			if err != nil {
				return err
			}

			sc, err := scenario.ReadCSV(mustString(cmd, "csv"))
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			// Resolve a zero seed once so every variant starts from the same draw.
			_ = a.newRand()
			build := func(v sweep.Variant) (*engine.Model, error) {
				rng, _ := entropy.NewRand(a.seed)
				m, err := sc.Model(rng)
				if err != nil {
					return nil, err
				}
				a.configure(m)
				if db != nil {
					m.Recorder = db
				}
				return m, nil
			}

			parallel, _ := cmd.Flags().GetInt("parallel")
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			slog.Info("sweep starting", "scenario", sc.Name, "variants", len(variants), "seed", entropy.FormatSeed(a.seed))
			results, err := sweep.Run(ctx, variants, build, parallel)
			if err != nil {
				return err
			}
			return report.Write(a.out, format, sweepTable(sc, results))
		},
	}
	cmd.Flags().String("csv", "", "scenario CSV file (required)")
	_ = cmd.MarkFlagRequired("csv")
	cmd.Flags().StringArray("vary", nil, "parameter and values as Name=(v1,v2,...), repeatable")
	cmd.Flags().Int("parallel", 0, "variants run at once, 0 for all")
	addRunFlags(cmd)
	return cmd
}

func sweepTable(sc *scenario.Scenario, results []sweep.Result) report.Table {
	t := report.Table{
		Title:  fmt.Sprintf("Sweep of %s: %d variants", sc.Name, len(results)),
		Header: []string{"Variant", "Run", "Turns", "Elapsed", "Most likely", "Prob"},
	}
	for _, d := range sc.Dims {
		t.Header = append(t.Header, d)
	}
	for _, r := range results {
		best := 0
		for i, p := range r.Probs {
			if p > r.Probs[best] {
				best = i
			}
		}
		row := []string{
			r.Variant.Label, r.RunID, fmt.Sprint(r.Turns), r.Elapsed.Round(time.Millisecond).String(),
			sc.Actors[best].Name, fmt.Sprintf("%.4f", r.Probs[best]),
		}
		for _, x := range r.Final[best] {
			row = append(row, fmt.Sprintf("%.1f", 100*x))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// paramList is the help text listing every parameter and its values.
func paramList() string {
	var b strings.Builder
	p := engine.DefaultParams()
	for _, name := range engine.ParamNames() {
		v, _ := p.Get(name)
		values, _ := engine.ParamValues(name)
		fmt.Fprintf(&b, "  %s: %s (default %s)\n", name, strings.Join(values, ", "), v)
	}
	return b.String()
}
