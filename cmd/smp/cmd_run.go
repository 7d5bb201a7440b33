package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/talgya/smpsim/internal/engine"
	"github.com/talgya/smpsim/internal/entropy"
	"github.com/talgya/smpsim/internal/report"
	"github.com/talgya/smpsim/internal/scenario"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario read from CSV",
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

			path, _ := cmd.Flags().GetString("csv")
			sc, err := scenario.ReadCSV(path)
			if err != nil {
				return err
			}
			slog.Info("scenario loaded", "name", sc.Name, "actors", len(sc.Actors), "dims", len(sc.Dims))
			m, err := sc.Model(a.newRand())
			if err != nil {
				return err
			}
			return a.runAndReport(cmd, m)
		},
	}
	cmd.Flags().String("csv", "", "scenario CSV file (required)")
	_ = cmd.MarkFlagRequired("csv")
	addRunFlags(cmd)
	return cmd
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a random scenario as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			na, _ := cmd.Flags().GetInt("actors")
			nd, _ := cmd.Flags().GetInt("dims")
			correlated, _ := cmd.Flags().GetBool("correlated")
			name, _ := cmd.Flags().GetString("name")
			sc := scenario.Random(a.newRand(), na, nd, scenario.Options{Name: name, Correlated: correlated})
			if err := sc.Validate(); err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("out")
			if out == "" || out == "-" {
				return scenario.WriteCSV(a.out, sc)
			}
			if err := ensureDir(out); err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := scenario.WriteCSV(f, sc); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			slog.Info("scenario written", "path", out, "seed", entropy.FormatSeed(a.seed))
			return nil
		},
	}
	cmd.Flags().Int("actors", 7, "number of actors")
	cmd.Flags().Int("dims", 3, "number of dimensions")
	cmd.Flags().Bool("correlated", false, "correlate positions across dimensions")
	cmd.Flags().String("name", "random", "scenario name")
	cmd.Flags().StringP("out", "o", "", "output file, stdout when empty")
	return cmd
}

// addRunFlags registers the flags shared by commands that run a model.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-turns", 0, "turn limit (overrides config)")
	cmd.Flags().Int("workers", -1, "worker pool size, 0 for one per CPU (overrides config)")
	cmd.Flags().StringArrayP("param", "p", nil, "model parameter as Name=Value, repeatable")
	cmd.Flags().StringP("format", "f", "table", "history output: table or csv")
}

func applyRunFlags(cmd *cobra.Command, a *app) error {
	if n, _ := cmd.Flags().GetInt("max-turns"); n > 0 {
		a.cfg.Run.MaxTurns = n
	}
	if n, _ := cmd.Flags().GetInt("workers"); n >= 0 {
		a.cfg.Run.Workers = n
	}
	params, _ := cmd.Flags().GetStringArray("param")
	for _, p := range params {
		name, val, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return fmt.Errorf("parameter %q: want Name=Value", p)
		}
		if err := a.cfg.Model.Set(name, val); err != nil {
			return err
		}
	}
	return nil
}

// runAndReport runs m to its stop rule, recording it if persistence is on,
// and prints the history. An interrupted run still prints what it reached.
func (a *app) runAndReport(cmd *cobra.Command, m *engine.Model) error {
	format, err := report.ParseFormat(mustString(cmd, "format"))
	if err != nil {
		return err
	}
	a.configure(m)

	db, err := a.openDB()
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		m.Recorder = db
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	slog.Info("run starting", "run", m.RunID, "seed", entropy.FormatSeed(a.seed), "params", m.Params.String())
	runErr := m.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	tables := report.PositionHistory(m)
	tables = append(tables, report.ProbHistory(m))
	if err := report.Write(a.out, format, tables...); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("run interrupted after turn %d: %w", m.Latest().Turn, runErr)
	}
	return nil
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
