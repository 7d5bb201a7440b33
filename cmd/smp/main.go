// Command smp runs spatial bargaining simulations: actors in a policy space
// challenge one another, strike bargains and vote until their positions
// settle.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/smpsim/internal/config"
	"github.com/talgya/smpsim/internal/engine"
	"github.com/talgya/smpsim/internal/entropy"
	"github.com/talgya/smpsim/internal/logging"
	"github.com/talgya/smpsim/internal/persistence"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "smp",
		Short: "Spatial model of politics simulator",
		Long: `smp simulates actors who hold positions on policy dimensions and
negotiate toward a settlement. Each turn every actor looks for the most
promising challenge, offers a compromise, and the whole roster votes on which
bargains stand.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "YAML config file")
	root.PersistentFlags().String("log-level", "", "info, debug or trace (overrides config)")
	root.PersistentFlags().String("seed", "", "random seed, decimal or 0x hex; 0 draws one (overrides config)")
	root.PersistentFlags().String("db", "", `SQLite file for run records; "none" disables (overrides config)`)

	root.AddCommand(
		newRunCmd(),
		newDemoCmd(),
		newActorsCmd(),
		newGenerateCmd(),
		newSweepCmd(),
		newRunsCmd(),
		newVersionCmd(),
	)
	return root
}

// app is what every command shares once flags and config are resolved.
type app struct {
	cfg       *config.Config
	seed      uint64
	out       io.Writer
	decisions *logging.DecisionLogger
}

func setup(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("seed"); v != "" {
		if err := cfg.Run.Seed.UnmarshalText([]byte(v)); err != nil {
			return nil, err
		}
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Persistence.DBPath = v
		if v == "none" {
			cfg.Persistence.DBPath = ""
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()))
	dl, err := logging.NewDecisionLogger(cfg.Logging.DecisionsDir, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, seed: uint64(cfg.Run.Seed), out: cmd.OutOrStdout(), decisions: dl}, nil
}

func (a *app) close() {
	if err := a.decisions.Close(); err != nil {
		slog.Warn("closing decision log", "error", err)
	}
}

// configure applies run settings to a freshly built model.
func (a *app) configure(m *engine.Model) {
	m.Params = a.cfg.Model
	m.Workers = a.cfg.Run.Workers
	m.PosTol = a.cfg.Run.PosTol
	m.Stop = engine.Quiescence(a.cfg.Run.MaxTurns, a.cfg.Run.QuiescenceFactor)
	m.Record = engine.RecordOptions{
		Votes:        a.cfg.Persistence.RecordVotes,
		ThirdParties: a.cfg.Persistence.RecordThirdParties,
	}
	if a.decisions != nil {
		m.Decisions = a.decisions
	}
}

// openDB opens the configured database, or returns nil when persistence is
// off.
func (a *app) openDB() (*persistence.DB, error) {
	path := a.cfg.Persistence.DBPath
	if path == "" {
		return nil, nil
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := persistence.Open(path)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", path)
	return db, nil
}

// newRand returns the run's random source. A zero seed is replaced and the
// replacement remembered, so every model of one invocation shares it.
func (a *app) newRand() *rand.Rand {
	rng, seed := entropy.NewRand(a.seed)
	a.seed = seed
	return rng
}

// signalContext is cancelled by SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "smp version %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
