// Package config loads run settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/talgya/smpsim/internal/engine"
	"github.com/talgya/smpsim/internal/entropy"
	"github.com/talgya/smpsim/internal/logging"
)

// Config holds every setting a run reads.
type Config struct {
	// Model holds the nine sub-model choices, written by name.
	Model engine.Params `yaml:"model"`

	Run         RunConfig         `yaml:"run"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RunConfig controls seeding and the stop rule.
type RunConfig struct {
	// Seed for the run's random source. Zero draws a fresh seed.
	Seed Seed `yaml:"seed"`

	MaxTurns         int     `yaml:"max_turns"`
	QuiescenceFactor float64 `yaml:"quiescence_factor"`

	// Workers bounds the per-turn worker pool. Zero means one per CPU.
	Workers int     `yaml:"workers"`
	PosTol  float64 `yaml:"pos_tol"`
}

// PersistenceConfig says where runs are stored and which of the larger
// tables to fill.
type PersistenceConfig struct {
	// DBPath is the SQLite file. Empty disables persistence.
	DBPath             string `yaml:"db_path"`
	RecordVotes        bool   `yaml:"record_votes"`
	RecordThirdParties bool   `yaml:"record_third_parties"`
}

// LoggingConfig configures the operational log and the decision trace.
type LoggingConfig struct {
	// Level is "info", "debug" or "trace". Debug and trace also write
	// decisions.jsonl into DecisionsDir.
	Level        string `yaml:"level"`
	DecisionsDir string `yaml:"decisions_dir"`
}

// Seed is a 64-bit seed written in YAML as a decimal or 0x-prefixed number.
type Seed uint64

func (s Seed) MarshalText() ([]byte, error) {
	return []byte(entropy.FormatSeed(uint64(s))), nil
}

func (s *Seed) UnmarshalText(b []byte) error {
	v, err := entropy.ParseSeed(string(b))
	if err != nil {
		return err
	}
	*s = Seed(v)
	return nil
}

// Default returns the settings used when no file or variable says otherwise.
func Default() *Config {
	return &Config{
		Model: engine.DefaultParams(),
		Run: RunConfig{
			Seed:             Seed(entropy.DefaultSeed),
			MaxTurns:         100,
			QuiescenceFactor: engine.DefaultQuiescenceFactor,
			PosTol:           engine.DefaultPosTol,
		},
		Persistence: PersistenceConfig{
			DBPath: filepath.Join("data", "smp.db"),
		},
		Logging: LoggingConfig{
			Level:        "info",
			DecisionsDir: "data",
		},
	}
}

// Load reads path if it is non-empty, then applies environment overrides.
// A missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads settings from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges the YAML decoder cannot.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Model.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Run.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("max_turns must be positive, got %d", c.Run.MaxTurns))
	}
	if c.Run.QuiescenceFactor <= 0 {
		errs = append(errs, fmt.Errorf("quiescence_factor must be positive, got %g", c.Run.QuiescenceFactor))
	}
	if c.Run.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be non-negative, got %d", c.Run.Workers))
	}
	if c.Run.PosTol <= 0 || c.Run.PosTol >= 1 {
		errs = append(errs, fmt.Errorf("pos_tol must be in (0,1), got %g", c.Run.PosTol))
	}
	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("invalid log level %q (valid: info, debug, trace)", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Save writes c as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnvOverrides(c *Config) error {
	if v := os.Getenv("SMP_SEED"); v != "" {
		if err := c.Run.Seed.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("SMP_SEED: %w", err)
		}
	}
	if v := os.Getenv("SMP_DB_PATH"); v != "" {
		c.Persistence.DBPath = v
	}
	if v := os.Getenv("SMP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SMP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMP_WORKERS: %w", err)
		}
		c.Run.Workers = n
	}
	if v := os.Getenv("SMP_MAX_TURNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMP_MAX_TURNS: %w", err)
		}
		c.Run.MaxTurns = n
	}
	return nil
}
