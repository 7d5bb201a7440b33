// Package sweep runs one scenario under every combination of a set of model
// parameter choices.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/smpsim/internal/actors"
	"github.com/talgya/smpsim/internal/engine"
)

// Axis is one parameter and the values to try for it.
type Axis struct {
	Name   string
	Values []string
}

// Parse reads "Name=(v1,v2,...)" or "Name=v1,v2,...". Names and values are
// checked against engine.Params.
func Parse(spec string) (Axis, error) {
	name, list, ok := strings.Cut(spec, "=")
	if !ok {
		return Axis{}, fmt.Errorf("sweep %q: want Name=(v1,v2,...)", spec)
	}
	name = strings.TrimSpace(name)
	list = strings.TrimSpace(list)
	list = strings.TrimSuffix(strings.TrimPrefix(list, "("), ")")

	ax := Axis{Name: name}
	var scratch engine.Params
	seen := map[string]bool{}
	for _, v := range strings.Split(list, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if err := scratch.Set(name, v); err != nil {
			return Axis{}, fmt.Errorf("sweep %q: %w", spec, err)
		}
		canon, _ := scratch.Get(name)
		if seen[canon] {
			continue
		}
		seen[canon] = true
		ax.Values = append(ax.Values, canon)
	}
	if len(ax.Values) == 0 {
		return Axis{}, fmt.Errorf("sweep %q: no values", spec)
	}
	return ax, nil
}

// Variant is one point of the sweep.
type Variant struct {
	Index  int
	Label  string // "Name=value" pairs of the swept parameters
	Params engine.Params
}

// Expand forms the cartesian product of axes over base, with the first axis
// varying slowest. No axes gives base alone.
func Expand(base engine.Params, axes []Axis) ([]Variant, error) {
	variants := []Variant{{Params: base}}
	for _, ax := range axes {
		var next []Variant
		for _, v := range variants {
			for _, val := range ax.Values {
				p := v.Params
				if err := p.Set(ax.Name, val); err != nil {
					return nil, err
				}
				label := ax.Name + "=" + val
				if v.Label != "" {
					label = v.Label + " " + label
				}
				next = append(next, Variant{Label: label, Params: p})
			}
		}
		variants = next
	}
	for i := range variants {
		variants[i].Index = i
		if variants[i].Label == "" {
			variants[i].Label = "base"
		}
	}
	return variants, nil
}

// Result is the outcome of one variant's run.
type Result struct {
	Variant Variant
	RunID   string
	Turns   int
	Elapsed time.Duration

	// Final positions, one per actor.
	Final [][]float64

	// Aggregate probability of each actor's final position.
	Probs []float64
}

// BuildFunc makes a fresh, unrun model for a variant. Each call must return
// its own model and random source.
type BuildFunc func(v Variant) (*engine.Model, error)

// Run executes every variant with at most workers running at once (one per
// variant when workers is 0). Results are in variant order. The first
// failure cancels the rest.
func Run(ctx context.Context, variants []Variant, build BuildFunc, workers int) ([]Result, error) {
	results := make([]Result, len(variants))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			m, err := build(v)
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.Label, err)
			}
			m.Params = v.Params
			start := time.Now()
			if err := m.Run(ctx); err != nil {
				return fmt.Errorf("variant %s: %w", v.Label, err)
			}
			results[i] = summarize(v, m, time.Since(start))
			slog.Info("sweep variant done", "variant", v.Label, "turns", results[i].Turns)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func summarize(v Variant, m *engine.Model, elapsed time.Duration) Result {
	final := m.Latest()
	final.EnsureAUtil()
	pdt, unq := final.PDist(-1)
	r := Result{
		Variant: v,
		RunID:   m.RunID.String(),
		Turns:   final.Turn,
		Elapsed: elapsed,
	}
	for i := 0; i < m.NumActors(); i++ {
		r.Final = append(r.Final, []float64(final.Position(actors.ID(i)).Clone()))
		r.Probs = append(r.Probs, final.PosProb(i, unq, pdt))
	}
	return r
}
