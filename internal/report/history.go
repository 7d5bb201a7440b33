package report

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/mat"

	"github.com/talgya/smpsim/internal/actors"
	"github.com/talgya/smpsim/internal/engine"
	"github.com/talgya/smpsim/internal/persistence"
)

// PositionHistory is one table per dimension: each actor's position, on
// the 0-100 scale, at every turn.
func PositionHistory(m *engine.Model) []Table {
	var tables []Table
	turns := len(m.History)
	for d, dim := range m.DimNames {
		t := Table{
			Title:  fmt.Sprintf("Position history, dimension %d: %s", d, dim),
			Header: turnHeader("Actor", turns),
		}
		for i, a := range m.Actors {
			row := []string{a.Name}
			for _, s := range m.History {
				row = append(row, fmt.Sprintf("%.1f", 100*s.Position(actors.ID(i))[d]))
			}
			t.Rows = append(t.Rows, row)
		}
		tables = append(tables, t)
	}
	return tables
}

// ProbHistory is the aggregate probability of each actor's position at
// every turn. States whose utilities were never needed get them now.
func ProbHistory(m *engine.Model) Table {
	turns := len(m.History)
	t := Table{Title: "Position probability history", Header: turnHeader("Actor", turns)}
	probs := make([][]float64, turns)
	for turn, s := range m.History {
		s.EnsureAUtil()
		pdt, unq := s.PDist(-1)
		probs[turn] = make([]float64, m.NumActors())
		for i := range probs[turn] {
			probs[turn][i] = s.PosProb(i, unq, pdt)
		}
	}
	for i, a := range m.Actors {
		row := []string{a.Name}
		for turn := range probs {
			row = append(row, fmt.Sprintf("%.4f", probs[turn][i]))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// StoredPositionHistory builds the PositionHistory tables from a stored run.
func StoredPositionHistory(actorNames, dims []string, pts []persistence.PositionPoint) []Table {
	turns := 0
	for _, p := range pts {
		turns = max(turns, p.Turn+1)
	}
	cells := make([][][]string, len(dims))
	for d := range cells {
		cells[d] = make([][]string, len(actorNames))
		for i := range cells[d] {
			cells[d][i] = make([]string, turns)
		}
	}
	for _, p := range pts {
		if p.Dim < len(dims) && p.Actor < len(actorNames) {
			cells[p.Dim][p.Actor][p.Turn] = fmt.Sprintf("%.1f", 100*p.Coord)
		}
	}
	var tables []Table
	for d, dim := range dims {
		t := Table{
			Title:  fmt.Sprintf("Position history, dimension %d: %s", d, dim),
			Header: turnHeader("Actor", turns),
		}
		for i, name := range actorNames {
			t.Rows = append(t.Rows, append([]string{name}, cells[d][i]...))
		}
		tables = append(tables, t)
	}
	return tables
}

// StoredProbHistory builds the ProbHistory table from a stored run.
func StoredProbHistory(actorNames []string, pts []persistence.ProbPoint) Table {
	turns := 0
	for _, p := range pts {
		turns = max(turns, p.Turn+1)
	}
	cells := make([][]string, len(actorNames))
	for i := range cells {
		cells[i] = make([]string, turns)
	}
	for _, p := range pts {
		if p.Actor < len(actorNames) {
			cells[p.Actor][p.Turn] = fmt.Sprintf("%.4f", p.Prob)
		}
	}
	t := Table{Title: "Position probability history", Header: turnHeader("Actor", turns)}
	for i, name := range actorNames {
		t.Rows = append(t.Rows, append([]string{name}, cells[i]...))
	}
	return t
}

// Actors lists the roster with capability and saliences.
func Actors(m *engine.Model) Table {
	t := Table{Title: "Actors", Header: []string{"Actor", "Description", "Capability"}}
	for _, d := range m.DimNames {
		t.Header = append(t.Header, "Sal "+d)
	}
	for _, a := range m.Actors {
		row := []string{a.Name, a.Desc, fmt.Sprintf("%.1f", a.Capability)}
		for _, s := range a.Salience {
			row = append(row, fmt.Sprintf("%.3f", s))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Matrix renders a labelled matrix with cells printed by format.
func Matrix(title string, rowNames, colNames []string, x mat.Matrix, format string) Table {
	r, c := x.Dims()
	t := Table{Title: title, Header: append([]string{""}, colNames...)}
	for i := 0; i < r; i++ {
		row := []string{rowNames[i]}
		for j := 0; j < c; j++ {
			row = append(row, fmt.Sprintf(format, x.At(i, j)))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Runs lists stored runs.
func Runs(runs []persistence.RunInfo, now time.Time) Table {
	t := Table{Title: "Stored runs", Header: []string{"Run", "Scenario", "Actors", "Dims", "Turns", "Params", "Created"}}
	for _, r := range runs {
		created := r.CreatedAt
		if ts, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
			created = humanize.RelTime(ts, now, "ago", "from now")
		}
		t.Rows = append(t.Rows, []string{
			r.ID, r.Scenario, fmt.Sprint(r.Actors), fmt.Sprint(r.Dims), fmt.Sprint(r.Turns), r.Params, created,
		})
	}
	return t
}
