package scenario

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Layout:
//
//	row 1: name, description, actor count, dimension count
//	row 2: dimension names in columns 4, 6, ...
//	row 3+: name, description, capability, then position,salience per dimension

// ReadCSV parses the scenario file at path.
func ReadCSV(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	s, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseCSV reads a scenario in the layout above and rescales positions and
// saliences to [0,1].
func ParseCSV(r io.Reader) (*Scenario, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	if len(rows) < 2 {
		return nil, invalid("missing header rows")
	}

	head := rows[0]
	na, err := intCell(head, 2, "actor count")
	if err != nil {
		return nil, err
	}
	nd, err := intCell(head, 3, "dimension count")
	if err != nil {
		return nil, err
	}
	if nd < 1 {
		return nil, invalid("need at least one dimension, have %d", nd)
	}
	if na < MinActors || na > MaxActors {
		return nil, invalid("%d actors, want %d to %d", na, MinActors, MaxActors)
	}
	if len(rows) < 2+na {
		return nil, invalid("header promises %d actors, file has %d rows", na, len(rows)-2)
	}

	s := &Scenario{Name: cell(head, 0), Desc: cell(head, 1)}
	for d := 0; d < nd; d++ {
		s.Dims = append(s.Dims, cell(rows[1], 3+2*d))
	}

	for i := 0; i < na; i++ {
		row := rows[2+i]
		a := ActorSpec{
			Name:     cell(row, 0),
			Desc:     cell(row, 1),
			Position: make([]float64, nd),
			Salience: make([]float64, nd),
		}
		what := fmt.Sprintf("actor %d capability", i)
		if a.Capability, err = floatCell(row, 2, what); err != nil {
			return nil, err
		}
		var total float64
		for d := 0; d < nd; d++ {
			p, err := floatCell(row, 3+2*d, fmt.Sprintf("actor %d position %d", i, d))
			if err != nil {
				return nil, err
			}
			if p < 0 || p > 100 {
				return nil, invalid("out-of-bounds position for actor %d on dimension %d: %g", i, d, p)
			}
			sl, err := floatCell(row, 4+2*d, fmt.Sprintf("actor %d salience %d", i, d))
			if err != nil {
				return nil, err
			}
			if sl < 0 || sl > 100 {
				return nil, invalid("out-of-bounds salience for actor %d on dimension %d: %g", i, d, sl)
			}
			total += sl
			if total > 100 {
				return nil, invalid("out-of-bounds total salience for actor %d: %g", i, total)
			}
			a.Position[d] = p / 100
			a.Salience[d] = sl / 100
		}
		s.Actors = append(s.Actors, a)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteCSV writes s in the layout ParseCSV reads.
func WriteCSV(w io.Writer, s *Scenario) error {
	nd := len(s.Dims)
	width := 3 + 2*nd
	cw := csv.NewWriter(w)

	row := make([]string, width)
	row[0], row[1] = s.Name, s.Desc
	row[2], row[3] = strconv.Itoa(len(s.Actors)), strconv.Itoa(nd)
	if err := cw.Write(row); err != nil {
		return err
	}

	row = make([]string, width)
	row[0], row[1], row[2] = "Actor", "Description", "Power"
	for d, name := range s.Dims {
		row[3+2*d] = name
		row[4+2*d] = "Sal"
	}
	if err := cw.Write(row); err != nil {
		return err
	}

	for _, a := range s.Actors {
		row = make([]string, width)
		row[0], row[1], row[2] = a.Name, a.Desc, formatNum(a.Capability)
		for d := 0; d < nd; d++ {
			row[3+2*d] = formatNum(100 * a.Position[d])
			row[4+2*d] = formatNum(100 * a.Salience[d])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(row []string, col int) string {
	if col < len(row) {
		return strings.TrimSpace(row[col])
	}
	return ""
}

func intCell(row []string, col int, what string) (int, error) {
	n, err := strconv.Atoi(cell(row, col))
	if err != nil {
		return 0, invalid("%s %q is not an integer", what, cell(row, col))
	}
	return n, nil
}

func floatCell(row []string, col int, what string) (float64, error) {
	v, err := strconv.ParseFloat(cell(row, col), 64)
	if err != nil {
		return 0, invalid("%s %q is not a number", what, cell(row, col))
	}
	return v, nil
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
