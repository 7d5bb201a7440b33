// Package report renders run histories and model internals as terminal
// tables or CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	nameStyle   = cellStyle.Foreground(lipgloss.Color("#A8A8A8"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5C5C5C"))
)

// Table is a titled grid of preformatted cells. The first column holds row
// names.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

// Render draws t with a border.
func (t Table) Render() string {
	tb := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(t.Header...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return nameStyle
			}
			return cellStyle.Align(lipgloss.Right)
		})
	var b strings.Builder
	if t.Title != "" {
		b.WriteString(titleStyle.Render(t.Title))
		b.WriteByte('\n')
	}
	b.WriteString(tb.String())
	b.WriteByte('\n')
	return b.String()
}

// WriteCSV writes the header and rows, without the title.
func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// Format selects an output rendering.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
)

// ParseFormat accepts "table" or "csv".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table or csv)", s)
}

// Write renders every table to w in format f. CSV tables are separated by a
// blank line.
func Write(w io.Writer, f Format, tables ...Table) error {
	for i, t := range tables {
		switch f {
		case FormatCSV:
			if i > 0 {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return err
				}
			}
			if err := t.WriteCSV(w); err != nil {
				return fmt.Errorf("write %s: %w", t.Title, err)
			}
		default:
			if _, err := io.WriteString(w, t.Render()); err != nil {
				return err
			}
		}
	}
	return nil
}

func turnHeader(first string, turns int) []string {
	h := []string{first}
	for t := 0; t < turns; t++ {
		h = append(h, fmt.Sprintf("T%d", t))
	}
	return h
}
