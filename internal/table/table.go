// Package table renders small aligned ASCII tables for CLI output. Cell
// content may contain ANSI escape sequences; alignment is computed on the
// visible width.
package table

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Alignment controls how a cell is padded within its column.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;]*m")

func stripAnsi(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// Table accumulates rows and renders them with box-drawing borders.
type Table struct {
	writer      io.Writer
	header      []string
	rows        [][]string
	colAlign    []Alignment
	headerAlign []Alignment
}

// NewTable creates a table that renders to the given writer.
func NewTable(writer io.Writer) *Table {
	return &Table{writer: writer}
}

// WithHeader sets the header row.
func (t *Table) WithHeader(header []string) *Table {
	t.header = header
	return t
}

// WithColumnAlignment sets per-column alignment for body rows.
func (t *Table) WithColumnAlignment(align []Alignment) *Table {
	t.colAlign = align
	return t
}

// WithHeaderAlignment sets per-column alignment for the header row.
func (t *Table) WithHeaderAlignment(align []Alignment) *Table {
	t.headerAlign = align
	return t
}

// WithRows replaces the body rows.
func (t *Table) WithRows(rows [][]string) *Table {
	t.rows = rows
	return t
}

// Append adds one body row.
func (t *Table) Append(row []string) *Table {
	t.rows = append(t.rows, row)
	return t
}

// Render writes the table. Column widths fit the widest visible cell.
func (t *Table) Render() {
	columns := len(t.header)
	for _, row := range t.rows {
		if len(row) > columns {
			columns = len(row)
		}
	}
	if columns == 0 {
		return
	}

	widths := make([]int, columns)
	measure := func(row []string) {
		for i, cell := range row {
			if n := len(stripAnsi(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}
	measure(t.header)
	for _, row := range t.rows {
		measure(row)
	}

	var border strings.Builder
	for _, w := range widths {
		border.WriteString("+")
		border.WriteString(strings.Repeat("-", w+2))
	}
	border.WriteString("+")

	fmt.Fprintln(t.writer, border.String())
	if len(t.header) > 0 {
		t.writeRow(t.header, t.headerAlign, widths)
		fmt.Fprintln(t.writer, border.String())
	}
	for _, row := range t.rows {
		t.writeRow(row, t.colAlign, widths)
	}
	fmt.Fprintln(t.writer, border.String())
}

func (t *Table) writeRow(row []string, align []Alignment, widths []int) {
	var sb strings.Builder
	for i, w := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		a := AlignLeft
		if i < len(align) {
			a = align[i]
		}
		sb.WriteString("| ")
		sb.WriteString(pad(cell, w, a))
		sb.WriteString(" ")
	}
	sb.WriteString("|")
	fmt.Fprintln(t.writer, sb.String())
}

// pad fills the cell to the target visible width. ANSI sequences do not
// count toward the width.
func pad(cell string, width int, a Alignment) string {
	visible := len(stripAnsi(cell))
	gap := width - visible
	if gap <= 0 {
		return cell
	}
	switch a {
	case AlignRight:
		return strings.Repeat(" ", gap) + cell
	case AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + cell + strings.Repeat(" ", gap-left)
	default:
		return cell + strings.Repeat(" ", gap)
	}
}
