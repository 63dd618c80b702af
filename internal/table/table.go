// Package table reads CSV and Excel files into fully-materialized tables
// with ordered, lowercased column names.
package table

import (
	"strings"
)

// Table is one parsed tabular file. Column names are lowercased and trimmed;
// every row is aligned to Columns (padded or truncated on read).
type Table struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at (row, column name), or "" if either is missing.
func (t *Table) Cell(row int, col string) string {
	i := t.ColumnIndex(col)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][i]
}

// Record returns row i as a column-name keyed map.
func (t *Table) Record(i int) map[string]string {
	rec := make(map[string]string, len(t.Columns))
	for j, c := range t.Columns {
		rec[c] = t.Rows[i][j]
	}
	return rec
}

// AddColumn appends a synthetic column. values shorter than the row count
// are padded with "".
func (t *Table) AddColumn(name string, values []string) {
	t.Columns = append(t.Columns, strings.ToLower(strings.TrimSpace(name)))
	for i := range t.Rows {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		t.Rows[i] = append(t.Rows[i], v)
	}
}

// Column returns all values of the named column, or nil if absent.
func (t *Table) Column(name string) []string {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil
	}
	vals := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		vals[r] = row[i]
	}
	return vals
}

// isMarker reports whether a column name is a synthetic processing marker
// (e.g. __merged_phone__) left behind by a previous tool.
func isMarker(col string) bool {
	return strings.HasPrefix(col, "__") && strings.HasSuffix(col, "__")
}

// normalize lowercases and trims headers, aligns ragged rows, and drops
// marker columns carried over from earlier processing.
func (t *Table) normalize() {
	keep := make([]int, 0, len(t.Columns))
	cols := make([]string, 0, len(t.Columns))
	for i, c := range t.Columns {
		c = strings.ToLower(strings.TrimSpace(c))
		if isMarker(c) {
			continue
		}
		keep = append(keep, i)
		cols = append(cols, c)
	}
	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		aligned := make([]string, len(keep))
		for j, i := range keep {
			if i < len(row) {
				aligned[j] = row[i]
			}
		}
		rows[r] = aligned
	}
	t.Columns = cols
	t.Rows = rows
}
