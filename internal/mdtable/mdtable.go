// Package mdtable extracts GitHub-style pipe tables from free-form text.
// Assistant answers mix prose with tables; the dashboard renders the tables
// as real grids instead of raw markdown.
package mdtable

import "strings"

// Table is one parsed pipe table.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Parse returns the first table found in text, if any.
func Parse(text string) (Table, bool) {
	tables := ParseAll(text)
	if len(tables) == 0 {
		return Table{}, false
	}
	return tables[0], true
}

// ParseAll returns every table found in text, in document order. A table is
// a header row followed by a separator row ("---" cells, optional colons)
// and zero or more data rows. Malformed candidates are skipped rather than
// reported: the surrounding prose simply stays prose.
func ParseAll(text string) []Table {
	lines := strings.Split(text, "\n")

	var tables []Table
	for i := 0; i < len(lines); i++ {
		headers, ok := splitRow(lines[i])
		if !ok || i+1 >= len(lines) {
			continue
		}
		separator, ok := splitRow(lines[i+1])
		if !ok || !isSeparator(separator) || len(separator) != len(headers) {
			continue
		}

		table := Table{Headers: headers, Rows: [][]string{}}
		j := i + 2
		for ; j < len(lines); j++ {
			cells, ok := splitRow(lines[j])
			if !ok {
				break
			}
			table.Rows = append(table.Rows, normalizeRow(cells, len(headers)))
		}
		tables = append(tables, table)
		i = j - 1
	}
	return tables
}

// splitRow splits one pipe-delimited line into trimmed cells. Lines without
// a pipe are not rows.
func splitRow(line string) ([]string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.Contains(trimmed, "|") {
		return nil, false
	}
	trimmed = strings.TrimPrefix(trimmed, "|")
	trimmed = strings.TrimSuffix(trimmed, "|")

	parts := strings.Split(trimmed, "|")
	cells := make([]string, len(parts))
	for i, part := range parts {
		cells[i] = strings.TrimSpace(part)
	}
	return cells, true
}

// isSeparator reports whether every cell looks like ---, :--- or ---: .
func isSeparator(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, cell := range cells {
		cell = strings.TrimPrefix(cell, ":")
		cell = strings.TrimSuffix(cell, ":")
		if cell == "" {
			return false
		}
		for _, r := range cell {
			if r != '-' {
				return false
			}
		}
	}
	return true
}

// normalizeRow pads or truncates cells to the header width so ragged rows
// still render.
func normalizeRow(cells []string, width int) []string {
	if len(cells) == width {
		return cells
	}
	row := make([]string, width)
	copy(row, cells)
	return row
}
