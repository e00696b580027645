package excel

// Table is a positional view of a tabular file: an optional header and the
// trimmed string cells of every data row
type Table struct {
	Headers []string   // Column headers; empty when the file has none
	Rows    [][]string // Data rows
}

// Width returns the number of columns of the widest row or header
func (t *Table) Width() int {
	w := len(t.Headers)
	for _, row := range t.Rows {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// Column returns the cells of column idx; short rows yield ""
func (t *Table) Column(idx int) []string {
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}
