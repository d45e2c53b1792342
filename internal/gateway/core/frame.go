package core

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"

	"rd3/pkg/domain"
)

// Frame is a tabular batch of rows with a fixed column order.
type Frame struct {
	Table   domain.Table
	Columns []string
	Rows    []domain.Row
}

// NewFrame builds a frame over rows with the id attribute first and the
// remaining columns sorted.
func NewFrame(table domain.Table, rows []domain.Row) Frame {
	idAttr := table.IDAttribute()
	seen := map[string]struct{}{idAttr: {}}
	var cols []string
	for _, row := range rows {
		for col := range row {
			if _, ok := seen[col]; ok {
				continue
			}
			seen[col] = struct{}{}
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return Frame{Table: table, Columns: append([]string{idAttr}, cols...), Rows: rows}
}

// Len returns the number of rows.
func (f Frame) Len() int { return len(f.Rows) }

// WriteCSV writes the frame with every field quoted.
func (f Frame) WriteCSV(w io.Writer) error {
	if err := writeQuoted(w, f.Columns); err != nil {
		return err
	}
	record := make([]string, len(f.Columns))
	for _, row := range f.Rows {
		for i, col := range f.Columns {
			record[i] = domain.FormatValue(row[col])
		}
		if err := writeQuoted(w, record); err != nil {
			return err
		}
	}
	return nil
}

// encoding/csv only quotes when needed; the import endpoint expects every
// field quoted.
func writeQuoted(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// ReadCSV parses a frame previously written with WriteCSV. Empty fields
// become nil.
func ReadCSV(table domain.Table, r io.Reader) (Frame, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return Frame{}, err
	}
	if len(records) == 0 {
		return Frame{Table: table}, nil
	}
	header := records[0]
	rows := make([]domain.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(domain.Row, len(header))
		for i, col := range header {
			if i >= len(record) || record[i] == "" {
				row[col] = nil
				continue
			}
			row[col] = record[i]
		}
		rows = append(rows, row)
	}
	return Frame{Table: table, Columns: header, Rows: rows}, nil
}
