package sheets

import (
	"fmt"
	"strings"

	"github.com/loomhouse/api/internal/orderrecord"
)

type tableRow struct {
	number int
	record orderrecord.Record
}

// table is a tab read into memory. Existing headers win over the canonical column list so legacy
// sheets with reordered or extra columns keep their layout.
type table struct {
	header []string
	rows   []tableRow
}

func parseTable(values [][]any) table {
	if len(values) == 0 {
		return table{}
	}
	header := make([]string, len(values[0]))
	for i, cell := range values[0] {
		header[i] = strings.TrimSpace(fmt.Sprint(cell))
	}
	t := table{header: header}
	for i, row := range values[1:] {
		if blankRow(row) {
			continue
		}
		t.rows = append(t.rows, tableRow{number: i + 2, record: orderrecord.FromValues(header, row)})
	}
	return t
}

func (t table) columns(canonical []string) []string {
	if len(t.header) == 0 {
		return canonical
	}
	return t.header
}

func (t table) find(column, value string) (tableRow, bool) {
	for _, row := range t.rows {
		if cellString(row.record[column]) == value {
			return row, true
		}
	}
	return tableRow{}, false
}

func headerValues(columns []string) []any {
	out := make([]any, len(columns))
	for i, column := range columns {
		out[i] = column
	}
	return out
}

func blankRow(row []any) bool {
	for _, cell := range row {
		if strings.TrimSpace(fmt.Sprint(cell)) != "" {
			return false
		}
	}
	return true
}

func cellString(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
