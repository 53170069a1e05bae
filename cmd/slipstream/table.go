package main

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"slipstream/internal/iso9660"
)

// column is one table column. Numeric columns are right aligned.
type column struct {
	title   string
	numeric bool
}

func textCol(title string) column { return column{title: title} }

func numCol(title string) column { return column{title: title, numeric: true} }

// renderTable lays rows out under cols. Missing or blank cells render as "-"
// and cells beyond the last column are dropped.
func renderTable(cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}
	tw := newTableWriter()

	header := make(table.Row, 0, len(cols))
	configs := make([]table.ColumnConfig, 0, len(cols))
	for i, c := range cols {
		header = append(header, c.title)
		cfg := table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
		if c.numeric {
			cfg.Align = text.AlignRight
		}
		configs = append(configs, cfg)
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		tw.AppendRow(fitRow(row, len(cols)))
	}
	return tw.Render()
}

// renderFields renders descriptor fields as a headerless name/value table.
func renderFields(fields []iso9660.FieldValue) string {
	tw := newTableWriter()
	for _, f := range fields {
		tw.AppendRow(fitRow([]string{f.Name, f.Value}, 2))
	}
	return tw.Render()
}

func fitRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		cell := ""
		if i < len(cells) {
			cell = strings.TrimSpace(cells[i])
		}
		if cell == "" {
			cell = "-"
		}
		row[i] = cell
	}
	return row
}

func newTableWriter() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}
