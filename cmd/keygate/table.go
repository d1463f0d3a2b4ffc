package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// tableColumn describes one column of a rendered table. Numeric columns
// (ledger IDs, reference counts) set rightAlign.
type tableColumn struct {
	title      string
	rightAlign bool
}

var (
	sessionColumns = []tableColumn{
		{title: "Content"},
		{title: "Scheme"},
		{title: "State"},
		{title: "Refs", rightAlign: true},
		{title: "Secure"},
	}
	exchangeColumns = []tableColumn{
		{title: "ID", rightAlign: true},
		{title: "Recorded"},
		{title: "Content"},
		{title: "Scheme"},
		{title: "Kind"},
		{title: "Detail"},
	}
)

func renderTable(columns []tableColumn, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, column := range columns {
		header[i] = column.title
		align := text.AlignLeft
		if column.rightAlign {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	return tw.Render()
}
