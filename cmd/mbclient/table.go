package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// tableColumn describes one column of a CLI table. A positive maxWidth wraps
// longer cells.
type tableColumn struct {
	title    string
	align    text.Align
	maxWidth int
}

var (
	densityColumns = []tableColumn{
		{title: "Density"},
		{title: "Pages", align: text.AlignRight},
		{title: "Images", align: text.AlignRight},
		{title: "Avg Images/Page", align: text.AlignRight},
	}
	catalogColumns = []tableColumn{
		{title: "Property"},
		{title: "Values"},
	}
	summaryColumns = []tableColumn{
		{title: "Book"},
		{title: "State"},
		{title: "Slug"},
		{title: "Progress", align: text.AlignRight},
		{title: "Transitions", align: text.AlignRight},
		{title: "Updated"},
	}
	entryColumns = []tableColumn{
		{title: "#", align: text.AlignRight},
		{title: "Time"},
		{title: "Session"},
		{title: "State"},
		{title: "Slug"},
		{title: "Progress", align: text.AlignRight},
		{title: "Message", maxWidth: 48},
	}
)

func renderTable(columns []tableColumn, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		align := col.align
		if align == text.AlignDefault {
			align = text.AlignLeft
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
		if col.maxWidth > 0 {
			configs[i].WidthMax = col.maxWidth
			configs[i].WidthMaxEnforcer = text.WrapSoft
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}
