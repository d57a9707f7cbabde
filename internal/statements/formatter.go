package statements

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/klytics/creditkit/internal/formats/xlsx"
)

// DefaultMaxRows bounds how many data rows of a sheet reach the prompt.
const DefaultMaxRows = 50

// FormatOptions controls table rendering.
type FormatOptions struct {
	MaxRows          int
	TruncationNotice bool
}

// Block is one formatted statement ready for the prompt.
type Block struct {
	Title     string `json:"title"`
	Text      string `json:"text"`
	Rows      int    `json:"rows"`
	TotalRows int    `json:"totalRows"`
	Truncated bool   `json:"truncated"`
	Degraded  bool   `json:"degraded"`
}

// Format renders a sheet as a titled markdown table. The first two columns are
// relabeled Indicator and Value. Sheets narrower than two columns produce a
// placeholder block with Degraded set.
func Format(sheet *xlsx.Sheet, title string, opts FormatOptions) Block {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}

	if sheet.ColumnCount() < 2 {
		return Block{
			Title:    title,
			Text:     fmt.Sprintf("Insufficient data in sheet: %s", title),
			Degraded: true,
		}
	}

	data := sheet.DataRows()
	total := len(data)
	if len(data) > opts.MaxRows {
		data = data[:opts.MaxRows]
	}

	// Keep header names as written; the default style upper-cases them.
	style := table.StyleDefault
	style.Format.Header = text.FormatDefault

	t := table.NewWriter()
	t.SetStyle(style)
	t.AppendHeader(headerRow(sheet.Header()))
	for _, row := range data {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		t.AppendRow(r)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n", title)
	b.WriteString(t.RenderMarkdown())

	truncated := total > len(data)
	if truncated && opts.TruncationNotice {
		fmt.Fprintf(&b, "\n_(showing first %d of %d rows)_", len(data), total)
	}

	return Block{
		Title:     title,
		Text:      b.String(),
		Rows:      len(data),
		TotalRows: total,
		Truncated: truncated,
	}
}

// FormatAll formats every located statement in requirement order.
func FormatAll(located *Located, opts FormatOptions) []Block {
	blocks := make([]Block, 0, len(located.Matches))
	for _, m := range located.Matches {
		blocks = append(blocks, Format(m.Sheet, m.Requirement.Description, opts))
	}
	return blocks
}

func headerRow(header []string) table.Row {
	row := make(table.Row, len(header))
	for i, name := range header {
		switch {
		case i == 0:
			row[i] = "Indicator"
		case i == 1:
			row[i] = "Value"
		case strings.TrimSpace(name) == "":
			row[i] = fmt.Sprintf("Column %d", i+1)
		default:
			row[i] = name
		}
	}
	return row
}
