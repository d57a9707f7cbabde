// Package output provides formatting utilities for CLI output.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/klytics/creditkit/internal/analysis"
)

// Writer handles formatted output to a destination.
type Writer struct {
	dest io.Writer
}

// NewWriter creates a writer on stdout.
func NewWriter() *Writer {
	return &Writer{dest: os.Stdout}
}

// NewWriterTo creates a writer on dest.
func NewWriterTo(dest io.Writer) *Writer {
	return &Writer{dest: dest}
}

// WriteJSON encodes a value as pretty-printed JSON.
func (w *Writer) WriteJSON(v interface{}) error {
	enc := json.NewEncoder(w.dest)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteText writes plain text.
func (w *Writer) WriteText(s string) error {
	_, err := fmt.Fprint(w.dest, s)
	return err
}

// WriteLn writes a line of text.
func (w *Writer) WriteLn(s string) error {
	_, err := fmt.Fprintln(w.dest, s)
	return err
}

// WriteSummary prints what was loaded and whether an analysis can run.
func (w *Writer) WriteSummary(v analysis.View) {
	if v.FileName == "" {
		fmt.Fprintln(w.dest, "No workbook loaded. Use 'load <file.xlsx>'.")
		return
	}

	bold := color.New(color.Bold)
	bold.Fprintf(w.dest, "File: %s\n", v.FileName)
	fmt.Fprintf(w.dest, "Sheets: %s\n", strings.Join(v.Sheets, ", "))
	fmt.Fprintf(w.dest, "State: %s\n", v.State)

	if len(v.Missing) > 0 {
		color.New(color.FgYellow).Fprintln(w.dest, "Missing required sheets (check the sheet names):")
		for _, m := range v.Missing {
			fmt.Fprintf(w.dest, "  - %s\n", m)
		}
		return
	}

	for _, b := range v.Blocks {
		switch {
		case b.Degraded:
			color.New(color.FgYellow).Fprintf(w.dest, "Warning: %s has fewer than 2 columns\n", b.Title)
		case b.Truncated:
			fmt.Fprintf(w.dest, "Note: %s has %d rows; only the first %d are sent\n", b.Title, b.TotalRows, b.Rows)
		}
	}
	fmt.Fprintf(w.dest, "Prompt size: %s characters (only the first %d rows of each sheet are sent)\n",
		humanize.Comma(int64(v.PromptChars)), v.MaxRows)
}

// WriteResult prints an analysis result followed by its sources.
func (w *Writer) WriteResult(r *analysis.ResultView) {
	if r == nil {
		fmt.Fprintln(w.dest, "No analysis has been run yet.")
		return
	}
	if !r.OK {
		color.New(color.FgRed).Fprintln(w.dest, r.Text)
		return
	}

	fmt.Fprintln(w.dest, strings.TrimRight(r.Text, "\n"))
	fmt.Fprintln(w.dest)
	w.WriteSources(r)
}

// WriteSources prints the displayable sources, or a note that there are none.
func (w *Writer) WriteSources(r *analysis.ResultView) {
	if r == nil || !r.OK {
		return
	}
	if len(r.Sources) == 0 {
		color.New(color.Faint).Fprintln(w.dest, "No grounding sources were returned for this analysis.")
		return
	}
	color.New(color.Bold).Fprintln(w.dest, "Sources")
	fmt.Fprint(w.dest, analysis.RenderSources(r.Sources))
}

// WriteError writes an error message to stderr.
func WriteError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
