package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/klytics/creditkit/internal/ai"
	"github.com/klytics/creditkit/internal/analysis"
	"github.com/klytics/creditkit/internal/formats/xlsx"
	"github.com/klytics/creditkit/internal/logging"
	"github.com/klytics/creditkit/internal/sample"
	"github.com/klytics/creditkit/internal/statements"
)

type stubProvider struct {
	resp *ai.Response
	err  error
}

func (p stubProvider) Name() string { return "stub" }

func (p stubProvider) Generate(context.Context, string, string) (*ai.Response, error) {
	return p.resp, p.err
}

func newTestSession(t *testing.T, p ai.Provider) (*Session, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	t.Setenv("HOME", t.TempDir())

	client := ai.NewClient(p, ai.Policy{MaxAttempts: 2, Base: time.Millisecond})
	client.Sleep = func(context.Context, time.Duration) error { return nil }
	client.Logger = logging.NewTestLogger(t)
	analyzer := analysis.NewAnalyzer(client)
	analyzer.Logger = logging.NewTestLogger(t)

	var out bytes.Buffer
	s := NewSession(analysis.NewSession("shell", analyzer))
	s.Out = &out
	return s, &out
}

func writeSample(t *testing.T, wb *xlsx.Workbook) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statements.xlsx")
	if err := xlsx.WriteFile(wb, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewSession(t *testing.T) {
	s, _ := newTestSession(t, stubProvider{})
	if len(s.CommandHistory) != 0 {
		t.Errorf("expected empty history, got %d entries", len(s.CommandHistory))
	}
	if s.HistoryFile == "" {
		t.Error("expected history file path to be set")
	}
	if len(s.KnownCommands) == 0 {
		t.Error("expected known commands to be populated")
	}
}

func TestLoadAndAnalyze(t *testing.T) {
	s, out := newTestSession(t, stubProvider{resp: &ai.Response{
		Text:    "1. Overall Assessment\nStable.",
		Sources: []ai.Source{{Title: "SBV", URI: "https://sbv.gov.vn"}, {Title: "dangling"}},
	}})
	ctx := context.Background()
	path := writeSample(t, sample.Workbook())

	if err := s.Eval(ctx, "load "+path); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Prompt size:") {
		t.Errorf("expected load summary, got:\n%s", out.String())
	}
	if s.Path() != path {
		t.Errorf("path = %q", s.Path())
	}

	out.Reset()
	if err := s.Eval(ctx, "analyze"); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, "Stable.") || !strings.Contains(got, "- [SBV](https://sbv.gov.vn)") {
		t.Errorf("unexpected analyze output:\n%s", got)
	}
	if strings.Contains(got, "dangling") {
		t.Error("source without URI must not be listed")
	}
}

func TestAnalyzeWithMissingSheets(t *testing.T) {
	s, out := newTestSession(t, stubProvider{resp: &ai.Response{Text: "unused"}})
	wb := sample.Workbook()
	wb.Sheets = wb.Sheets[:1]

	if err := s.Eval(context.Background(), "load "+writeSample(t, wb)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), statements.Required[1].Description) {
		t.Errorf("expected missing income statement in summary:\n%s", out.String())
	}

	err := s.Eval(context.Background(), "analyze")
	var missing *statements.MissingError
	if !errors.As(err, &missing) || len(missing.Missing) != 2 {
		t.Errorf("expected MissingError with 2 entries, got %v", err)
	}
}

func TestAnalyzeFailureShowsMessage(t *testing.T) {
	s, out := newTestSession(t, stubProvider{err: &ai.StatusError{Provider: "stub", Code: 403}})
	ctx := context.Background()
	if err := s.Eval(ctx, "load "+writeSample(t, sample.Workbook())); err != nil {
		t.Fatal(err)
	}
	out.Reset()

	if err := s.Eval(ctx, "analyze"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "authentication error") {
		t.Errorf("expected auth failure text, got %q", out.String())
	}

	out.Reset()
	s.Eval(ctx, "sources")
	if !strings.Contains(out.String(), "no sources") {
		t.Errorf("unexpected sources output %q", out.String())
	}
}

func TestEvalBeforeLoad(t *testing.T) {
	s, out := newTestSession(t, stubProvider{})
	ctx := context.Background()

	if err := s.Eval(ctx, "analyze"); !errors.Is(err, analysis.ErrNoWorkbook) {
		t.Errorf("expected ErrNoWorkbook, got %v", err)
	}
	if err := s.Eval(ctx, "prompt"); !errors.Is(err, analysis.ErrNoWorkbook) {
		t.Errorf("expected ErrNoWorkbook, got %v", err)
	}
	s.Eval(ctx, "result")
	if !strings.Contains(out.String(), "No analysis has been run yet.") {
		t.Errorf("unexpected result output %q", out.String())
	}
}

func TestRunStopsWhenContextIsCancelled(t *testing.T) {
	s, _ := newTestSession(t, stubProvider{})
	s.HistoryFile = ""
	in, w := io.Pipe()
	defer w.Close()
	s.In = in

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- s.Run(ctx)
	}()

	// No input ever arrives; only cancellation can end the loop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run kept waiting for input after the context was cancelled")
	}
}

func TestEvalUnknownAndExit(t *testing.T) {
	s, _ := newTestSession(t, stubProvider{})
	ctx := context.Background()

	if err := s.Eval(ctx, "frobnicate"); err == nil {
		t.Error("expected error for unknown command")
	}
	if err := s.Eval(ctx, "load"); err == nil {
		t.Error("expected usage error")
	}
	if err := s.Eval(ctx, "quit"); !errors.Is(err, errExit) {
		t.Errorf("expected errExit, got %v", err)
	}
	if len(s.CommandHistory) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(s.CommandHistory))
	}
}

func TestComplete(t *testing.T) {
	s, _ := newTestSession(t, stubProvider{})

	got := s.Complete("res")
	if len(got) != 1 || got[0] != "result" {
		t.Errorf("Complete(res) = %v", got)
	}
	if len(s.Complete("")) != len(s.KnownCommands) {
		t.Error("empty input should list all commands")
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(42 * time.Second); got != "42s" {
		t.Errorf("got %q", got)
	}
	if got := formatDuration(125 * time.Second); got != "2m 5s" {
		t.Errorf("got %q", got)
	}
}
