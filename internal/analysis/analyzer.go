// Package analysis wires the workbook pipeline to the model client and keeps
// per-session presentation state.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/klytics/creditkit/internal/ai"
	"github.com/klytics/creditkit/internal/formats/xlsx"
	"github.com/klytics/creditkit/internal/logging"
	"github.com/klytics/creditkit/internal/metrics"
	"github.com/klytics/creditkit/internal/prompt"
	"github.com/klytics/creditkit/internal/statements"
)

// Prepared is everything derived from one uploaded workbook.
type Prepared struct {
	FileName string
	Sheets   []string
	Blocks   []statements.Block

	// Missing lists unmatched requirements. When non-empty, Request is nil.
	Missing []statements.Requirement
	Request *prompt.Request
}

// Ready reports whether an analysis can be triggered for this workbook.
func (p *Prepared) Ready() bool {
	return p != nil && len(p.Missing) == 0 && p.Request != nil
}

// MissingError returns the missing-statements condition, or nil.
func (p *Prepared) MissingError() error {
	if p == nil || len(p.Missing) == 0 {
		return nil
	}
	return &statements.MissingError{Missing: p.Missing}
}

// Result is the stored outcome of one triggered analysis.
type Result struct {
	Outcome     ai.Outcome    `json:"outcome"`
	FileName    string        `json:"fileName"`
	PromptChars int           `json:"promptChars"`
	FinishedAt  time.Time     `json:"finishedAt"`
	Took        time.Duration `json:"took"`
}

// Analyzer runs the pipeline: load, locate, format, assemble, send.
type Analyzer struct {
	Locator *statements.Locator
	Format  statements.FormatOptions
	Prompt  prompt.Options
	Client  *ai.Client
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewAnalyzer returns an analyzer for the standard statements.
func NewAnalyzer(client *ai.Client) *Analyzer {
	return &Analyzer{
		Locator: statements.NewLocator(),
		Format:  statements.FormatOptions{MaxRows: statements.DefaultMaxRows},
		Prompt:  prompt.Options{Language: prompt.DefaultLanguage},
		Client:  client,
		Logger:  slog.Default(),
	}
}

// Prepare parses data and builds the request. A load failure returns a
// *xlsx.LoadError; missing statements are reported through Prepared.Missing.
func (a *Analyzer) Prepare(name string, data []byte) (*Prepared, error) {
	wb, err := xlsx.ReadBytes(data)
	if err != nil {
		a.Metrics.Upload("load_error")
		a.logger().Warn("could not load workbook", slog.String("file", name), slog.String("error", err.Error()))
		return nil, err
	}
	return a.PrepareWorkbook(name, wb), nil
}

// PrepareWorkbook builds the request for an already-loaded workbook.
func (a *Analyzer) PrepareWorkbook(name string, wb *xlsx.Workbook) *Prepared {
	p := &Prepared{FileName: name, Sheets: wb.SheetNames()}

	located, err := a.locator().Locate(wb)
	var missing *statements.MissingError
	if errors.As(err, &missing) {
		p.Missing = missing.Missing
		a.Metrics.Upload("missing")
		a.logger().Info("workbook is missing statements",
			slog.String("file", name),
			slog.Any("missing", missing.Descriptions()))
		return p
	}

	p.Blocks = statements.FormatAll(located, a.Format)
	req := prompt.Build(p.Blocks, a.Prompt)
	p.Request = &req

	a.Metrics.Upload("ok")
	a.logger().Debug("workbook prepared",
		slog.String("file", name),
		slog.Int("sheets", len(p.Sheets)),
		slog.Int("prompt_chars", req.Size()))
	return p
}

// Analyze sends the prepared request. onRetry, if non-nil, receives every
// retry notice for this run only.
func (a *Analyzer) Analyze(ctx context.Context, p *Prepared, onRetry func(ai.RetryEvent)) (*Result, error) {
	if p == nil {
		return nil, ErrNoWorkbook
	}
	if err := p.MissingError(); err != nil {
		return nil, err
	}
	if a.Client == nil {
		return nil, fmt.Errorf("no model client configured")
	}

	// Copy so concurrent sessions sharing the client get their own hook.
	client := *a.Client
	client.OnRetry = func(e ai.RetryEvent) {
		if a.Client.OnRetry != nil {
			a.Client.OnRetry(e)
		}
		if onRetry != nil {
			onRetry(e)
		}
	}

	start := time.Now()
	out := client.Send(ctx, p.Request.System, p.Request.Body)
	took := time.Since(start)

	a.Metrics.Analysis(out.Status.String(), out.Attempts, took)
	logging.FromContext(ctx, a.Logger).Info("analysis finished",
		slog.String("file", p.FileName),
		slog.String("status", out.Status.String()),
		slog.Int("attempts", out.Attempts),
		slog.Int("sources", len(out.Sources)),
		slog.Duration("took", took))

	return &Result{
		Outcome:     out,
		FileName:    p.FileName,
		PromptChars: p.Request.Size(),
		FinishedAt:  time.Now(),
		Took:        took,
	}, nil
}

func (a *Analyzer) locator() *statements.Locator {
	if a.Locator == nil {
		return statements.NewLocator()
	}
	return a.Locator
}

func (a *Analyzer) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// RetryNotice renders a retry event for display.
func RetryNotice(e ai.RetryEvent) string {
	if e.Attempt >= e.MaxAttempts {
		return fmt.Sprintf("Attempt %d/%d failed: %v", e.Attempt, e.MaxAttempts, e.Err)
	}
	return fmt.Sprintf("Attempt %d/%d failed: %v. Retrying in %s...", e.Attempt, e.MaxAttempts, e.Err, e.Delay)
}
