// Package analyze provides the "creditkit analyze" one-shot command.
package analyze

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/klytics/creditkit/internal/ai"
	"github.com/klytics/creditkit/internal/analysis"
	"github.com/klytics/creditkit/internal/app"
	"github.com/klytics/creditkit/internal/output"
	"github.com/klytics/creditkit/internal/progress"
)

// result is the data of the --json envelope.
type result struct {
	File        string               `json:"file"`
	Sheets      []string             `json:"sheets,omitempty"`
	PromptChars int                  `json:"promptChars"`
	Missing     []string             `json:"missing,omitempty"`
	Notices     []string             `json:"notices,omitempty"`
	Result      *analysis.ResultView `json:"result,omitempty"`
}

// NewCommand returns the analyze command.
func NewCommand() *cobra.Command {
	var (
		showPrompt bool
		noPager    bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "analyze <file.xlsx>",
		Short: "Run a credit-risk analysis of a financial statements workbook",
		Long: `Reads the balance sheet (CDKT), income statement (KQHDKD) and cash flow
statement (BCLCTT) sheets of the workbook, sends them to the model and prints
the assessment followed by its sources.

Exit codes: 0 on success, 1 when the workbook cannot be used, 2 when the
model call fails.`,
		Example: `  creditkit analyze statements.xlsx
  creditkit analyze statements.xlsx --json
  creditkit analyze statements.xlsx --show-prompt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")

			a, err := app.FromCommand(cmd)
			if err != nil {
				return fail(cmd, jsonFlag, err, output.ExitUserError, nil)
			}

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fail(cmd, jsonFlag, fmt.Errorf("could not read %s: %w", path, err), output.ExitUserError, nil)
			}

			session := analysis.NewSession("cli", a.Analyzer)
			if err := session.Load(filepath.Base(path), data); err != nil {
				return fail(cmd, jsonFlag, err, output.ExitUserError, nil)
			}
			view := session.Snapshot()
			summary := result{File: view.FileName, Sheets: view.Sheets, PromptChars: view.PromptChars, Missing: view.Missing}

			if len(view.Missing) > 0 {
				if !jsonFlag {
					output.NewWriterTo(cmd.ErrOrStderr()).WriteSummary(view)
				}
				return fail(cmd, jsonFlag, session.Prepared().MissingError(), output.ExitUserError, summary)
			}

			if showPrompt {
				req := session.Prepared().Request
				if jsonFlag {
					return output.FprintJSON(cmd.OutOrStdout(), "analyze", map[string]any{
						"file":   view.FileName,
						"system": req.System,
						"prompt": req.Body,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), req.Body)
				return nil
			}

			if !jsonFlag {
				output.NewWriterTo(cmd.ErrOrStderr()).WriteSummary(view)
			}

			label := fmt.Sprintf("Analyzing %s with %s", view.FileName, a.Client.Provider.Name())
			spinner := progress.NewSpinner(label + "...")
			spinner.SetOutput(cmd.ErrOrStderr())
			a.Client.OnRetry = func(e ai.RetryEvent) {
				if jsonFlag {
					return
				}
				spinner.Warn(analysis.RetryNotice(e))
				if e.Attempt < e.MaxAttempts {
					spinner.Update(fmt.Sprintf("%s (attempt %d/%d)...", label, e.Attempt+1, e.MaxAttempts))
				}
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			spinner.Start()
			res, err := session.Run(ctx)
			if err != nil {
				spinner.Fail("Analysis could not start")
				return fail(cmd, jsonFlag, err, output.ExitUserError, summary)
			}

			view = session.Snapshot()
			summary.Notices = view.Notices
			summary.Result = view.Result

			if !res.Outcome.OK() {
				spinner.Fail(fmt.Sprintf("Analysis failed after %d attempt(s)", res.Outcome.Attempts))
				failure := errors.New(res.Outcome.Text)
				if jsonFlag {
					return fail(cmd, jsonFlag, failure, output.ExitSystemError, summary)
				}
				output.NewWriterTo(cmd.OutOrStdout()).WriteResult(view.Result)
				return &output.ExitError{Code: output.ExitSystemError, Err: failure, Reported: true}
			}
			spinner.Stop(fmt.Sprintf("Analysis complete (%d attempt(s), %s)", res.Outcome.Attempts, res.Took.Round(time.Millisecond)))

			if jsonFlag {
				return output.FprintJSON(cmd.OutOrStdout(), "analyze", summary)
			}

			var buf bytes.Buffer
			output.NewWriterTo(&buf).WriteResult(view.Result)
			if !noPager && output.ShouldPage(buf.String(), output.TerminalHeight()) {
				return output.Page(buf.String())
			}
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "Print the prompt instead of sending it")
	cmd.Flags().BoolVar(&noPager, "no-pager", false, "Never pipe the result through a pager")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long, retries included (0 = no limit)")

	return cmd
}

// fail reports err as a JSON envelope when requested and wraps it with its
// exit code.
func fail(cmd *cobra.Command, jsonFlag bool, err error, code int, data any) error {
	if !jsonFlag {
		return &output.ExitError{Code: code, Err: err}
	}
	if encErr := output.FprintJSONError(cmd.OutOrStdout(), "analyze", err, code, data); encErr != nil {
		return encErr
	}
	return &output.ExitError{Code: code, Err: err, Reported: true}
}
