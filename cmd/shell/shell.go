// Package shell provides the "creditkit shell" interactive REPL command.
package shell

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/klytics/creditkit/internal/analysis"
	"github.com/klytics/creditkit/internal/app"
	shellpkg "github.com/klytics/creditkit/internal/shell"
	"github.com/klytics/creditkit/internal/watch"
)

// NewCommand creates the "shell" command.
func NewCommand() *cobra.Command {
	var (
		evalCmd string
		watchIt bool
	)

	cmd := &cobra.Command{
		Use:   "shell [file.xlsx]",
		Short: "Start an interactive creditkit shell",
		Long: `Start an interactive REPL: load a workbook, inspect the prompt, run the
analysis and re-run it without restarting.

With --watch the workbook is reloaded whenever it changes on disk.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if watchIt && len(args) == 0 {
				return fmt.Errorf("--watch needs a workbook path")
			}

			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}

			session := shellpkg.NewSession(analysis.NewSession("shell", a.Analyzer))
			session.Out = cmd.OutOrStdout()

			if len(args) == 1 {
				if err := session.Load(args[0]); err != nil {
					return err
				}
			}

			if evalCmd != "" {
				return session.Eval(cmd.Context(), evalCmd)
			}

			if !watchIt {
				return session.Run(cmd.Context())
			}

			w, err := watch.New(args[0], session.Load)
			if err != nil {
				return err
			}
			w.Logger = a.Logger

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			eg, egctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return w.Start(egctx)
			})
			eg.Go(func() error {
				defer cancel()
				return session.Run(egctx)
			})
			err = eg.Wait()
			a.Logger.Debug("shell finished", slog.Int("reloads", len(w.Events())))
			return err
		},
	}

	cmd.Flags().StringVar(&evalCmd, "eval", "", "Run a single shell command and exit")
	cmd.Flags().BoolVar(&watchIt, "watch", false, "Reload the workbook when it changes on disk")
	return cmd
}
