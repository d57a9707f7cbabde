// Package cmd contains all CLI commands for the creditkit binary.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/creditkit/cmd/analyze"
	"github.com/klytics/creditkit/cmd/completion"
	cmdconfig "github.com/klytics/creditkit/cmd/config"
	"github.com/klytics/creditkit/cmd/doctor"
	"github.com/klytics/creditkit/cmd/sample"
	"github.com/klytics/creditkit/cmd/serve"
	"github.com/klytics/creditkit/cmd/shell"
	"github.com/klytics/creditkit/cmd/version"
	"github.com/klytics/creditkit/internal/output"
)

var (
	jsonOutput bool
	verbose    bool
	modelName  string
	provider   string
	noColor    bool
	configFile string
)

// NewRootCommand creates and returns the root cobra command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "creditkit",
		Short: "Credit-risk analysis of financial statement workbooks",
		Long: `creditkit reads an .xlsx workbook holding a balance sheet (CDKT), an income
statement (KQHDKD) and a cash flow statement (BCLCTT), and asks a language
model for a credit-risk assessment with cited sources.

Run it once with 'creditkit analyze', interactively with 'creditkit shell',
or in the browser with 'creditkit serve'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			if jsonOutput {
				os.Setenv("CREDITKIT_JSON", "true")
			}
		},
	}

	// Global persistent flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "Model name override (default depends on the provider)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Model provider: gemini | vertex | anthropic | openai | ollama")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable ANSI color output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.creditkit/config.yaml)")

	// Register subcommands
	rootCmd.AddCommand(analyze.NewCommand())
	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(shell.NewCommand())
	rootCmd.AddCommand(sample.NewCommand())
	rootCmd.AddCommand(cmdconfig.NewCommand())
	rootCmd.AddCommand(doctor.NewCommand())
	rootCmd.AddCommand(completion.NewCommand(rootCmd))
	rootCmd.AddCommand(version.NewCommand())

	return rootCmd
}

// Execute runs the root command and handles any returned errors. Interrupts
// cancel the command context so servers and model calls stop cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode reports err and returns the process exit code. Errors already
// written as a JSON envelope are not printed again.
func exitCode(err error) int {
	var exitErr *output.ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.Reported {
			fmt.Fprintf(os.Stderr, "Error: %s\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	return output.ExitUserError
}
