// Package doctor provides the "creditkit doctor" command for checking setup health.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/creditkit/internal/config"
	"github.com/klytics/creditkit/internal/output"
)

// Check represents a single health check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message"`
}

// NewCommand creates the "doctor" command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and model provider setup",
		Long:  "Run diagnostic checks to verify creditkit is properly configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			checks := runChecks(path)

			errCount := 0
			for _, c := range checks {
				if c.Status == "error" {
					errCount++
				}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				if err := output.FprintJSON(cmd.OutOrStdout(), "doctor", checks); err != nil {
					return err
				}
				if errCount > 0 {
					return &output.ExitError{Code: output.ExitUserError, Err: fmt.Errorf("%d check(s) failed", errCount), Reported: true}
				}
				return nil
			}

			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "creditkit doctor")
			fmt.Fprintln(out, "================")
			fmt.Fprintln(out)

			okCount, warnCount := 0, 0
			for _, c := range checks {
				var icon string
				switch c.Status {
				case "ok":
					icon = green("✓")
					okCount++
				case "warning":
					icon = yellow("!")
					warnCount++
				case "error":
					icon = red("✗")
				}
				fmt.Fprintf(out, "  %s %s: %s\n", icon, c.Name, c.Message)
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "  %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

			if errCount > 0 {
				return fmt.Errorf("%d check(s) failed", errCount)
			}
			return nil
		},
	}
}

func runChecks(configFile string) []Check {
	var checks []Check

	// Check Go runtime
	checks = append(checks, Check{
		Name:    "Go Runtime",
		Status:  "ok",
		Message: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	// Check config file
	path := configFile
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".creditkit", "config.yaml")
	}
	if _, err := os.Stat(path); err == nil {
		checks = append(checks, Check{Name: "Config File", Status: "ok", Message: path})
	} else {
		checks = append(checks, Check{
			Name:    "Config File",
			Status:  "warning",
			Message: "Not found — defaults are used; run 'creditkit config init' to create one",
		})
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return append(checks, Check{Name: "Config", Status: "error", Message: err.Error()})
	}

	// Configuration values and provider credentials
	for _, issue := range config.Validate(cfg) {
		status := issue.Severity
		if status == "info" {
			status = "ok"
		}
		checks = append(checks, Check{Name: checkName(issue.Key), Status: status, Message: issue.Message})
	}

	if strings.EqualFold(cfg.Provider, "ollama") {
		if _, err := exec.LookPath("ollama"); err == nil {
			checks = append(checks, Check{Name: "Ollama", Status: "ok", Message: "Found in PATH"})
		} else {
			checks = append(checks, Check{
				Name:    "Ollama",
				Status:  "warning",
				Message: "Not found in PATH — make sure the configured host is reachable",
			})
		}
	}

	return checks
}

func checkName(key string) string {
	switch {
	case key == "":
		return "Config"
	case strings.HasPrefix(key, "api_keys."):
		return "API Key"
	case key == "provider":
		return "Provider"
	default:
		return "Config " + key
	}
}
