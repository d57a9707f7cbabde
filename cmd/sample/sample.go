// Package sample provides the "creditkit sample" command.
package sample

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/creditkit/internal/output"
	samplepkg "github.com/klytics/creditkit/internal/sample"
)

// NewCommand returns the sample command.
func NewCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sample <out.xlsx>",
		Short: "Write an example workbook with the three required statements",
		Example: `  creditkit sample statements.xlsx
  creditkit analyze statements.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists — use --force to overwrite", path)
			}
			if err := samplepkg.WriteFile(path); err != nil {
				return err
			}

			jsonFlag, _ := cmd.Flags().GetBool("json")
			if jsonFlag {
				return output.FprintJSON(cmd.OutOrStdout(), "sample", map[string]string{"path": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", color.GreenString("✓"), path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
