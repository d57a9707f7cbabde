// Package completion provides shell completion generation commands.
package completion

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCommand returns the completion command.
func NewCommand(rootCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completions",
		Long: `Generate shell completion scripts for creditkit.

Install instructions:
  Bash:       creditkit completion bash > /etc/bash_completion.d/creditkit
              echo 'source <(creditkit completion bash)' >> ~/.bashrc
  Zsh:        creditkit completion zsh > ~/.zsh/completions/_creditkit
  Fish:       creditkit completion fish > ~/.config/fish/completions/creditkit.fish
  PowerShell: creditkit completion powershell >> $PROFILE`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				fmt.Fprintln(out, "# creditkit bash completion")
				fmt.Fprintln(out, "# Install: creditkit completion bash > /etc/bash_completion.d/creditkit")
				fmt.Fprintln(out, "# Or:      echo 'source <(creditkit completion bash)' >> ~/.bashrc")
				fmt.Fprintln(out)
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				fmt.Fprintln(out, "# creditkit zsh completion")
				fmt.Fprintln(out, "# Install: creditkit completion zsh > ~/.zsh/completions/_creditkit")
				fmt.Fprintln(out)
				return rootCmd.GenZshCompletion(out)
			case "fish":
				fmt.Fprintln(out, "# creditkit fish completion")
				fmt.Fprintln(out, "# Install: creditkit completion fish > ~/.config/fish/completions/creditkit.fish")
				fmt.Fprintln(out)
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				fmt.Fprintln(out, "# creditkit PowerShell completion")
				fmt.Fprintln(out, "# Install: creditkit completion powershell >> $PROFILE")
				fmt.Fprintln(out)
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish, powershell)", args[0])
			}
		},
	}
	return cmd
}
