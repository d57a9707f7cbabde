package completion

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func testRootCmd() *cobra.Command {
	root := &cobra.Command{Use: "creditkit"}
	root.AddCommand(&cobra.Command{Use: "analyze", Short: "Run an analysis"})
	root.AddCommand(&cobra.Command{Use: "serve", Short: "Start the browser UI"})
	root.AddCommand(NewCommand(root))
	return root
}

func generate(t *testing.T, shell string) string {
	t.Helper()
	root := testRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"completion", shell})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestBashCompletion(t *testing.T) {
	output := generate(t, "bash")
	if !strings.Contains(output, "_creditkit") {
		t.Error("bash completion should contain _creditkit function")
	}
	if !strings.HasPrefix(output, "# creditkit bash completion") {
		t.Error("bash completion should start with install instructions")
	}
}

func TestZshCompletion(t *testing.T) {
	if !strings.Contains(generate(t, "zsh"), "compdef") {
		t.Error("zsh completion should contain compdef")
	}
}

func TestFishCompletion(t *testing.T) {
	if !strings.Contains(generate(t, "fish"), "complete -c creditkit") {
		t.Error("fish completion should contain 'complete -c creditkit'")
	}
}

func TestPowerShellCompletion(t *testing.T) {
	if !strings.Contains(generate(t, "powershell"), "creditkit") {
		t.Error("PowerShell completion should contain creditkit")
	}
}

func TestUnsupportedShell(t *testing.T) {
	root := testRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"completion", "tcsh"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for unsupported shell")
	}
}
