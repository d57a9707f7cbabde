package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	root := &cobra.Command{Use: "creditkit", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().Bool("json", false, "")
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(NewCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"config"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestShowMasksSecrets(t *testing.T) {
	path := writeConfig(t, "api_keys:\n  gemini: AIzaSyVerySecretValue\n")

	out, err := run(t, "show", "--config", path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "VerySecretValue") {
		t.Errorf("API key leaked:\n%s", out)
	}
	if !strings.Contains(out, "AIzaSy****") || !strings.Contains(out, "max_rows: 50") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestSetAndGet(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := run(t, "set", "prompt.language", "English"); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "get", "prompt.language")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "prompt.language: English" {
		t.Errorf("unexpected get output %q", out)
	}

	if _, err := run(t, "set", "no.such.key", "x"); err == nil {
		t.Error("expected unknown key to be rejected")
	}
}

func TestValidateReportsErrors(t *testing.T) {
	path := writeConfig(t, "provider: watson\n")

	out, err := run(t, "validate", "--config", path)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(out, "provider must be one of") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestPathUsesExplicitFile(t *testing.T) {
	path := writeConfig(t, "provider: gemini\n")

	out, err := run(t, "path", "--config", path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != path {
		t.Errorf("path = %q, want %q", strings.TrimSpace(out), path)
	}
}
