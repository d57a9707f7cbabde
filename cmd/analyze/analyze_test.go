package analyze

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/creditkit/internal/formats/xlsx"
	"github.com/klytics/creditkit/internal/output"
	"github.com/klytics/creditkit/internal/sample"
)

const geminiAnswer = `{"candidates":[{"content":{"parts":[{"text":"1. Overall Assessment\nAdequate liquidity."}]},
"groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://sbv.gov.vn","title":"SBV"}},{"web":{"title":"no link"}}]}}]}`

// execute runs the analyze command under a root carrying the global flags.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	color.NoColor = true
	t.Setenv("CREDITKIT_NO_PROGRESS", "1")

	root := &cobra.Command{Use: "creditkit", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().Bool("json", false, "")
	root.PersistentFlags().Bool("verbose", false, "")
	root.PersistentFlags().String("provider", "", "")
	root.PersistentFlags().String("model", "", "")
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(NewCommand())

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"analyze"}, args...))
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func setup(t *testing.T, handler http.HandlerFunc, wb *xlsx.Workbook) (configPath, workbook string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	cfg := "provider: gemini\ngemini:\n  base_url: " + srv.URL + "\nretry:\n  base: 1ms\n  cap: 2ms\nlog:\n  level: error\n"
	if err := os.WriteFile(configPath, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}

	workbook = filepath.Join(dir, "q4.xlsx")
	if err := xlsx.WriteFile(wb, workbook); err != nil {
		t.Fatal(err)
	}
	return configPath, workbook
}

func answer(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(geminiAnswer))
}

func TestAnalyzePrintsResultAndSources(t *testing.T) {
	cfg, wb := setup(t, answer, sample.Workbook())

	stdout, stderr, err := execute(t, wb, "--config", cfg, "--no-pager")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "Adequate liquidity.") || !strings.Contains(stdout, "- [SBV](https://sbv.gov.vn)") {
		t.Errorf("unexpected stdout:\n%s", stdout)
	}
	if strings.Contains(stdout, "no link") {
		t.Error("sources without a URI must not be listed")
	}
	if !strings.Contains(stderr, "Prompt size:") {
		t.Errorf("expected the prompt size on stderr:\n%s", stderr)
	}
}

func TestAnalyzeJSON(t *testing.T) {
	cfg, wb := setup(t, answer, sample.Workbook())

	stdout, _, err := execute(t, wb, "--config", cfg, "--json")
	if err != nil {
		t.Fatal(err)
	}
	var env struct {
		OK   bool `json:"ok"`
		Data struct {
			File   string `json:"file"`
			Result struct {
				Status  string `json:"status"`
				Sources []struct {
					URI string `json:"uri"`
				} `json:"sources"`
			} `json:"result"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(stdout), &env); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if !env.OK || env.Data.File != "q4.xlsx" || env.Data.Result.Status != "success" || len(env.Data.Result.Sources) != 1 {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestAnalyzeMissingStatementsExitsWithUserError(t *testing.T) {
	var calls atomic.Int32
	wb := sample.Workbook()
	wb.Sheets = wb.Sheets[:2]
	cfg, path := setup(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		answer(w, r)
	}, wb)

	_, stderr, err := execute(t, path, "--config", cfg)
	var exitErr *output.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != output.ExitUserError {
		t.Fatalf("expected user error exit, got %v", err)
	}
	if !strings.Contains(stderr, "Cash Flow Statement") {
		t.Errorf("expected the missing statement to be listed:\n%s", stderr)
	}
	if calls.Load() != 0 {
		t.Errorf("model must not be called, got %d calls", calls.Load())
	}
}

func TestAnalyzeAuthFailureExitsWithSystemError(t *testing.T) {
	var calls atomic.Int32
	cfg, wb := setup(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"API key not valid"}}`, http.StatusForbidden)
	}, sample.Workbook())

	stdout, _, err := execute(t, wb, "--config", cfg, "--json")
	var exitErr *output.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != output.ExitSystemError || !exitErr.Reported {
		t.Fatalf("expected reported system error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("auth failures must not be retried, got %d calls", calls.Load())
	}
	var env output.JSONResult
	if err := json.Unmarshal([]byte(stdout), &env); err != nil {
		t.Fatal(err)
	}
	if env.OK || env.Code != output.ExitSystemError || env.Error == "" {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestAnalyzeShowPrompt(t *testing.T) {
	var calls atomic.Int32
	cfg, wb := setup(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		answer(w, r)
	}, sample.Workbook())

	stdout, _, err := execute(t, wb, "--config", cfg, "--show-prompt")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "### ") || !strings.Contains(stdout, "Indicator") {
		t.Errorf("expected the prompt body:\n%s", stdout)
	}
	if calls.Load() != 0 {
		t.Error("--show-prompt must not call the model")
	}
}

func TestAnalyzeUnreadableFile(t *testing.T) {
	cfg, _ := setup(t, answer, sample.Workbook())

	_, _, err := execute(t, filepath.Join(t.TempDir(), "nope.xlsx"), "--config", cfg)
	var exitErr *output.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != output.ExitUserError {
		t.Fatalf("expected user error, got %v", err)
	}
}
