package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klytics/creditkit/internal/ai"
	"github.com/klytics/creditkit/internal/formats/xlsx"
	"github.com/klytics/creditkit/internal/sample"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewWiresConfiguredPipeline(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"1. Overall Assessment"}]},
			"groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://sbv.gov.vn","title":"SBV"}}]}}]}`))
	}))
	defer srv.Close()

	path := writeConfig(t, `
provider: gemini
model: gemini-test
gemini:
  base_url: `+srv.URL+`
format:
  max_rows: 5
prompt:
  language: English
log:
  level: warn
`)

	var logs bytes.Buffer
	a, err := New(Options{ConfigFile: path, LogWriter: &logs})
	if err != nil {
		t.Fatal(err)
	}
	if a.Analyzer.Format.MaxRows != 5 || a.Analyzer.Prompt.Language != "English" {
		t.Errorf("config not applied: %+v %+v", a.Analyzer.Format, a.Analyzer.Prompt)
	}

	data, err := xlsx.WriteBytes(sample.Workbook())
	if err != nil {
		t.Fatal(err)
	}
	p, err := a.Analyzer.Prepare("q4.xlsx", data)
	if err != nil {
		t.Fatal(err)
	}
	res, err := a.Analyzer.Analyze(context.Background(), p, nil)
	if err != nil {
		t.Fatal(err)
	}

	if res.Outcome.Status != ai.StatusSuccess || len(res.Outcome.Sources) != 1 {
		t.Fatalf("unexpected outcome %+v", res.Outcome)
	}
	if gotPath != "/v1beta/models/gemini-test:generateContent" {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if _, ok := gotBody["systemInstruction"]; !ok {
		t.Error("system instruction missing from request")
	}
	if strings.Contains(logs.String(), "level=INFO") {
		t.Errorf("info logs should be filtered at warn level:\n%s", logs.String())
	}
}

func TestNewFlagOverrides(t *testing.T) {
	path := writeConfig(t, "provider: gemini\n")

	a, err := New(Options{ConfigFile: path, Provider: "ollama", Model: "llama3.2", Verbose: true, LogWriter: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	if got := a.Client.Provider.Name(); got != "ollama" {
		t.Errorf("provider = %q, want ollama", got)
	}
	if a.Config.Model != "llama3.2" {
		t.Errorf("model = %q", a.Config.Model)
	}
	if !a.Logger.Enabled(context.Background(), -4) {
		t.Error("--verbose should enable debug logging")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "retry:\n  max_attempts: 0\n")

	_, err := New(Options{ConfigFile: path, LogWriter: &bytes.Buffer{}})
	if err == nil || !strings.Contains(err.Error(), "max_attempts") {
		t.Errorf("expected validation error naming max_attempts, got %v", err)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	path := writeConfig(t, "provider: gemini\n")

	if _, err := New(Options{ConfigFile: path, Provider: "watson", LogWriter: &bytes.Buffer{}}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
