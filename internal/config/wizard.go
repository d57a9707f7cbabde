package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigIssue represents a validation finding.
type ConfigIssue struct {
	Key      string `json:"key"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Wizard runs the interactive setup wizard.
// If reader is nil, reads from os.Stdin.
func Wizard(reader io.Reader, out io.Writer) error {
	if reader == nil {
		reader = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	scanner := bufio.NewScanner(reader)
	ask := func(prompt string) string {
		fmt.Fprint(out, prompt)
		scanner.Scan()
		return strings.TrimSpace(scanner.Text())
	}

	fmt.Fprintln(out, "creditkit setup")
	fmt.Fprintln(out, strings.Repeat("-", 48))
	fmt.Fprintln(out)

	// Step 1: AI Provider
	fmt.Fprintln(out, "Step 1/3: AI Provider")
	fmt.Fprintln(out, "  [1] Google Gemini with search grounding (recommended)")
	fmt.Fprintln(out, "  [2] Gemini on Vertex AI (Google Cloud credentials)")
	fmt.Fprintln(out, "  [3] Anthropic Claude")
	fmt.Fprintln(out, "  [4] OpenAI GPT-4o")
	fmt.Fprintln(out, "  [5] Ollama (local, free)")
	fmt.Fprintln(out, "  [6] Skip for now")

	switch ask("  Choice: ") {
	case "1":
		viper.Set("provider", "gemini")
		if key := ask("  Gemini API key (leave empty to use GEMINI_API_KEY): "); key != "" {
			viper.Set("api_keys.gemini", key)
		}
	case "2":
		viper.Set("provider", "vertex")
		if project := ask("  Google Cloud project (leave empty to use GOOGLE_CLOUD_PROJECT): "); project != "" {
			viper.Set("vertex.project", project)
		}
		if location := ask("  Location (default: us-central1): "); location != "" {
			viper.Set("vertex.location", location)
		}
	case "3":
		viper.Set("provider", "anthropic")
		if key := ask("  Anthropic API key (sk-ant-...): "); key != "" {
			viper.Set("api_keys.anthropic", key)
		}
	case "4":
		viper.Set("provider", "openai")
		if key := ask("  OpenAI API key (sk-...): "); key != "" {
			viper.Set("api_keys.openai", key)
		}
	case "5":
		viper.Set("provider", "ollama")
		host := ask("  Ollama host (default: http://localhost:11434): ")
		if host == "" {
			host = "http://localhost:11434"
		}
		viper.Set("ollama.host", host)
	default:
		fmt.Fprintln(out, "  Skipped")
	}
	fmt.Fprintln(out)

	// Step 2: Report language
	fmt.Fprintln(out, "Step 2/3: Report language")
	if lang := ask(fmt.Sprintf("  Language of the analysis (default: %s): ", viper.GetString("prompt.language"))); lang != "" {
		viper.Set("prompt.language", lang)
	}
	fmt.Fprintln(out)

	if err := SaveConfig(); err != nil {
		return fmt.Errorf("could not save config: %w", err)
	}

	fmt.Fprintln(out, "Step 3/3: Done!")
	fmt.Fprintln(out, "Quick start:")
	fmt.Fprintln(out, "  creditkit sample statements.xlsx")
	fmt.Fprintln(out, "  creditkit analyze statements.xlsx")
	fmt.Fprintln(out, "  creditkit serve")
	fmt.Fprintf(out, "\nConfig file: %s\n", ConfigPath())
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their config key rather than their Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Check validates cfg's values and returns an error listing every invalid key.
func Check(cfg *Config) error {
	issues := structIssues(cfg)
	if len(issues) == 0 {
		return nil
	}
	msgs := make([]string, len(issues))
	for i, issue := range issues {
		msgs[i] = issue.Message
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Validate checks config values and returns a list of issues.
func Validate(cfg *Config) []ConfigIssue {
	issues := structIssues(cfg)

	// Check AI provider key
	switch cfg.Provider {
	case "gemini":
		if cfg.APIKeys.Gemini == "" && os.Getenv("GEMINI_API_KEY") == "" {
			issues = append(issues, ConfigIssue{
				Key:      "api_keys.gemini",
				Severity: "warning",
				Message:  "no Gemini API key set; requests are sent without a key parameter",
				Fix:      "export GEMINI_API_KEY=...\nOr: creditkit config set api_keys.gemini ...",
			})
		} else {
			issues = append(issues, ConfigIssue{Key: "api_keys.gemini", Severity: "info", Message: "Gemini API key configured"})
		}
	case "anthropic":
		if cfg.APIKeys.Anthropic == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
			issues = append(issues, ConfigIssue{
				Key:      "api_keys.anthropic",
				Severity: "error",
				Message:  fmt.Sprintf("provider is %q but ANTHROPIC_API_KEY is not set", cfg.Provider),
				Fix:      "export ANTHROPIC_API_KEY=sk-ant-...\nOr: creditkit config set api_keys.anthropic sk-ant-...",
			})
		}
	case "openai":
		if cfg.APIKeys.OpenAI == "" && os.Getenv("OPENAI_API_KEY") == "" {
			issues = append(issues, ConfigIssue{
				Key:      "api_keys.openai",
				Severity: "error",
				Message:  fmt.Sprintf("provider is %q but OPENAI_API_KEY is not set", cfg.Provider),
				Fix:      "export OPENAI_API_KEY=sk-...",
			})
		}
	case "vertex":
		if cfg.Vertex.Project == "" && os.Getenv("GOOGLE_CLOUD_PROJECT") == "" {
			issues = append(issues, ConfigIssue{
				Key:      "vertex.project",
				Severity: "error",
				Message:  "provider is \"vertex\" but no Google Cloud project is set",
				Fix:      "export GOOGLE_CLOUD_PROJECT=...\nOr: creditkit config set vertex.project ...",
			})
		}
	case "ollama":
		issues = append(issues, ConfigIssue{Key: "provider", Severity: "info", Message: "Ollama configured (no API key needed)"})
	}

	if cfg.Provider != "gemini" {
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "warning",
			Message:  fmt.Sprintf("provider %q has no search grounding; results will carry no sources", cfg.Provider),
		})
	}

	if cfg.Server.SessionSecret == "" {
		issues = append(issues, ConfigIssue{
			Key:      "server.session_secret",
			Severity: "info",
			Message:  "no session secret set; a random one is generated per server start",
		})
	}

	return issues
}

func structIssues(cfg *Config) []ConfigIssue {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ConfigIssue{{Severity: "error", Message: err.Error()}}
	}

	issues := make([]ConfigIssue, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		issues = append(issues, ConfigIssue{
			Key:      key,
			Severity: "error",
			Message:  describe(key, fe),
			Fix:      fmt.Sprintf("creditkit config set %s <value>", key),
		})
	}
	return issues
}

func describe(key string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", key)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s (got %v)", key, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s (got %v)", key, fe.Param(), fe.Value())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s (got %v)", key, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s (got %v)", key, fe.Param(), fe.Value())
	case "gtefield":
		return fmt.Sprintf("%s must not be smaller than retry.base (got %v)", key, fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL (got %v)", key, fe.Value())
	case "hostname_port":
		return fmt.Sprintf("%s must look like host:port (got %v)", key, fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation", key, fe.Tag())
	}
}

// ToEnv returns all set config values as a map of env var name -> value.
func ToEnv() map[string]string {
	env := make(map[string]string)
	for _, key := range viper.AllKeys() {
		v := viper.GetString(key)
		if v == "" {
			continue
		}
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		env[name] = v
	}
	return env
}

// Set sets a config value and saves to disk.
func Set(key, value string) error {
	if _, ok := defaults[key]; !ok {
		return fmt.Errorf("unknown config key %q — run 'creditkit config show' to list keys", key)
	}
	viper.Set(key, value)
	return SaveConfig()
}

// Get retrieves a config value.
func Get(key string) string {
	return viper.GetString(key)
}

// Keys returns every known config key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResetConfig deletes the config file and restores defaults.
func ResetConfig() error {
	path := ConfigPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete config: %w", err)
	}
	for k, v := range defaults {
		viper.Set(k, v)
	}
	return nil
}

// SaveConfig writes the current config to ~/.creditkit/config.yaml.
func SaveConfig() error {
	dir := configDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}

	// Set secure permissions
	os.Chmod(path, 0600)
	return nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.Join(configDir(), "config.yaml")
}

// ShowConfig renders cfg as YAML with API keys and the session secret masked.
func ShowConfig(cfg *Config) (string, error) {
	masked := *cfg
	masked.APIKeys.Gemini = mask(cfg.APIKeys.Gemini)
	masked.APIKeys.Anthropic = mask(cfg.APIKeys.Anthropic)
	masked.APIKeys.OpenAI = mask(cfg.APIKeys.OpenAI)
	masked.Server.SessionSecret = mask(cfg.Server.SessionSecret)

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return "", fmt.Errorf("could not encode config: %w", err)
	}
	return fmt.Sprintf("# %s\n%s", ConfigPath(), data), nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return s[:min(6, len(s))] + "****"
}
