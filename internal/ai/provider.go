// Package ai provides a unified interface to the text-generation services used
// for credit-risk analysis, plus a retrying client on top of it.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Source is a citation the model used to ground its answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Response holds the result of a single successful generation call.
type Response struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
	Model   string   `json:"model,omitempty"`
}

// Provider defines the interface that all AI backends must implement.
// Generate performs exactly one attempt; retries belong to Client.
type Provider interface {
	Generate(ctx context.Context, system, text string) (*Response, error)

	// Name returns the provider identifier.
	Name() string
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s returned HTTP %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.Code, body)
}

// IsAuth reports whether the status means the credentials were rejected.
func (e *StatusError) IsAuth() bool {
	return e.Code == http.StatusForbidden || e.Code == http.StatusUnauthorized
}

// ResponseError is returned when a 2xx response cannot be understood.
type ResponseError struct {
	Provider string
	Err      error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("could not parse %s response: %v", e.Provider, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// ProviderConfig selects and configures a backend.
type ProviderConfig struct {
	Name    string
	Model   string
	APIKey  string
	BaseURL string

	// Vertex AI only.
	Project  string
	Location string
}

// NewProvider creates a provider instance based on the provider name.
// Missing API keys fall back to the provider's usual environment variable.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "gemini":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		// An empty key is allowed: the endpoint may be authenticated by the environment.
		p := NewGeminiProvider(key, cfg.Model)
		if cfg.BaseURL != "" {
			p.baseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		return p, nil
	case "anthropic":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set — get your API key at https://console.anthropic.com/settings/keys")
		}
		p := NewAnthropicProvider(key, cfg.Model)
		if cfg.BaseURL != "" {
			p.url = cfg.BaseURL
		}
		return p, nil
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		p := NewOpenAIProvider(key, cfg.Model)
		if cfg.BaseURL != "" {
			p.url = cfg.BaseURL
		}
		return p, nil
	case "ollama":
		host := cfg.BaseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaProvider(host, cfg.Model), nil
	case "vertex":
		project := cfg.Project
		if project == "" {
			project = os.Getenv("GOOGLE_CLOUD_PROJECT")
		}
		if project == "" {
			return nil, fmt.Errorf("no Google Cloud project set for Vertex AI — set vertex.project or GOOGLE_CLOUD_PROJECT")
		}
		return NewVertexProvider(project, cfg.Location, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q — supported providers: gemini, vertex, anthropic, openai, ollama", cfg.Name)
	}
}
