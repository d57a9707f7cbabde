package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.5-flash-preview-05-20"
)

// GeminiProvider calls the Gemini generateContent endpoint with Google Search
// grounding enabled.
type GeminiProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewGeminiProvider creates a Gemini provider. apiKey may be empty.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{
		baseURL: defaultGeminiBaseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 180 * time.Second},
	}
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Endpoint returns the request URL; the key is only appended when configured.
func (p *GeminiProvider) Endpoint() string {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(p.model))
	if p.apiKey == "" {
		return endpoint
	}
	return endpoint + "?" + url.Values{"key": {p.apiKey}}.Encode()
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	Tools             []geminiTool    `json:"tools"`
	SystemInstruction geminiContent   `json:"systemInstruction"`
}

type geminiWeb struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			GroundingAttributions []struct {
				Title string     `json:"title"`
				URI   string     `json:"uri"`
				Web   *geminiWeb `json:"web"`
			} `json:"groundingAttributions"`
			GroundingChunks []struct {
				Web *geminiWeb `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

// Generate sends one generateContent request.
func (p *GeminiProvider) Generate(ctx context.Context, system, text string) (*Response, error) {
	reqBody := geminiRequest{
		Contents:          []geminiContent{{Parts: []geminiPart{{Text: text}}}},
		Tools:             []geminiTool{{GoogleSearch: &struct{}{}}},
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: system}}},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Provider: p.Name(), Code: resp.StatusCode, Body: string(respBody)}
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &ResponseError{Provider: p.Name(), Err: err}
	}
	return p.extract(&apiResp)
}

func (p *GeminiProvider) extract(apiResp *geminiResponse) (*Response, error) {
	if len(apiResp.Candidates) == 0 {
		return nil, &ResponseError{Provider: p.Name(), Err: errors.New("no candidates in response")}
	}
	candidate := apiResp.Candidates[0]

	if len(candidate.Content.Parts) == 0 || strings.TrimSpace(candidate.Content.Parts[0].Text) == "" {
		return nil, &ResponseError{Provider: p.Name(), Err: errors.New("candidate has no text")}
	}

	out := &Response{
		Text:  candidate.Content.Parts[0].Text,
		Model: apiResp.ModelVersion,
	}
	if out.Model == "" {
		out.Model = p.model
	}

	// Sources are kept as returned; incomplete entries are filtered when rendered.
	if md := candidate.GroundingMetadata; md != nil {
		for _, a := range md.GroundingAttributions {
			src := Source{Title: a.Title, URI: a.URI}
			if a.Web != nil {
				if src.Title == "" {
					src.Title = a.Web.Title
				}
				if src.URI == "" {
					src.URI = a.Web.URI
				}
			}
			out.Sources = append(out.Sources, src)
		}
		for _, c := range md.GroundingChunks {
			if c.Web != nil {
				out.Sources = append(out.Sources, Source{Title: c.Web.Title, URI: c.Web.URI})
			}
		}
	}

	return out, nil
}
