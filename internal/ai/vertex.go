package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultVertexModel    = "gemini-1.5-pro"
	defaultVertexLocation = "us-central1"
)

// VertexProvider calls Gemini through Vertex AI with Application Default
// Credentials. It has no search grounding, so Sources stay empty.
type VertexProvider struct {
	project  string
	location string
	model    string

	mu     sync.Mutex
	client *genai.Client

	// generate performs the call; tests replace it.
	generate func(ctx context.Context, system, text string) (*genai.GenerateContentResponse, error)
}

// NewVertexProvider creates a Vertex AI provider. The underlying client is
// created on the first call.
func NewVertexProvider(project, location, model string) *VertexProvider {
	if location == "" {
		location = defaultVertexLocation
	}
	if model == "" {
		model = defaultVertexModel
	}
	p := &VertexProvider{project: project, location: location, model: model}
	p.generate = p.call
	return p
}

// Name returns the provider identifier.
func (p *VertexProvider) Name() string {
	return "vertex"
}

// Generate sends one GenerateContent request.
func (p *VertexProvider) Generate(ctx context.Context, system, text string) (*Response, error) {
	resp, err := p.generate(ctx, system, text)
	if err != nil {
		return nil, p.wrapError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &ResponseError{Provider: p.Name(), Err: errors.New("no candidates in response")}
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return nil, &ResponseError{Provider: p.Name(), Err: errors.New("candidate has no text")}
	}
	return &Response{Text: b.String(), Model: p.model}, nil
}

func (p *VertexProvider) call(ctx context.Context, system, text string) (*genai.GenerateContentResponse, error) {
	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	model := client.GenerativeModel(p.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	return model.GenerateContent(ctx, genai.Text(text))
}

func (p *VertexProvider) connect(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, p.project, p.location)
	if err != nil {
		return nil, fmt.Errorf("could not create Vertex AI client: %w", err)
	}
	p.client = client
	return client, nil
}

// wrapError maps gRPC status codes onto StatusError so the client retries
// and short-circuits the same way it does for the HTTP providers.
func (p *VertexProvider) wrapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	return &StatusError{Provider: p.Name(), Code: httpStatus(st.Code()), Body: st.Message()}
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
