package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const okBody = `{
  "candidates": [{
    "content": {"parts": [{"text": "1. Overall Assessment ..."}]},
    "groundingMetadata": {"groundingAttributions": [
      {"title": "SBV Circular 39", "uri": "https://sbv.gov.vn/39"},
      {"title": "No link"},
      {"web": {"title": "Basel III", "uri": "https://bis.org/basel3"}}
    ]}
  }]
}`

// newTestClient returns a client pointed at server that records sleeps instead of waiting.
func newTestClient(server *httptest.Server, key string) (*Client, *[]time.Duration) {
	p := NewGeminiProvider(key, "test-model")
	p.baseURL = server.URL

	var delays []time.Duration
	c := NewClient(p, Policy{MaxAttempts: 5, Base: time.Second})
	c.Sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func TestSendTransientThenSuccess(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, okBody)
	}))
	defer server.Close()

	c, delays := newTestClient(server, "")
	var events []RetryEvent
	c.OnRetry = func(e RetryEvent) { events = append(events, e) }

	out := c.Send(context.Background(), "sys", "body")

	if out.Status != StatusSuccess {
		t.Fatalf("expected success, got %s: %s", out.Status, out.Text)
	}
	if out.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", out.Attempts)
	}
	if len(*delays) != 2 || (*delays)[0] != time.Second || (*delays)[1] != 2*time.Second {
		t.Errorf("expected delays [1s 2s], got %v", *delays)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 retry events, got %d", len(events))
	}
	if !strings.HasPrefix(out.Text, "1. Overall Assessment") {
		t.Errorf("unexpected text %q", out.Text)
	}
	if len(out.Sources) != 3 {
		t.Fatalf("expected all 3 sources to be extracted, got %d", len(out.Sources))
	}
	if out.Sources[2].URI != "https://bis.org/basel3" {
		t.Errorf("expected nested web source, got %+v", out.Sources[2])
	}
}

func TestSendForbiddenDoesNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c, delays := newTestClient(server, "bad-key")
	out := c.Send(context.Background(), "sys", "body")

	if out.Status != StatusAuthFailure {
		t.Fatalf("expected auth failure, got %s", out.Status)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
	if len(*delays) != 0 {
		t.Errorf("expected no delays, got %v", *delays)
	}
	if !strings.Contains(out.Text, "403 Forbidden") {
		t.Errorf("expected distinct auth message, got %q", out.Text)
	}
	if out.Sources == nil || len(out.Sources) != 0 {
		t.Errorf("expected empty, non-nil sources, got %v", out.Sources)
	}
}

func TestSendUnauthorizedNamesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c, delays := newTestClient(server, "bad-key")
	out := c.Send(context.Background(), "sys", "body")

	if out.Status != StatusAuthFailure || out.Attempts != 1 || len(*delays) != 0 {
		t.Fatalf("expected a single auth failure, got %s after %d attempt(s)", out.Status, out.Attempts)
	}
	if !strings.Contains(out.Text, "401 Unauthorized") || strings.Contains(out.Text, "403") {
		t.Errorf("auth message should name the real status, got %q", out.Text)
	}
}

func TestSendExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, delays := newTestClient(server, "")
	out := c.Send(context.Background(), "sys", "body")

	if out.Status != StatusRetriesExhausted {
		t.Fatalf("expected retries exhausted, got %s", out.Status)
	}
	if calls != 5 {
		t.Errorf("expected 5 calls, got %d", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), *delays)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("delay %d = %s, want %s", i, (*delays)[i], want[i])
		}
	}
	if !strings.Contains(out.Text, "after 5 attempts") {
		t.Errorf("expected exhausted message, got %q", out.Text)
	}
	if len(out.Sources) != 0 {
		t.Errorf("expected no sources, got %v", out.Sources)
	}
}

func TestSendMalformedResponseIsUnexpected(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.WriteString(w, "{not json")
	}))
	defer server.Close()

	c, _ := newTestClient(server, "")
	out := c.Send(context.Background(), "sys", "body")

	if out.Status != StatusUnexpected {
		t.Fatalf("expected unexpected failure, got %s", out.Status)
	}
	if calls != 1 {
		t.Errorf("expected no retry, got %d calls", calls)
	}
	var respErr *ResponseError
	if !errors.As(out.Err, &respErr) {
		t.Errorf("expected *ResponseError, got %T", out.Err)
	}
}

func TestSendNetworkErrorIsRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c, delays := newTestClient(server, "")
	c.Policy.MaxAttempts = 2
	server.Close()

	out := c.Send(context.Background(), "sys", "body")
	if out.Status != StatusRetriesExhausted {
		t.Fatalf("expected retries exhausted, got %s (%v)", out.Status, out.Err)
	}
	if len(*delays) != 1 {
		t.Errorf("expected 1 delay, got %v", *delays)
	}
}

func TestSendCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewGeminiProvider("", "")
	p.baseURL = server.URL
	c := NewClient(p, Policy{MaxAttempts: 3, Base: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	c.OnRetry = func(RetryEvent) { cancel() }

	out := c.Send(ctx, "sys", "body")
	if out.Status != StatusUnexpected {
		t.Errorf("expected unexpected after cancellation, got %s", out.Status)
	}
}

func TestGeminiRequestShape(t *testing.T) {
	var got map[string]any
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1beta/models/test-model:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		query = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, okBody)
	}))
	defer server.Close()

	c, _ := newTestClient(server, "secret")
	c.Send(context.Background(), "persona", "statements")

	if query != "key=secret" {
		t.Errorf("expected key query parameter, got %q", query)
	}
	contents := got["contents"].([]any)
	part := contents[0].(map[string]any)["parts"].([]any)[0].(map[string]any)
	if part["text"] != "statements" {
		t.Errorf("unexpected contents: %v", contents)
	}
	tools := got["tools"].([]any)
	if _, ok := tools[0].(map[string]any)["google_search"]; !ok {
		t.Errorf("expected google_search tool, got %v", tools)
	}
	sys := got["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)
	if sys["text"] != "persona" {
		t.Errorf("unexpected system instruction: %v", sys)
	}
}

func TestGeminiEndpointWithoutKey(t *testing.T) {
	p := NewGeminiProvider("", "m")
	if strings.Contains(p.Endpoint(), "key=") {
		t.Errorf("key should be omitted when unset: %s", p.Endpoint())
	}
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{Base: time.Second, Cap: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if d := p.Delay(i, nil); d != w {
			t.Errorf("Delay(%d) = %s, want %s", i, d, w)
		}
	}

	p.Jitter = 0.5
	d := p.Delay(1, func() float64 { return 0.5 })
	if d != 2500*time.Millisecond {
		t.Errorf("expected jittered delay 2.5s, got %s", d)
	}
	if d := p.Delay(2, func() float64 { return 0.99 }); d != 5*time.Second {
		t.Errorf("jittered delay must respect cap, got %s", d)
	}
}

func TestNewProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewProvider(ProviderConfig{Name: "anthropic"}); err == nil {
		t.Error("expected error without anthropic key")
	}

	p, err := NewProvider(ProviderConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "gemini" {
		t.Errorf("default provider = %q", p.Name())
	}

	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	if _, err := NewProvider(ProviderConfig{Name: "vertex"}); err == nil {
		t.Error("expected error without a Vertex project")
	}
	p, err = NewProvider(ProviderConfig{Name: "vertex", Project: "risk-prod", Location: "europe-west4"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "vertex" {
		t.Errorf("provider = %q, want vertex", p.Name())
	}

	if _, err := NewProvider(ProviderConfig{Name: "watson"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
