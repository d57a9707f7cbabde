package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Status tags the outcome of Client.Send.
type Status int

const (
	// StatusSuccess means Text holds generated content.
	StatusSuccess Status = iota
	// StatusAuthFailure means the service rejected the credentials; no retry was made.
	StatusAuthFailure
	// StatusRetriesExhausted means every attempt failed with a transient error.
	StatusRetriesExhausted
	// StatusUnexpected means a non-retryable, unclassified failure.
	StatusUnexpected
)

// String returns a stable name for the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusAuthFailure:
		return "auth_failure"
	case StatusRetriesExhausted:
		return "retries_exhausted"
	default:
		return "unexpected"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name written by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	for st := StatusSuccess; st <= StatusUnexpected; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Outcome is the tagged result of a send. For every status other than
// StatusSuccess, Text is a human-readable failure message and Sources is empty.
type Outcome struct {
	Status   Status   `json:"status"`
	Text     string   `json:"text"`
	Sources  []Source `json:"sources"`
	Model    string   `json:"model,omitempty"`
	Attempts int      `json:"attempts"`
	Err      error    `json:"-"`
}

// OK reports whether the outcome carries generated content.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

// Policy configures retries. Attempt i (0-based) that fails transiently is
// followed by a delay of min(Base*2^i, Cap), plus up to Jitter*delay extra.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Jitter      float64
}

// DefaultPolicy returns 5 attempts starting at one second, capped at 30 seconds.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Base:        time.Second,
		Cap:         30 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt. rnd supplies values
// in [0,1) for jitter and may be nil when Jitter is zero.
func (p Policy) Delay(attempt int, rnd func() float64) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt)) * float64(p.Base))
	if p.Cap > 0 && (d > p.Cap || d <= 0) {
		d = p.Cap
	}
	if p.Jitter > 0 && rnd != nil {
		d += time.Duration(float64(d) * p.Jitter * rnd())
		if p.Cap > 0 && d > p.Cap {
			d = p.Cap
		}
	}
	return d
}

// RetryEvent describes a failed attempt that will be (or could not be) retried.
type RetryEvent struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Err         error
}

// Client sends analysis requests through a Provider with bounded retries.
type Client struct {
	Provider Provider
	Policy   Policy
	Logger   *slog.Logger

	// OnRetry, if set, is called after every transient failure.
	OnRetry func(RetryEvent)

	// Sleep waits between attempts. Tests replace it to record delays.
	Sleep func(ctx context.Context, d time.Duration) error

	rand func() float64
}

// NewClient creates a client for the provider with the given retry policy.
func NewClient(p Provider, policy Policy) *Client {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	return &Client{
		Provider: p,
		Policy:   policy,
		Logger:   slog.Default(),
		Sleep:    sleepContext,
		rand:     rand.Float64,
	}
}

// Send runs up to Policy.MaxAttempts attempts and classifies the result.
func (c *Client) Send(ctx context.Context, system, text string) Outcome {
	maxAttempts := c.Policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	logger := c.logger().With(slog.String("provider", c.Provider.Name()))

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := c.Provider.Generate(ctx, system, text)
		if err == nil {
			logger.Debug("model call succeeded", slog.Int("attempt", attempt+1), slog.Int("sources", len(resp.Sources)))
			if resp.Sources == nil {
				resp.Sources = []Source{}
			}
			return Outcome{
				Status:   StatusSuccess,
				Text:     resp.Text,
				Sources:  resp.Sources,
				Model:    resp.Model,
				Attempts: attempt + 1,
			}
		}

		switch classify(ctx, err) {
		case classAuth:
			logger.Error("model call rejected credentials", slog.String("error", err.Error()))
			return failure(StatusAuthFailure, attempt+1, err, authMessage(err))
		case classUnexpected:
			logger.Error("model call failed", slog.String("error", err.Error()))
			return failure(StatusUnexpected, attempt+1, err, fmt.Sprintf("Unexpected error: %v", err))
		}

		lastErr = err
		var delay time.Duration
		if attempt < maxAttempts-1 {
			delay = c.Policy.Delay(attempt, c.rand)
		}
		logger.Warn("model call failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		if c.OnRetry != nil {
			c.OnRetry(RetryEvent{Attempt: attempt + 1, MaxAttempts: maxAttempts, Delay: delay, Err: err})
		}

		if attempt < maxAttempts-1 {
			if err := c.sleep(ctx, delay); err != nil {
				return failure(StatusUnexpected, attempt+1, err, fmt.Sprintf("Unexpected error: %v", err))
			}
		}
	}

	return failure(StatusRetriesExhausted, maxAttempts, lastErr,
		fmt.Sprintf("Failed after %d attempts: could not reach the AI service.", maxAttempts))
}

// authMessage names the status the service actually answered with.
func authMessage(err error) string {
	code := http.StatusForbidden
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		code = statusErr.Code
	}
	return fmt.Sprintf("Failed: authentication error (%d %s). Check the API key configuration.", code, http.StatusText(code))
}

func failure(status Status, attempts int, err error, msg string) Outcome {
	return Outcome{
		Status:   status,
		Text:     msg,
		Sources:  []Source{},
		Attempts: attempts,
		Err:      err,
	}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep == nil {
		return sleepContext(ctx, d)
	}
	return c.Sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

type errorClass int

const (
	classRetryable errorClass = iota
	classAuth
	classUnexpected
)

func classify(ctx context.Context, err error) errorClass {
	if ctx.Err() != nil {
		return classUnexpected
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.IsAuth() {
			return classAuth
		}
		return classRetryable
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return classRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return classRetryable
	}

	return classUnexpected
}
