// Package progress provides a terminal spinner for long model calls.
// All output goes to stderr to avoid polluting stdout/pipes.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Spinner shows a spinner while the model is working.
type Spinner struct {
	Label   string
	Enabled bool

	out     io.Writer
	mu      sync.Mutex
	done    chan struct{}
	stopped bool
}

// NewSpinner creates a spinner on stderr.
// Automatically disabled if not a TTY, if --json is set, or CREDITKIT_NO_PROGRESS=1.
func NewSpinner(label string) *Spinner {
	return &Spinner{
		Label:   label,
		Enabled: shouldEnable(),
		out:     os.Stderr,
		done:    make(chan struct{}),
		stopped: true,
	}
}

// SetOutput redirects the spinner, mainly for tests.
func (s *Spinner) SetOutput(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = w
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	if !s.Enabled {
		return
	}

	s.mu.Lock()
	s.stopped = false
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		frames := []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}
		i := 0
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.stopped {
					fmt.Fprintf(s.out, "\r\033[K%c %s", frames[i%len(frames)], s.Label)
					i++
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Stop stops the spinner and prints a result line.
func (s *Spinner) Stop(result string) {
	s.halt()
	if s.Enabled {
		fmt.Fprintf(s.out, "\r\033[K✓ %s\n", result)
	}
}

// Fail stops the spinner and prints a failure line.
func (s *Spinner) Fail(result string) {
	s.halt()
	if s.Enabled {
		fmt.Fprintf(s.out, "\r\033[K%s %s\n", color.RedString("✗"), result)
	}
}

// Warn prints a warning on its own line without stopping the spinner.
// Warnings are shown even when the animation is disabled.
func (s *Spinner) Warn(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := ""
	if s.Enabled && !s.stopped {
		prefix = "\r\033[K"
	}
	fmt.Fprintf(s.out, "%s%s %s\n", prefix, color.YellowString("!"), msg)
}

// Update changes the spinner label while it's running.
func (s *Spinner) Update(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Label = label
}

func (s *Spinner) halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
}

func shouldEnable() bool {
	// Disabled via env var
	if os.Getenv("CREDITKIT_NO_PROGRESS") == "1" {
		return false
	}
	// Disabled when JSON output is requested
	if os.Getenv("CREDITKIT_JSON") == "true" {
		return false
	}
	// Check if stderr is a TTY
	return isTTY()
}

func isTTY() bool {
	stat, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
