package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
)

func TestNewSpinnerDisabledWithEnv(t *testing.T) {
	t.Setenv("CREDITKIT_NO_PROGRESS", "1")
	s := NewSpinner("test")
	if s.Enabled {
		t.Error("expected spinner to be disabled with CREDITKIT_NO_PROGRESS=1")
	}
}

func TestNewSpinnerDisabledWithJSON(t *testing.T) {
	t.Setenv("CREDITKIT_JSON", "true")
	s := NewSpinner("test")
	if s.Enabled {
		t.Error("expected spinner to be disabled with CREDITKIT_JSON=true")
	}
}

func TestSpinnerStartStopDisabled(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner("test")
	s.Enabled = false
	s.SetOutput(&buf)

	// Start and stop should not panic or write when disabled
	s.Start()
	s.Stop("done")
	if buf.Len() != 0 {
		t.Errorf("disabled spinner wrote %q", buf.String())
	}
}

func TestSpinnerStartStop(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner("analyzing")
	s.Enabled = true
	s.SetOutput(&buf)

	s.Start()
	time.Sleep(100 * time.Millisecond) // Let a few frames render
	s.Stop("complete")
	s.Stop("again") // second stop must not panic

	if !strings.Contains(buf.String(), "✓ complete") {
		t.Errorf("expected completion line, got %q", buf.String())
	}
}

func TestSpinnerWarnWhenDisabled(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	s := NewSpinner("test")
	s.Enabled = false
	s.SetOutput(&buf)

	s.Warn("Attempt 1/5 failed")
	if buf.String() != "! Attempt 1/5 failed\n" {
		t.Errorf("unexpected warning output %q", buf.String())
	}
}

func TestSpinnerUpdate(t *testing.T) {
	s := NewSpinner("initial")
	s.Update("updated")
	if s.Label != "updated" {
		t.Errorf("expected label 'updated', got %q", s.Label)
	}
}
