package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klytics/creditkit/internal/ai"
	"github.com/klytics/creditkit/internal/statements"
)

var (
	// ErrNoWorkbook is returned when an analysis is triggered before any upload.
	ErrNoWorkbook = errors.New("no workbook loaded — upload an .xlsx file first")
	// ErrRunning is returned when an analysis is triggered while one is in flight.
	ErrRunning = errors.New("an analysis is already running for this session")
)

// State is a session's position in the upload/analyze cycle.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StateRunning
	StateShown
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateRunning:
		return "running"
	case StateShown:
		return "shown"
	default:
		return "idle"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateShown; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// Session holds one user's workbook, last result and notices. All methods are
// safe for concurrent use.
type Session struct {
	ID string

	analyzer *Analyzer

	mu         sync.Mutex
	state      State
	prepared   *Prepared
	result     *Result
	notices    []string
	generation uint64
	lastSeen   time.Time

	// cancel is set while a model call is in flight, independent of state:
	// a new upload moves state to Loaded before the old call returns.
	cancel context.CancelFunc
}

// NewSession creates an idle session.
func NewSession(id string, analyzer *Analyzer) *Session {
	return &Session{ID: id, analyzer: analyzer, lastSeen: time.Now()}
}

// Load replaces the session's workbook. On a load error the session is left
// unchanged and the error (a *xlsx.LoadError) is returned. The previous result
// stays visible until the next run. A run still in flight is cancelled.
func (s *Session) Load(name string, data []byte) error {
	p, err := s.analyzer.Prepare(name, data)
	if err != nil {
		s.touch()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.prepared = p
	s.notices = nil
	s.generation++
	s.state = StateLoaded
	s.lastSeen = time.Now()
	return nil
}

// Run triggers an analysis of the current workbook. It fails with
// ErrNoWorkbook, a *statements.MissingError or ErrRunning without calling the
// model. ErrRunning is returned until the previous call has returned, even if
// a newer upload cancelled it. The session lock is not held during the model
// call.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.prepared == nil {
		s.mu.Unlock()
		return nil, ErrNoWorkbook
	}
	if s.cancel != nil {
		s.mu.Unlock()
		return nil, ErrRunning
	}
	if err := s.prepared.MissingError(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	prepared := s.prepared
	gen := s.generation
	prev := s.state
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	s.state = StateRunning
	s.notices = nil
	s.lastSeen = time.Now()
	s.mu.Unlock()

	res, err := s.analyzer.Analyze(runCtx, prepared, func(e ai.RetryEvent) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation == gen {
			s.notices = append(s.notices, RetryNotice(e))
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil
	s.lastSeen = time.Now()
	if s.generation != gen {
		// A newer upload replaced the workbook; its state wins.
		return res, err
	}
	if err != nil {
		s.state = prev
		return nil, err
	}
	s.result = res
	s.state = StateShown
	return res, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the last stored result, or nil.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Prepared returns the current workbook derivation, or nil.
func (s *Session) Prepared() *Prepared {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepared
}

// busy reports whether a model call is in flight.
func (s *Session) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// View is an immutable snapshot of a session for rendering.
type View struct {
	ID          string             `json:"id"`
	State       State              `json:"state"`
	FileName    string             `json:"fileName,omitempty"`
	Sheets      []string           `json:"sheets,omitempty"`
	Missing     []string           `json:"missing,omitempty"`
	Blocks      []statements.Block `json:"blocks,omitempty"`
	PromptChars int                `json:"promptChars"`
	MaxRows     int                `json:"maxRows"`
	CanRun      bool               `json:"canRun"`
	Notices     []string           `json:"notices,omitempty"`
	Result      *ResultView        `json:"result,omitempty"`
}

// ResultView is the renderable part of a Result. Sources holds only entries
// with both a title and a URI.
type ResultView struct {
	Status     ai.Status   `json:"status"`
	OK         bool        `json:"ok"`
	Text       string      `json:"text"`
	Sources    []ai.Source `json:"sources"`
	Attempts   int         `json:"attempts"`
	Model      string      `json:"model,omitempty"`
	FileName   string      `json:"fileName"`
	FinishedAt time.Time   `json:"finishedAt"`
}

// Snapshot returns the current view.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:      s.ID,
		State:   s.state,
		MaxRows: s.analyzer.Format.MaxRows,
		Notices: append([]string(nil), s.notices...),
	}
	if v.MaxRows <= 0 {
		v.MaxRows = statements.DefaultMaxRows
	}

	if p := s.prepared; p != nil {
		v.FileName = p.FileName
		v.Sheets = append([]string(nil), p.Sheets...)
		v.Blocks = append([]statements.Block(nil), p.Blocks...)
		for _, r := range p.Missing {
			v.Missing = append(v.Missing, r.Description)
		}
		if p.Request != nil {
			v.PromptChars = p.Request.Size()
		}
		v.CanRun = p.Ready() && s.cancel == nil
	}

	if r := s.result; r != nil {
		v.Result = &ResultView{
			Status:     r.Outcome.Status,
			OK:         r.Outcome.OK(),
			Text:       r.Outcome.Text,
			Sources:    FilterSources(r.Outcome.Sources),
			Attempts:   r.Outcome.Attempts,
			Model:      r.Outcome.Model,
			FileName:   r.FileName,
			FinishedAt: r.FinishedAt,
		}
	}
	return v
}
