// Package shell provides the interactive creditkit REPL.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/klytics/creditkit/internal/analysis"
	"github.com/klytics/creditkit/internal/output"
)

// errExit is returned by Eval for exit and quit.
var errExit = errors.New("exit")

// Session manages an interactive shell over one analysis session.
type Session struct {
	Analysis       *analysis.Session
	In             io.ReadCloser // nil means the terminal
	Out            io.Writer
	CommandHistory []string
	HistoryFile    string
	StartTime      time.Time

	// KnownCommands is the list of commands for completion.
	KnownCommands []string

	mu   sync.Mutex
	path string
}

// NewSession creates a new interactive session printing to stdout.
func NewSession(a *analysis.Session) *Session {
	home, _ := os.UserHomeDir()
	histFile := filepath.Join(home, ".creditkit", "shell_history")

	// Ensure parent dir exists
	os.MkdirAll(filepath.Dir(histFile), 0755)

	return &Session{
		Analysis:    a,
		Out:         os.Stdout,
		HistoryFile: histFile,
		StartTime:   time.Now(),
		KnownCommands: []string{
			"load", "status", "prompt", "analyze", "result", "sources",
			"history", "help", "exit", "quit",
		},
	}
}

// Run starts the REPL loop. Blocks until 'exit', Ctrl+D or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "creditkit> ",
		HistoryFile:     s.HistoryFile,
		AutoComplete:    readline.NewPrefixCompleter(s.buildCompleter()...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           s.In,
		Stdout:          s.Out,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	// Readline blocks on input; closing it is the only way to stop it early.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			rl.Close()
		case <-done:
		}
	}()

	fmt.Fprintln(s.Out, "creditkit — credit-risk analysis shell")
	fmt.Fprintln(s.Out, "Type 'help' for commands, 'exit' to quit.")
	fmt.Fprintln(s.Out)

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		if err := s.Eval(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				break
			}
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	fmt.Fprintf(s.Out, "\nSession ended. %d commands run in %s.\n",
		len(s.CommandHistory), formatDuration(time.Since(s.StartTime)))
	return nil
}

// Eval runs a single command line.
func (s *Session) Eval(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	args := strings.Fields(line)
	cmd := args[0]
	if cmd == "exit" || cmd == "quit" {
		return errExit
	}
	s.CommandHistory = append(s.CommandHistory, line)

	w := output.NewWriterTo(s.Out)

	switch cmd {
	case "help":
		s.printHelp()
	case "history":
		for i, c := range s.CommandHistory {
			fmt.Fprintf(s.Out, "  %d  %s\n", i+1, c)
		}
	case "load":
		if len(args) < 2 {
			return fmt.Errorf("usage: load <file.xlsx>")
		}
		return s.Load(strings.TrimSpace(strings.TrimPrefix(line, "load")))
	case "status":
		w.WriteSummary(s.Analysis.Snapshot())
	case "prompt":
		p := s.Analysis.Prepared()
		if p == nil {
			return analysis.ErrNoWorkbook
		}
		if !p.Ready() {
			return p.MissingError()
		}
		fmt.Fprintln(s.Out, p.Request.Body)
	case "analyze":
		return s.analyze(ctx, w)
	case "result":
		w.WriteResult(s.Analysis.Snapshot().Result)
	case "sources":
		r := s.Analysis.Snapshot().Result
		if r == nil {
			fmt.Fprintln(s.Out, "No analysis has been run yet.")
			return nil
		}
		if !r.OK {
			fmt.Fprintln(s.Out, "The last analysis failed; there are no sources.")
			return nil
		}
		w.WriteSources(r)
	default:
		return fmt.Errorf("unknown command %q — type 'help' for the list", cmd)
	}
	return nil
}

// Load reads path into the session and prints a summary. It is also the
// reload hook used by --watch.
func (s *Session) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", path, err)
	}
	if err := s.Analysis.Load(filepath.Base(path), data); err != nil {
		return err
	}

	s.mu.Lock()
	s.path = path
	s.mu.Unlock()

	output.NewWriterTo(s.Out).WriteSummary(s.Analysis.Snapshot())
	return nil
}

// Path returns the last loaded file path.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Session) analyze(ctx context.Context, w *output.Writer) error {
	if p := s.Analysis.Prepared(); p.Ready() {
		fmt.Fprintf(s.Out, "Analyzing %s (%d characters)...\n", p.FileName, p.Request.Size())
	}

	if _, err := s.Analysis.Run(ctx); err != nil {
		return err
	}

	v := s.Analysis.Snapshot()
	for _, n := range v.Notices {
		color.New(color.FgYellow).Fprintf(s.Out, "! %s\n", n)
	}
	w.WriteResult(v.Result)
	return nil
}

// Complete returns tab-completion candidates for the given input.
func (s *Session) Complete(input string) []string {
	input = strings.TrimSpace(input)
	if input == "" {
		return s.KnownCommands
	}

	var matches []string
	for _, cmd := range s.KnownCommands {
		if strings.HasPrefix(cmd, input) {
			matches = append(matches, cmd)
		}
	}
	sort.Strings(matches)
	return matches
}

func (s *Session) printHelp() {
	fmt.Fprintln(s.Out, "Commands:")
	fmt.Fprintln(s.Out, "  load <file.xlsx>  load a workbook with the CDKT, KQHDKD and BCLCTT sheets")
	fmt.Fprintln(s.Out, "  status            show the loaded file, missing sheets and prompt size")
	fmt.Fprintln(s.Out, "  prompt            print the prompt that will be sent")
	fmt.Fprintln(s.Out, "  analyze           run the credit-risk analysis")
	fmt.Fprintln(s.Out, "  result            show the last result")
	fmt.Fprintln(s.Out, "  sources           show the sources cited by the last result")
	fmt.Fprintln(s.Out, "  history           show command history")
	fmt.Fprintln(s.Out, "  exit              leave the shell")
}

func (s *Session) buildCompleter() []readline.PrefixCompleterInterface {
	var items []readline.PrefixCompleterInterface
	for _, cmd := range s.KnownCommands {
		if cmd == "load" {
			items = append(items, readline.PcItem(cmd, readline.PcItemDynamic(listWorkbooks)))
			continue
		}
		items = append(items, readline.PcItem(cmd))
	}
	return items
}

// listWorkbooks offers .xlsx files in the current directory.
func listWorkbooks(string) []string {
	matches, _ := filepath.Glob("*.xlsx")
	return matches
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", m, s)
}
