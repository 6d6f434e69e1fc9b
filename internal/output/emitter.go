package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

type EventEmitter interface {
	Emit(event Event) error
}

// JSONEmitter writes one event per line.
type JSONEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONEmitter(w io.Writer) *JSONEmitter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONEmitter{enc: enc}
}

func (e *JSONEmitter) Emit(event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(event)
}

// HumanEmitter renders events as short status lines. Errors and warnings
// go to errOut, everything else to out. Quiet keeps only errors and the
// events that end an operation; per-poll refresh progress is shown only
// when verbose.
type HumanEmitter struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	quiet   bool
	verbose bool
}

func NewHumanEmitter(out, errOut io.Writer, quiet, verbose bool) *HumanEmitter {
	return &HumanEmitter{out: out, errOut: errOut, quiet: quiet, verbose: verbose}
}

func (e *HumanEmitter) Emit(event Event) error {
	if !e.shows(event) {
		return nil
	}

	line := renderHuman(event)
	e.mu.Lock()
	defer e.mu.Unlock()
	switch event.Level {
	case LevelError:
		_, err := fmt.Fprintln(e.errOut, "ERROR: "+line)
		return err
	case LevelWarn:
		_, err := fmt.Fprintln(e.errOut, "WARN: "+line)
		return err
	}
	_, err := fmt.Fprintln(e.out, line)
	return err
}

func (e *HumanEmitter) shows(event Event) bool {
	if event.Level == LevelError {
		return true
	}
	if e.quiet {
		return event.Level != LevelWarn && endsOperation(event.Event)
	}
	if event.Event == EventRefreshProgress {
		return e.verbose
	}
	return true
}

func endsOperation(name EventName) bool {
	switch name {
	case EventDownloadExited, EventDownloadStopped, EventVerifyFinished, EventRefreshComplete, EventShareComplete:
		return true
	}
	return false
}

// humanDetails lists, per event, the detail keys worth printing and the
// order to print them in.
var humanDetails = map[EventName][]string{
	EventDownloadStarted: {"backend", "pid"},
	EventDownloadExited:  {"code"},
	EventDownloadStopped: {"deleted"},
	EventRefreshStarted:  {"pid"},
	EventRefreshProgress: {"phase", "progress", "currentGame"},
	EventRefreshComplete: {"code"},
	EventShareComplete:   {"duration_ms"},
}

func renderHuman(event Event) string {
	var b strings.Builder
	if event.Item != "" {
		b.WriteString("[" + event.Item + "] ")
	}
	if event.Message != "" {
		b.WriteString(event.Message)
	} else {
		b.WriteString(strings.ReplaceAll(string(event.Event), "_", " "))
	}

	var parts []string
	for _, key := range humanDetails[event.Event] {
		value, ok := event.Details[key]
		if !ok || value == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", key, value))
	}
	if len(parts) > 0 {
		b.WriteString(" (" + strings.Join(parts, " ") + ")")
	}
	return b.String()
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(Event) error { return nil }
