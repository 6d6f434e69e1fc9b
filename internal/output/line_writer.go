package output

import (
	"strings"
	"sync"
)

// LineWriter is an io.Writer that splits worker output on '\n' and '\r'
// and hands each non-empty trimmed line to a callback. Workers redraw
// progress with carriage returns, so both terminate a line.
type LineWriter struct {
	onLine func(string)

	mu  sync.Mutex
	buf []byte
}

func NewLineWriter(onLine func(line string)) *LineWriter {
	return &LineWriter{onLine: onLine, buf: make([]byte, 0, 256)}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, b := range p {
		switch b {
		case '\n', '\r':
			w.flushLocked()
		default:
			w.buf = append(w.buf, b)
		}
	}
	return len(p), nil
}

// Flush delivers a trailing line that was not newline-terminated.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

func (w *LineWriter) flushLocked() {
	if len(w.buf) == 0 {
		return
	}
	line := strings.TrimSpace(string(w.buf))
	w.buf = w.buf[:0]
	if line == "" || w.onLine == nil {
		return
	}
	w.onLine(line)
}

// LooksLikeWarningOrError reports whether a worker line should be surfaced
// at warn level rather than debug.
func LooksLikeWarningOrError(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "warning:") ||
		strings.HasPrefix(lower, "warn:") ||
		strings.HasPrefix(lower, "error:") ||
		strings.Contains(lower, "traceback")
}
