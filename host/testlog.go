package host

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// testLog keeps the tail of the test log in memory and mirrors it to a file.
type testLog struct {
	mu     sync.Mutex
	limit  int
	buf    strings.Builder
	file   *os.File
	path   string
	active bool
}

func newTestLog(path string, limit int) (*testLog, error) {
	l := &testLog{limit: limit, path: path}
	if path == "" {
		return l, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening test log: %w", err)
	}
	l.file = f
	return l, nil
}

func (l *testLog) clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Reset()
	if l.file == nil {
		return nil
	}
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	_, err := l.file.Seek(0, 0)
	return err
}

func (l *testLog) write(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.WriteString(text)
	if l.buf.Len() > l.limit {
		tail := l.buf.String()[l.buf.Len()-l.limit:]
		// Cut at a line boundary when possible.
		if i := strings.IndexByte(tail, '\n'); i >= 0 && i < len(tail)-1 {
			tail = tail[i+1:]
		}
		l.buf.Reset()
		l.buf.WriteString(tail)
	}
	if l.file == nil {
		return nil
	}
	_, err := l.file.WriteString(text)
	return err
}

func (l *testLog) text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func (l *testLog) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (h *Host) ClearLog() {
	if err := h.testLog.clear(); err != nil {
		h.log.Warn("Failed to clear test log", "err", err)
	}
}

func (h *Host) WriteToLog(text string) {
	if err := h.testLog.write(text); err != nil {
		h.log.Warn("Failed to write test log", "err", err)
	}
}

// ActivateLog marks the log as the one the user is looking at.
func (h *Host) ActivateLog() {
	h.testLog.mu.Lock()
	h.testLog.active = true
	h.testLog.mu.Unlock()
	h.log.Debug("Test log activated", "file", h.testLog.path)
}

// LogText returns the retained tail of the test log.
func (h *Host) LogText() string {
	return h.testLog.text()
}

func (h *Host) LogActive() bool {
	h.testLog.mu.Lock()
	defer h.testLog.mu.Unlock()
	return h.testLog.active
}
