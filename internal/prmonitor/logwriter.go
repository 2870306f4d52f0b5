package prmonitor

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// LogWriter appends one record per line to a PR's status log, per the
// fixed formats in spec.md §6. The file is opened for append with normal
// sharing so the external dashboard can tail it concurrently; the
// dashboard's own truncation-restart contract (reset its read offset when
// the file shrinks) lives in internal/dashboard, not here.
type LogWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewLogWriter opens (creating if needed) the log file at path for append.
func NewLogWriter(path string) (*LogWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return &LogWriter{path: path, f: f}, nil
}

func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

func (w *LogWriter) writeLine(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.f, line)
}

// statusRecord is the JSON body of a STATUS or TERMINAL line.
type statusRecord struct {
	Top           TopLevelState `json:"state"`
	Checks        CheckCounts   `json:"checks"`
	Approvals     int           `json:"approvals_at_head"`
	Unresolved    int           `json:"unresolved_comments"`
	MergeConflict bool          `json:"merge_conflict"`
	Terminal      string        `json:"terminal,omitempty"`
}

func snapshot(s *MonitorState, terminal string) statusRecord {
	s.Lock()
	defer s.Unlock()
	return statusRecord{
		Top:           s.Top,
		Checks:        s.Aggregate.Checks,
		Approvals:     s.Aggregate.ApprovalsAtHead,
		Unresolved:    len(s.Aggregate.Unresolved),
		MergeConflict: s.Aggregate.MergeConflict,
		Terminal:      terminal,
	}
}

// WriteStatus appends a STATUS|{json} record.
func (w *LogWriter) WriteStatus(s *MonitorState) {
	rec := snapshot(s, "")
	body, _ := json.Marshal(rec)
	w.writeLine("STATUS|" + string(body))
}

// WriteTerminal appends a TERMINAL|{json} record.
func (w *LogWriter) WriteTerminal(s *MonitorState, kind string) {
	rec := snapshot(s, kind)
	body, _ := json.Marshal(rec)
	w.writeLine("TERMINAL|" + string(body))
}

func (w *LogWriter) timestamped(tag, msg string) string {
	return fmt.Sprintf("%s|%s|%s", tag, time.Now().UTC().Format(time.RFC3339), msg)
}

// WriteResuming appends a RESUMING|<ts>|<msg> record.
func (w *LogWriter) WriteResuming(msg string) { w.writeLine(w.timestamped(LogResuming, msg)) }

// WritePaused appends a PAUSED|<ts>|<msg> record.
func (w *LogWriter) WritePaused(msg string) { w.writeLine(w.timestamped(LogPaused, msg)) }

// WriteStopped appends a STOPPED|<ts>|<msg> record.
func (w *LogWriter) WriteStopped(msg string) { w.writeLine(w.timestamped(LogStopped, msg)) }

// WriteError appends an ERROR|<ts>|<msg> record.
func (w *LogWriter) WriteError(msg string) { w.writeLine(w.timestamped(LogError, msg)) }

// readAndRemove reads the full content of a single-shot file and deletes
// it, used by the trigger watcher. Returns an error if the file is already
// gone (a benign race with another consumer).
func readAndRemove(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", err
	}
	return string(data), nil
}
