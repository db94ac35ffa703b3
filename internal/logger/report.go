package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event records the outcome of one tag in one run.
type Event struct {
	Timestamp  string   `json:"timestamp"`
	RunID      string   `json:"run_id"`
	Tag        string   `json:"tag"`
	Files      int      `json:"files"`
	Analysers  []string `json:"analysers,omitempty"`
	Processors []string `json:"processors,omitempty"`
	Conditions int      `json:"conditions"`
	Strings    int      `json:"strings"`
	RulePath   string   `json:"rule_path,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// Written reports whether a rule was produced for the tag.
func (e Event) Written() bool { return e.RulePath != "" }

// Report appends one JSON line per Event. Safe for concurrent use. A nil
// *Report discards events.
type Report struct {
	file  *os.File
	mu    sync.Mutex
	runID string
}

// NewReport opens (or creates) the report file at path and starts a new run.
func NewReport(path string) (*Report, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	return &Report{file: file, runID: uuid.NewString()}, nil
}

// RunID identifies the run; every event logged through r carries it.
func (r *Report) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

func (r *Report) Log(event Event) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	event.RunID = r.runID

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = r.file.Write(data)
	return err
}

func (r *Report) Close() error {
	if r != nil && r.file != nil {
		return r.file.Close()
	}
	return nil
}

// ReadReport loads every event from a report file. Malformed lines are
// skipped; a missing file yields no events.
func ReadReport(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}
