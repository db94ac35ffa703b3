package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gzhole/yaraforge/internal/yara"
)

// AggregateFile is the document written by an AggregateSink.
const AggregateFile = "aggregate.yar"

// Sink receives assembled rules.
type Sink interface {
	// Write stores rule and returns the path it will end up in.
	Write(rule *yara.Rule) (string, error)
	// Close flushes buffered rules.
	Close() error
}

// DirSink writes each rule to <dir>/<name>.yar.
type DirSink struct {
	Dir string
}

func (s DirSink) Write(rule *yara.Rule) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(s.Dir, rule.Name+".yar")
	if err := os.WriteFile(path, []byte(rule.String()), 0644); err != nil {
		return "", fmt.Errorf("writing rule %s: %w", rule.Name, err)
	}
	return path, nil
}

func (DirSink) Close() error { return nil }

// AggregateSink concatenates every rule, in write order, into one document
// written on Close.
type AggregateSink struct {
	Dir string

	mu    sync.Mutex
	rules []string
}

func (s *AggregateSink) Path() string { return filepath.Join(s.Dir, AggregateFile) }

func (s *AggregateSink) Write(rule *yara.Rule) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule.String())
	return s.Path(), nil
}

// Close writes the aggregate document. Nothing is written when no rule was
// produced.
func (s *AggregateSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rules) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := os.WriteFile(s.Path(), []byte(strings.Join(s.rules, "\n")), 0644); err != nil {
		return fmt.Errorf("writing aggregate: %w", err)
	}
	return nil
}
