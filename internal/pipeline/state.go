package pipeline

import (
	"sync"

	"github.com/gzhole/yaraforge/internal/capability"
	"github.com/gzhole/yaraforge/internal/sample"
)

// ClassificationMap records which samples each classifier tag matched.
// Writers may run concurrently; tags keep the order of their first match
// and each tag's list holds a sample path at most once.
type ClassificationMap struct {
	mu    sync.Mutex
	order []string
	files map[string][]*sample.Task
	seen  map[string]map[string]bool
}

func NewClassificationMap() *ClassificationMap {
	return &ClassificationMap{
		files: make(map[string][]*sample.Task),
		seen:  make(map[string]map[string]bool),
	}
}

// Add appends task to tag's file list unless a task with the same path is
// already there, and reports whether it did.
func (m *ClassificationMap) Add(tag string, task *sample.Task) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths, ok := m.seen[tag]
	if !ok {
		m.order = append(m.order, tag)
		paths = make(map[string]bool)
		m.seen[tag] = paths
	}
	if paths[task.Path] {
		return false
	}
	paths[task.Path] = true
	m.files[tag] = append(m.files[tag], task)
	return true
}

// Tags returns tags in insertion order.
func (m *ClassificationMap) Tags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Files returns the samples classified under tag.
func (m *ClassificationMap) Files(tag string) []*sample.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*sample.Task(nil), m.files[tag]...)
}

// ResultStore accumulates analyser outputs keyed by analyser name. Merges
// append, never replace.
type ResultStore struct {
	mu      sync.Mutex
	results capability.AnalysisResults
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(capability.AnalysisResults)}
}

func (s *ResultStore) Merge(analyser string, outputs []capability.AnalyserOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[analyser] = append(s.results[analyser], outputs...)
}

// Snapshot returns a copy safe to hand to processors.
func (s *ResultStore) Snapshot() capability.AnalysisResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results.Clone()
}
