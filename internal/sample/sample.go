// Package sample models the binary samples fed to the pipeline.
package sample

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoSamples is returned when an input path yields no regular files.
var ErrNoSamples = errors.New("no samples found")

// Task is one sample on disk. Content is read on demand; with caching
// enabled the first successful read is reused for the rest of the run.
type Task struct {
	Path string

	cache bool
	mu    sync.Mutex
	data  []byte
}

// NewTask creates a task for path.
func NewTask(path string, cache bool) *Task {
	return &Task{Path: path, cache: cache}
}

// Read returns the sample's bytes. Callers must not modify the slice.
func (t *Task) Read() ([]byte, error) {
	if !t.cache {
		return os.ReadFile(t.Path)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data != nil {
		return t.data, nil
	}
	data, err := os.ReadFile(t.Path)
	if err != nil {
		return nil, err
	}
	t.data = data
	return data, nil
}

// Collect resolves input to an ordered list of sample paths. A file yields
// itself; a directory is walked recursively in lexical order. Exclude
// patterns are doublestar globs matched against the slash-separated path
// relative to input.
func Collect(input string, excludes []string) ([]string, error) {
	root, err := filepath.Abs(input)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", input, err)
	}

	for _, pattern := range excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input path: %w", err)
	}
	if info.Mode().IsRegular() {
		return []string{root}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path %s is not a file or directory", root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if excluded(filepath.ToSlash(rel), excludes) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: %w", root, ErrNoSamples)
	}
	return paths, nil
}

func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
