// Package registry holds the static table of built-in classifiers,
// analysers and processors, and discovers the ones a configuration enables.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/gzhole/yaraforge/internal/analyser"
	"github.com/gzhole/yaraforge/internal/capability"
	"github.com/gzhole/yaraforge/internal/classifier"
	"github.com/gzhole/yaraforge/internal/config"
	"github.com/gzhole/yaraforge/internal/processor"
)

// ErrUnknownCapability is returned when an allow-list names a capability
// missing from the table.
var ErrUnknownCapability = errors.New("unknown capability")

// Options carries the settings constructors may need.
type Options struct {
	ScoreTable string
	Top        int
	DebugDir   string
	Logger     *slog.Logger
}

// Entry registers one capability implementation.
type Entry[T any] struct {
	// Name is the classifier tag, or the analyser/processor name used in
	// configuration allow-lists.
	Name        string
	Description string
	// Active decides inclusion at discovery. Nil means always included.
	Active func(cfg *config.Config) bool
	New    func(opts Options) T
}

func (e Entry[T]) active(cfg *config.Config) bool {
	return e.Active == nil || e.Active(cfg)
}

// Table is a set of registrations per capability.
type Table struct {
	Classifiers []Entry[capability.Classifier]
	Analysers   []Entry[capability.Analyser]
	Processors  []Entry[capability.Processor]
}

func tagEnabled(tag string) func(*config.Config) bool {
	return func(cfg *config.Config) bool { return cfg.TagEnabled(tag) }
}

// Builtin returns the table of capabilities shipped with yaraforge.
func Builtin() *Table {
	return &Table{
		Classifiers: []Entry[capability.Classifier]{
			{
				Name:        classifier.TagPE,
				Description: "Windows PE images (MZ header and PE signature)",
				Active:      tagEnabled(classifier.TagPE),
				New:         func(Options) capability.Classifier { return classifier.PE{} },
			},
			{
				Name:        classifier.TagELF,
				Description: "ELF objects, 32 and 64 bit",
				Active:      tagEnabled(classifier.TagELF),
				New:         func(Options) capability.Classifier { return classifier.ELF{} },
			},
			{
				Name:        classifier.TagMachO,
				Description: "Thin Mach-O images, 32 or 64 bit, either byte order",
				Active:      tagEnabled(classifier.TagMachO),
				New:         func(Options) capability.Classifier { return classifier.MachO{} },
			},
		},
		Analysers: []Entry[capability.Analyser]{
			{
				Name:        "strings",
				Description: "printable ASCII and UTF-16LE string runs",
				New: func(o Options) capability.Analyser {
					return analyser.NewStrings(analyser.DefaultMinLength, o.DebugDir)
				},
			},
			{
				Name:        "header",
				Description: "leading bytes of the sample",
				New:         func(Options) capability.Analyser { return analyser.Header{} },
			},
		},
		Processors: []Entry[capability.Processor]{
			{
				Name:        "strings",
				Description: "literals common to every sample, ranked by the scoring table",
				New: func(o Options) capability.Processor {
					return processor.NewStrings(o.ScoreTable, o.Top, o.Logger)
				},
			},
			{
				Name:        "header",
				Description: "shared leading bytes as data checks and a hex string",
				New:         func(Options) capability.Processor { return processor.Header{} },
			},
		},
	}
}

// Set is the outcome of discovery. Every slice is ordered by name.
type Set struct {
	Classifiers []capability.Classifier
	Analysers   []capability.Analyser
	Processors  []capability.Processor
}

// AnalysersFor returns the analysers named in allow, in discovery order.
// Names match case-insensitively.
func (s *Set) AnalysersFor(allow []string) []capability.Analyser {
	var out []capability.Analyser
	for _, a := range s.Analysers {
		if allowed(allow, a.Name()) {
			out = append(out, a)
		}
	}
	return out
}

// ProcessorsFor returns the processors named in allow, in discovery order.
// This is the invocation order used when conditions are combined.
func (s *Set) ProcessorsFor(allow []string) []capability.Processor {
	var out []capability.Processor
	for _, p := range s.Processors {
		if allowed(allow, p.Name()) {
			out = append(out, p)
		}
	}
	return out
}

func allowed(allow []string, name string) bool {
	for _, a := range allow {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// Discover builds every active entry. Classifiers are included only when
// their tag is enabled; analysers and processors are always included and
// gated per tag later. Allow-lists naming an unregistered capability are
// rejected.
func (t *Table) Discover(cfg *config.Config, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := t.checkDuplicates(); err != nil {
		return nil, err
	}

	opts := Options{
		ScoreTable: cfg.Scoring.Table,
		Top:        cfg.Scoring.Top,
		DebugDir:   cfg.Analysis.DebugDir,
		Logger:     logger,
	}
	set := &Set{}

	for _, e := range sorted(t.Classifiers) {
		if !e.active(cfg) {
			continue
		}
		c := e.New(opts)
		if c.Tag() != e.Name {
			return nil, fmt.Errorf("classifier %q reports tag %q", e.Name, c.Tag())
		}
		set.Classifiers = append(set.Classifiers, c)
	}
	for _, e := range sorted(t.Analysers) {
		if !e.active(cfg) {
			continue
		}
		set.Analysers = append(set.Analysers, e.New(opts))
	}
	for _, e := range sorted(t.Processors) {
		if !e.active(cfg) {
			continue
		}
		set.Processors = append(set.Processors, e.New(opts))
	}

	for _, tag := range sortedTags(cfg) {
		tc := cfg.Tags[tag]
		for _, name := range tc.Analysers {
			if !registered(t.Analysers, cfg, name) {
				return nil, fmt.Errorf("tag %s: analyser %q: %w", tag, name, ErrUnknownCapability)
			}
		}
		for _, name := range tc.Processors {
			if !registered(t.Processors, cfg, name) {
				return nil, fmt.Errorf("tag %s: processor %q: %w", tag, name, ErrUnknownCapability)
			}
		}
		if tc.Enabled && !t.hasClassifier(tag) {
			logger.Warn("enabled tag has no classifier; it will never match", "tag", tag)
		}
	}

	logger.Debug("discovered capabilities",
		"classifiers", len(set.Classifiers),
		"analysers", len(set.Analysers),
		"processors", len(set.Processors))
	return set, nil
}

func (t *Table) checkDuplicates() error {
	check := func(kind string, names []string) error {
		seen := make(map[string]bool, len(names))
		for _, n := range names {
			key := strings.ToLower(n)
			if seen[key] {
				return fmt.Errorf("%s %q already registered", kind, n)
			}
			seen[key] = true
		}
		return nil
	}
	if err := check("classifier", names(t.Classifiers)); err != nil {
		return err
	}
	if err := check("analyser", names(t.Analysers)); err != nil {
		return err
	}
	return check("processor", names(t.Processors))
}

func (t *Table) hasClassifier(tag string) bool {
	for _, e := range t.Classifiers {
		if e.Name == tag {
			return true
		}
	}
	return false
}

// registered reports whether name matches an entry included at discovery.
func registered[T any](entries []Entry[T], cfg *config.Config, name string) bool {
	for _, e := range entries {
		if strings.EqualFold(e.Name, name) && e.active(cfg) {
			return true
		}
	}
	return false
}

func names[T any](entries []Entry[T]) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func sorted[T any](entries []Entry[T]) []Entry[T] {
	out := append([]Entry[T](nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedTags(cfg *config.Config) []string {
	tags := make([]string, 0, len(cfg.Tags))
	for tag := range cfg.Tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
