package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gzhole/yaraforge/internal/yara"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir   = "conf"
	DefaultMainFile    = "main.yaml"
	DefaultFragmentDir = "conf.d"
	DefaultScoresFile  = "string_scores.tsv"
	DefaultTop         = 6
	DefaultTaskTimeout = 30 * time.Second
)

// Result scopes for analyser outputs.
const (
	// ScopeTag gives each tag's processors only that tag's analyser outputs.
	ScopeTag = "tag"
	// ScopeRun accumulates analyser outputs across every tag of the run.
	ScopeRun = "run"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Tags     map[string]TagConfig `yaml:"tags"`
	Pipeline PipelineConfig       `yaml:"pipeline"`
	Scoring  ScoringConfig        `yaml:"scoring"`
	Analysis AnalysisConfig       `yaml:"analysis"`
	Output   OutputConfig         `yaml:"output"`

	// Path is the main file the configuration was loaded from.
	Path string `yaml:"-"`
	// Fragments describes the conf.d files seen while loading.
	Fragments []FragmentInfo `yaml:"-"`
}

// TagConfig activates a classifier tag and names the analysers and
// processors run for it.
type TagConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Analysers  NameList `yaml:"analysers"`
	Processors NameList `yaml:"processors"`
}

// PipelineConfig controls scheduling of the stages.
type PipelineConfig struct {
	ResultsScope            string         `yaml:"results_scope"`
	IsolateAnalysisFailures *bool          `yaml:"isolate_analysis_failures"`
	TaskTimeout             *time.Duration `yaml:"task_timeout"`
	CacheContent            bool           `yaml:"cache_content"`
}

// Isolate reports whether a failing file is skipped rather than aborting
// the analyser for the whole tag. Defaults to true.
func (p PipelineConfig) Isolate() bool {
	return p.IsolateAnalysisFailures == nil || *p.IsolateAnalysisFailures
}

// Timeout bounds a single classifier, analyser or processor call. Unset
// means DefaultTaskTimeout; an explicit 0 disables the bound.
func (p PipelineConfig) Timeout() time.Duration {
	if p.TaskTimeout == nil {
		return DefaultTaskTimeout
	}
	return *p.TaskTimeout
}

type ScoringConfig struct {
	Table string `yaml:"table"`
	Top   int    `yaml:"top"`
}

type AnalysisConfig struct {
	// DebugDir receives one JSON file of extracted strings per sample.
	DebugDir string `yaml:"debug_dir"`
}

type OutputConfig struct {
	Dir       string `yaml:"dir"`
	Aggregate bool   `yaml:"aggregate"`
}

// NameList accepts a comma-separated string or a YAML list.
// "strings, header" → ["strings", "header"]
type NameList []string

func (n *NameList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*n = splitNames(single)
		return nil
	}
	var list []string
	if err := unmarshal(&list); err != nil {
		return err
	}
	var names []string
	for _, item := range list {
		names = append(names, splitNames(item)...)
	}
	*n = names
	return nil
}

func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// Load reads the main configuration file, merges the conf.d fragments next
// to it, applies defaults and validates the result. A missing file is an
// error: tags absent from configuration are never activated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.Path = path

	base := filepath.Dir(path)
	merged, infos, err := LoadFragments(filepath.Join(base, DefaultFragmentDir), &cfg)
	if err != nil {
		return nil, err
	}
	merged.Fragments = infos

	merged.applyDefaults(base)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

func (c *Config) applyDefaults(base string) {
	if c.Tags == nil {
		c.Tags = make(map[string]TagConfig)
	}
	if c.Pipeline.ResultsScope == "" {
		c.Pipeline.ResultsScope = ScopeTag
	}
	if c.Pipeline.TaskTimeout == nil {
		timeout := DefaultTaskTimeout
		c.Pipeline.TaskTimeout = &timeout
	}
	if c.Scoring.Table == "" {
		c.Scoring.Table = DefaultScoresFile
	}
	if !filepath.IsAbs(c.Scoring.Table) {
		c.Scoring.Table = filepath.Join(base, c.Scoring.Table)
	}
	if c.Scoring.Top == 0 {
		c.Scoring.Top = DefaultTop
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
}

// Validate checks tag identifiers and pipeline settings.
func (c *Config) Validate() error {
	for tag := range c.Tags {
		if !yara.ValidIdentifier(tag) {
			return fmt.Errorf("%w: tag %q is not a valid rule identifier", ErrInvalidConfig, tag)
		}
	}
	switch c.Pipeline.ResultsScope {
	case ScopeTag, ScopeRun:
	default:
		return fmt.Errorf("%w: results_scope must be %q or %q, got %q",
			ErrInvalidConfig, ScopeTag, ScopeRun, c.Pipeline.ResultsScope)
	}
	if c.Pipeline.Timeout() < 0 {
		return fmt.Errorf("%w: task_timeout must not be negative", ErrInvalidConfig)
	}
	if c.Scoring.Top < 0 {
		return fmt.Errorf("%w: scoring.top must not be negative", ErrInvalidConfig)
	}
	return nil
}

// TagEnabled reports whether tag is configured and enabled.
func (c *Config) TagEnabled(tag string) bool {
	t, ok := c.Tags[tag]
	return ok && t.Enabled
}

// EnabledTags returns the enabled tags sorted by name.
func (c *Config) EnabledTags() []string {
	var tags []string
	for tag, t := range c.Tags {
		if t.Enabled {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}
