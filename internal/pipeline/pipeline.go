// Package pipeline schedules classification, analysis and processing of a
// sample set and assembles one rule per classifier tag.
//
// Stages are strict barriers: every classifier finishes over every sample
// before any tag is analysed, and a tag's analysers all finish before its
// processors start. Tags are handled one at a time, in the order they were
// first matched.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gzhole/yaraforge/internal/capability"
	"github.com/gzhole/yaraforge/internal/config"
	"github.com/gzhole/yaraforge/internal/logger"
	"github.com/gzhole/yaraforge/internal/metrics"
	"github.com/gzhole/yaraforge/internal/registry"
	"github.com/gzhole/yaraforge/internal/sample"
	"github.com/gzhole/yaraforge/internal/yara"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs the pipeline over the tasks added to it.
type Scheduler struct {
	cfg     *config.Config
	set     *registry.Set
	sink    Sink
	logger  *slog.Logger
	report  *logger.Report
	metrics *metrics.Metrics
	tasks   []*sample.Task
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// WithReport records one event per tag.
func WithReport(r *logger.Report) Option { return func(s *Scheduler) { s.report = r } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

func NewScheduler(cfg *config.Config, set *registry.Set, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{cfg: cfg, set: set, sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTask queues a sample. Tasks must be added before Run.
func (s *Scheduler) AddTask(task *sample.Task) {
	s.tasks = append(s.tasks, task)
}

// TagOutcome describes what happened to one tag.
type TagOutcome struct {
	Tag        string
	Files      int
	Conditions int
	Rule       *yara.Rule
	Path       string
	Err        error
}

// Summary is the result of a run.
type Summary struct {
	Tasks int
	Tags  []TagOutcome
}

// Written returns the outcomes that produced a rule.
func (s *Summary) Written() []TagOutcome {
	var out []TagOutcome
	for _, t := range s.Tags {
		if t.Rule != nil {
			out = append(out, t)
		}
	}
	return out
}

// Run executes every stage. Per-tag failures are recorded in the summary
// and never abort sibling tags; only cancellation of ctx or a sink flush
// failure returns an error.
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{Tasks: len(s.tasks)}
	log := s.logger
	if id := s.report.RunID(); id != "" {
		log = log.With("run", id)
	}

	classified, err := s.classify(ctx, log)
	if err != nil {
		return summary, err
	}

	store := NewResultStore()
	for _, tag := range classified.Tags() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if s.cfg.Pipeline.ResultsScope != config.ScopeRun {
			store = NewResultStore()
		}
		outcome := s.runTag(ctx, log.With("tag", tag), tag, classified.Files(tag), store)
		summary.Tags = append(summary.Tags, outcome)
	}

	if err := s.sink.Close(); err != nil {
		return summary, err
	}
	return summary, nil
}

// classify runs every enabled classifier over every task. Failures count
// as "no match" for that task.
func (s *Scheduler) classify(ctx context.Context, log *slog.Logger) (*ClassificationMap, error) {
	defer s.metrics.ObserveStage("classification", time.Now())
	classified := NewClassificationMap()
	classifiers := s.set.Classifiers
	if len(classifiers) == 0 {
		log.Warn("no classifier enabled")
		return classified, nil
	}

	var g errgroup.Group
	g.SetLimit(len(classifiers))

	for _, c := range classifiers {
		g.Go(func() error {
			for _, task := range s.tasks {
				if err := ctx.Err(); err != nil {
					return err
				}
				matched, err := invoke(ctx, s.cfg.Pipeline.Timeout(), func(ctx context.Context) (bool, error) {
					data, err := task.Read()
					if err != nil {
						return false, err
					}
					return c.Match(data)
				})
				if err != nil {
					log.Warn("classifier failed", "classifier", c.Tag(), "file", task.Path, "error", err)
					s.metrics.Failure("classifier", c.Tag())
					continue
				}
				if matched && classified.Add(c.Tag(), task) {
					s.metrics.FileClassified(c.Tag())
					log.Debug("file classified", "file", task.Path, "tag", c.Tag())
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debug("finished executing classifiers", "tags", len(classified.Tags()))
	return classified, nil
}

func (s *Scheduler) runTag(ctx context.Context, log *slog.Logger, tag string, tasks []*sample.Task, store *ResultStore) TagOutcome {
	start := time.Now()
	outcome := TagOutcome{Tag: tag, Files: len(tasks)}
	tc := s.cfg.Tags[tag]

	analysers := s.set.AnalysersFor(tc.Analysers)
	processors := s.set.ProcessorsFor(tc.Processors)

	event := logger.Event{
		Tag:        tag,
		Files:      len(tasks),
		Analysers:  capabilityNames(analysers),
		Processors: capabilityNames(processors),
	}
	defer func() {
		event.Conditions = outcome.Conditions
		event.RulePath = outcome.Path
		if outcome.Rule != nil {
			event.Strings = len(outcome.Rule.Strings)
		}
		if outcome.Err != nil {
			event.Error = outcome.Err.Error()
		}
		event.DurationMS = time.Since(start).Milliseconds()
		if err := s.report.Log(event); err != nil {
			log.Warn("failed to write run report", "error", err)
		}
	}()

	s.analyse(ctx, log, tasks, analysers, store)
	conditions := s.process(ctx, log, processors, store.Snapshot())

	for _, c := range conditions {
		if c != nil {
			outcome.Conditions++
		}
	}

	rule, err := yara.Assemble(tag, conditions)
	if err != nil {
		if errors.Is(err, yara.ErrNoConditions) {
			log.Info("no conditions produced; skipping rule")
		} else {
			log.Error("failed to assemble rule", "error", err)
		}
		outcome.Err = err
		s.metrics.TagSkipped()
		return outcome
	}

	path, err := s.sink.Write(rule)
	if err != nil {
		log.Error("failed to write rule", "error", err)
		outcome.Err = err
		s.metrics.TagSkipped()
		return outcome
	}

	outcome.Rule = rule
	outcome.Path = path
	s.metrics.RuleWritten()
	log.Info("rule generated", "path", path, "conditions", outcome.Conditions, "strings", len(rule.Strings))
	return outcome
}

// analyse runs every analyser over the tag's samples concurrently and merges
// their outputs into store once all have finished.
func (s *Scheduler) analyse(ctx context.Context, log *slog.Logger, tasks []*sample.Task, analysers []capability.Analyser, store *ResultStore) {
	defer s.metrics.ObserveStage("analysis", time.Now())
	if len(analysers) == 0 {
		log.Debug("no analysers allow-listed")
		return
	}

	isolate := s.cfg.Pipeline.Isolate()
	var g errgroup.Group
	g.SetLimit(len(analysers))

	for _, a := range analysers {
		g.Go(func() error {
			outputs := make([]capability.AnalyserOutput, 0, len(tasks))
			for _, task := range tasks {
				log.Debug("starting analyser", "analyser", a.Name(), "file", task.Path)
				res, err := invoke(ctx, s.cfg.Pipeline.Timeout(), func(ctx context.Context) (capability.Result, error) {
					data, err := task.Read()
					if err != nil {
						return nil, err
					}
					return a.Analyse(ctx, data)
				})
				if err != nil {
					s.metrics.Failure("analyser", a.Name())
					if isolate {
						log.Warn("analyser failed; skipping file", "analyser", a.Name(), "file", task.Path, "error", err)
						continue
					}
					log.Error("analyser failed; discarding its output for this tag", "analyser", a.Name(), "file", task.Path, "error", err)
					return nil
				}
				outputs = append(outputs, capability.AnalyserOutput{Filename: task.Path, Results: res})
			}
			store.Merge(a.Name(), outputs)
			return nil
		})
	}

	_ = g.Wait()
	log.Debug("finished running analysers")
}

// process runs every processor against the same results with a builder
// shared by the tag. The returned slice holds one entry per processor, in
// invocation order, nil where a processor produced nothing.
func (s *Scheduler) process(ctx context.Context, log *slog.Logger, processors []capability.Processor, results capability.AnalysisResults) []yara.Node {
	defer s.metrics.ObserveStage("processing", time.Now())
	conditions := make([]yara.Node, len(processors))
	if len(processors) == 0 {
		log.Debug("no processors allow-listed")
		return conditions
	}

	b := yara.NewBuilder()
	var g errgroup.Group
	g.SetLimit(len(processors))

	for i, p := range processors {
		g.Go(func() error {
			node, err := invoke(ctx, s.cfg.Pipeline.Timeout(), func(ctx context.Context) (yara.Node, error) {
				return p.Process(ctx, b, results.Clone())
			})
			if err != nil {
				log.Warn("processor failed", "processor", p.Name(), "error", err)
				s.metrics.Failure("processor", p.Name())
				return nil
			}
			if yara.IsNil(node) {
				log.Info("processor returned no condition", "processor", p.Name())
				return nil
			}
			if err := yara.Validate(node); err != nil {
				log.Warn("processor returned an invalid condition", "processor", p.Name(), "error", err)
				s.metrics.Failure("processor", p.Name())
				return nil
			}
			conditions[i] = node
			return nil
		})
	}

	_ = g.Wait()
	return conditions
}

type named interface{ Name() string }

func capabilityNames[T named](caps []T) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = c.Name()
	}
	return out
}

// String implements fmt.Stringer for log output.
func (o TagOutcome) String() string {
	if o.Rule != nil {
		return fmt.Sprintf("%s: %d file(s), %d condition(s) -> %s", o.Tag, o.Files, o.Conditions, o.Path)
	}
	return fmt.Sprintf("%s: %d file(s), no rule (%v)", o.Tag, o.Files, o.Err)
}
