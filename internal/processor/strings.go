// Package processor turns analyser outputs into rule conditions.
package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gzhole/yaraforge/internal/analyser"
	"github.com/gzhole/yaraforge/internal/capability"
	"github.com/gzhole/yaraforge/internal/yara"
)

// DefaultTop is the number of literals selected per feature class.
const DefaultTop = 6

// wideModifiers mark literals extracted from UTF-16LE runs.
var wideModifiers = []string{"fullword", "wide"}

// Strings correlates extracted strings across a tag's samples, keeps the
// literals present in every sample, scores them and signs the best ones.
type Strings struct {
	// TablePath is the scoring table, read on every Process call.
	TablePath string
	// Top is the number of literals kept per feature class.
	Top    int
	Logger *slog.Logger
}

// NewStrings creates the correlation processor.
func NewStrings(tablePath string, top int, logger *slog.Logger) *Strings {
	if top <= 0 {
		top = DefaultTop
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Strings{TablePath: tablePath, Top: top, Logger: logger}
}

func (p *Strings) Name() string { return "strings" }

// Process returns an AND of the selected literals, the lone literal when
// only one is selected, or nil when no literal is common to every sample.
func (p *Strings) Process(ctx context.Context, b *yara.Builder, results capability.AnalysisResults) (yara.Node, error) {
	outputs := results["strings"]
	if len(outputs) == 0 {
		p.Logger.Debug("no strings analyser output")
		return nil, nil
	}

	files := countFiles(outputs)
	narrow := Intersection(Occurrences(outputs, analyser.KindNarrow), files)
	wide := Intersection(Occurrences(outputs, analyser.KindWide), files)
	p.Logger.Debug("computed string intersection",
		"files", files, "ascii", len(narrow), "wide", len(wide))

	if len(narrow) == 0 && len(wide) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := LoadScoreTable(p.TablePath)
	if err != nil {
		return nil, err
	}

	var nodes []yara.Node
	for _, s := range top(table.Rank(narrow), p.Top) {
		p.Logger.Debug("selected ascii string", "literal", s.Literal, "score", s.Score)
		n, err := b.Text(s.Literal)
		if err != nil {
			return nil, fmt.Errorf("ascii literal %q: %w", s.Literal, err)
		}
		nodes = append(nodes, n)
	}
	for _, s := range top(table.Rank(wide), p.Top) {
		p.Logger.Debug("selected wide string", "literal", s.Literal, "score", s.Score)
		n, err := b.Text(s.Literal, wideModifiers...)
		if err != nil {
			return nil, fmt.Errorf("wide literal %q: %w", s.Literal, err)
		}
		nodes = append(nodes, n)
	}

	return combineAll(nodes)
}

// Occurrences maps each literal of the given kind to the set of files that
// contain it. Repeats within one file count once.
func Occurrences(outputs []capability.AnalyserOutput, kind string) map[string]map[string]struct{} {
	occ := make(map[string]map[string]struct{})
	for _, out := range outputs {
		for _, lit := range out.Results[kind] {
			set, ok := occ[lit]
			if !ok {
				set = make(map[string]struct{})
				occ[lit] = set
			}
			set[out.Filename] = struct{}{}
		}
	}
	return occ
}

// Intersection returns the literals found in at least total files.
func Intersection(occ map[string]map[string]struct{}, total int) []string {
	var common []string
	if total == 0 {
		return common
	}
	for lit, files := range occ {
		if len(files) >= total {
			common = append(common, lit)
		}
	}
	return common
}

func countFiles(outputs []capability.AnalyserOutput) int {
	seen := make(map[string]struct{}, len(outputs))
	for _, out := range outputs {
		seen[out.Filename] = struct{}{}
	}
	return len(seen)
}

func top(ranked []ScoredLiteral, n int) []ScoredLiteral {
	if len(ranked) > n {
		return ranked[:n]
	}
	return ranked
}

// combineAll ANDs nodes together. AND needs two operands, so a single node
// is returned unchanged and an empty list yields nil.
func combineAll(nodes []yara.Node) (yara.Node, error) {
	switch len(nodes) {
	case 0:
		return nil, nil
	case 1:
		return nodes[0], nil
	}
	and, err := yara.And(nodes...)
	if err != nil {
		return nil, err
	}
	return and, nil
}
