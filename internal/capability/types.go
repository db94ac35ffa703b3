// Package capability defines the extension points the pipeline drives:
// classifiers decide which tag a sample belongs to, analysers extract
// features from one sample, and processors turn the accumulated analyser
// outputs of a tag into a condition tree.
package capability

import (
	"context"

	"github.com/gzhole/yaraforge/internal/yara"
)

// Classifier inspects raw bytes and decides whether a sample belongs to Tag.
type Classifier interface {
	// Tag returns the stable tag identifier, e.g. "PE".
	Tag() string

	// Match reports whether data belongs to the classifier's tag.
	Match(data []byte) (bool, error)
}

// Analyser extracts features from a single sample.
type Analyser interface {
	// Name returns the identifier used in configuration allow-lists.
	Name() string

	// Analyse returns the features found in data, keyed by feature kind.
	Analyse(ctx context.Context, data []byte) (Result, error)
}

// Processor turns analyser outputs into a condition. A nil node with a nil
// error means the processor had nothing to contribute.
type Processor interface {
	// Name returns the identifier used in configuration allow-lists.
	Name() string

	// Process builds a condition for the tag. String nodes must be created
	// through b so identifiers stay unique across the tag's processors.
	Process(ctx context.Context, b *yara.Builder, results AnalysisResults) (yara.Node, error)
}

// Result maps a feature kind (e.g. "ascii", "wide") to the literals
// extracted for it, in extraction order.
type Result map[string][]string

// AnalyserOutput is one analyser's result for one file.
type AnalyserOutput struct {
	Filename string
	Results  Result
}

// AnalysisResults maps analyser name to the outputs it produced.
type AnalysisResults map[string][]AnalyserOutput

// Clone returns a copy whose slices can be read while the original grows.
func (r AnalysisResults) Clone() AnalysisResults {
	out := make(AnalysisResults, len(r))
	for name, outputs := range r {
		out[name] = append([]AnalyserOutput(nil), outputs...)
	}
	return out
}
