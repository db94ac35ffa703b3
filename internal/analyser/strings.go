// Package analyser provides the built-in feature extractors.
package analyser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gzhole/yaraforge/internal/capability"
)

const (
	// KindNarrow holds printable single-byte strings.
	KindNarrow = "ascii"
	// KindWide holds printable UTF-16LE strings, decoded to single bytes.
	KindWide = "wide"

	// DefaultMinLength is the shortest run of printable characters kept.
	DefaultMinLength = 5
)

// Strings sweeps a sample for printable narrow and wide strings.
type Strings struct {
	narrow *regexp.Regexp
	wide   *regexp.Regexp

	// DebugDir, when set, receives one JSON file per analysed sample.
	DebugDir string
}

// NewStrings creates a strings analyser keeping runs of at least minLen
// characters. A non-positive minLen uses DefaultMinLength.
func NewStrings(minLen int, debugDir string) *Strings {
	if minLen <= 0 {
		minLen = DefaultMinLength
	}
	return &Strings{
		narrow:   regexp.MustCompile(fmt.Sprintf(`[\x20-\x7e]{%d,}`, minLen)),
		wide:     regexp.MustCompile(fmt.Sprintf(`(?:[\x20-\x7e]\x00){%d,}`, minLen)),
		DebugDir: debugDir,
	}
}

func (a *Strings) Name() string { return "strings" }

// Analyse returns narrow strings under KindNarrow and wide strings under
// KindWide, each in file order.
func (a *Strings) Analyse(ctx context.Context, data []byte) (capability.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	narrow := []string{}
	for _, m := range a.narrow.FindAll(data, -1) {
		narrow = append(narrow, string(m))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wide := []string{}
	for _, m := range a.wide.FindAll(data, -1) {
		wide = append(wide, decodeWide(m))
	}

	result := capability.Result{KindNarrow: narrow, KindWide: wide}
	if a.DebugDir != "" {
		if err := a.writeDebug(data, result); err != nil {
			return nil, fmt.Errorf("writing strings debug output: %w", err)
		}
	}
	return result, nil
}

// decodeWide keeps the low byte of each UTF-16LE code unit. The matcher only
// accepts printable ASCII followed by NUL, so this is lossless.
func decodeWide(b []byte) string {
	out := make([]byte, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		out = append(out, b[i])
	}
	return string(out)
}

func (a *Strings) writeDebug(data []byte, result capability.Result) error {
	if err := os.MkdirAll(a.DebugDir, 0755); err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	name := "strings-" + hex.EncodeToString(sum[:8]) + ".json"

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.DebugDir, name), out, 0644)
}
