package processor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ScoreQuote delimits fields of the scoring table that contain tabs. A
// doubled quote inside a quoted field is a literal quote.
const ScoreQuote = '~'

// ScoreRule adds Weight to every literal its pattern matches.
type ScoreRule struct {
	Pattern *regexp.Regexp
	Weight  int
}

// ScoreTable is an ordered list of scoring rules.
type ScoreTable struct {
	Rules []ScoreRule
}

// LoadScoreTable reads a tab-delimited (pattern, weight) table from path.
func LoadScoreTable(path string) (*ScoreTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scoring table: %w", err)
	}
	defer f.Close()

	table, err := ParseScoreTable(f)
	if err != nil {
		return nil, fmt.Errorf("scoring table %s: %w", path, err)
	}
	return table, nil
}

// ParseScoreTable parses scoring rules. Blank lines and lines starting with
// '#' are ignored. Patterns match case-insensitively.
func ParseScoreTable(r io.Reader) (*ScoreTable, error) {
	table := &ScoreTable{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields, err := splitScoreLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected pattern and weight, got %d field(s)", lineNo, len(fields))
		}

		weight, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid weight %q", lineNo, fields[1])
		}
		re, err := regexp.Compile("(?i)" + fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid pattern: %w", lineNo, err)
		}
		table.Rules = append(table.Rules, ScoreRule{Pattern: re, Weight: weight})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

func splitScoreLine(line string) ([]string, error) {
	var fields []string
	var field strings.Builder
	quoted := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quoted && c == ScoreQuote:
			if i+1 < len(line) && line[i+1] == ScoreQuote {
				field.WriteByte(ScoreQuote)
				i++
			} else {
				quoted = false
			}
		case quoted:
			field.WriteByte(c)
		case c == ScoreQuote && field.Len() == 0:
			quoted = true
		case c == '\t':
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteByte(c)
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated %c quote", ScoreQuote)
	}
	return append(fields, field.String()), nil
}

// Score sums the weights of every rule matching literal.
func (t *ScoreTable) Score(literal string) int {
	score := 0
	for _, rule := range t.Rules {
		if rule.Pattern.MatchString(literal) {
			score += rule.Weight
		}
	}
	return score
}

// ScoredLiteral is a literal with its accumulated weight.
type ScoredLiteral struct {
	Literal string
	Score   int
}

// Rank scores literals and orders them by descending score. Equal scores
// are ordered by ascending literal.
func (t *ScoreTable) Rank(literals []string) []ScoredLiteral {
	ranked := make([]ScoredLiteral, 0, len(literals))
	for _, lit := range literals {
		ranked = append(ranked, ScoredLiteral{Literal: lit, Score: t.Score(lit)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Literal < ranked[j].Literal
	})
	return ranked
}
