package yara

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoConditions is returned by Assemble when no processor produced a condition.
var ErrNoConditions = errors.New("no conditions to assemble")

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name can be used as a rule name.
func ValidIdentifier(name string) bool {
	return len(name) <= 128 && identRegex.MatchString(name)
}

// Rule is a rendered detection rule.
type Rule struct {
	Name      string
	Strings   []StringEntry
	Condition string
}

// Assemble combines the conditions produced for a tag into one rule. Nil
// conditions, including nil node pointers, are skipped. A single condition
// is used as is; several are OR-ed in the order given. A condition tree that
// fails Validate is an error.
func Assemble(tag string, conditions []Node) (*Rule, error) {
	if !ValidIdentifier(tag) {
		return nil, fmt.Errorf("rule name %q is not a valid identifier", tag)
	}

	var conds []Node
	for i, c := range conditions {
		if IsNil(c) {
			continue
		}
		if err := Validate(c); err != nil {
			return nil, fmt.Errorf("rule %s: condition %d: %w", tag, i, err)
		}
		conds = append(conds, c)
	}

	var final Node
	switch len(conds) {
	case 0:
		return nil, fmt.Errorf("rule %s: %w", tag, ErrNoConditions)
	case 1:
		final = conds[0]
	default:
		or, err := Or(conds...)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", tag, err)
		}
		final = or
	}

	r := NewRenderer()
	condition := r.Condition(final)
	return &Rule{
		Name:      tag,
		Strings:   r.Strings().Entries(),
		Condition: condition,
	}, nil
}

// String renders the rule document:
//
//	rule	<NAME>	{
//		strings:
//			$s0 = "literal" [modifiers]
//		condition:
//			<expression>
//	}
//
// The strings section is omitted when the condition references no strings.
func (r *Rule) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "rule\t%s\t{\n", r.Name)
	if len(r.Strings) > 0 {
		sb.WriteString("\tstrings:\n")
		for _, s := range r.Strings {
			fmt.Fprintf(&sb, "\t\t%s = %s\n", s.Name, s.Value)
		}
	}
	fmt.Fprintf(&sb, "\tcondition:\n\t\t%s\n}\n", r.Condition)
	return sb.String()
}
