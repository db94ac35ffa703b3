package yara

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrTooFewExpressions is returned when a boolean node is built with fewer than two children.
	ErrTooFewExpressions = errors.New("boolean condition needs at least two expressions")
	// ErrInvalidExpression is returned when a nil child is passed to a boolean node.
	ErrInvalidExpression = errors.New("invalid expression")
	// ErrInvalidIntType is returned for data checks with an unsupported integer type.
	ErrInvalidIntType = errors.New("invalid integer type")
	// ErrEmptyPattern is returned when a string node is built from an empty literal or pattern.
	ErrEmptyPattern = errors.New("empty string pattern")
	// ErrInvalidModifier is returned for text string modifiers the rule grammar does not know.
	ErrInvalidModifier = errors.New("invalid text string modifier")
	// ErrInvalidPattern is returned for malformed hex or regex patterns.
	ErrInvalidPattern = errors.New("invalid string pattern")
)

// Node is a condition tree node. The set of implementations is closed:
// *AndNode, *OrNode, *DataNode, *HexStringNode, *TextStringNode and
// *RegexStringNode.
type Node interface {
	conditionNode()
}

// StringNode is a leaf pattern referenced from a condition by identifier.
type StringNode interface {
	Node
	// ID is unique within the Builder session that created the node.
	ID() int
	// Literal renders the pattern as it appears in the strings section.
	Literal() string
}

// AndNode matches when every child matches.
type AndNode struct {
	children []Node
}

// OrNode matches when any child matches.
type OrNode struct {
	children []Node
}

// Children returns the node's expressions in construction order.
func (n *AndNode) Children() []Node { return n.children }

// Children returns the node's expressions in construction order.
func (n *OrNode) Children() []Node { return n.children }

// IntType is the integer reader used by a data check, e.g. uint16(0).
type IntType string

const (
	Uint8  IntType = "uint8"
	Uint16 IntType = "uint16"
	Uint32 IntType = "uint32"
	Int8   IntType = "int8"
	Int16  IntType = "int16"
	Int32  IntType = "int32"
)

// Valid reports whether t is one of the supported integer readers.
func (t IntType) Valid() bool {
	switch t {
	case Uint8, Uint16, Uint32, Int8, Int16, Int32:
		return true
	}
	return false
}

// DataNode compares the integer read at an offset with a value.
type DataNode struct {
	offset  int64
	value   int64
	intType IntType
}

func (n *DataNode) Offset() int64    { return n.offset }
func (n *DataNode) Value() int64     { return n.value }
func (n *DataNode) IntType() IntType { return n.intType }

// HexStringNode is a byte pattern such as "4D 5A ?? 00".
type HexStringNode struct {
	id      int
	pattern string
}

// TextStringNode is a quoted literal with optional modifiers.
type TextStringNode struct {
	id        int
	literal   string
	modifiers []string
}

// RegexStringNode is a regular expression pattern.
type RegexStringNode struct {
	id      int
	pattern string
}

func (*AndNode) conditionNode()         {}
func (*OrNode) conditionNode()          {}
func (*DataNode) conditionNode()        {}
func (*HexStringNode) conditionNode()   {}
func (*TextStringNode) conditionNode()  {}
func (*RegexStringNode) conditionNode() {}

func (n *HexStringNode) ID() int   { return n.id }
func (n *TextStringNode) ID() int  { return n.id }
func (n *RegexStringNode) ID() int { return n.id }

// Pattern returns the hex body without braces.
func (n *HexStringNode) Pattern() string { return n.pattern }

// Pattern returns the regex body without slashes.
func (n *RegexStringNode) Pattern() string { return n.pattern }

// Text returns the unescaped literal.
func (n *TextStringNode) Text() string { return n.literal }

// Modifiers returns a copy of the literal's modifiers.
func (n *TextStringNode) Modifiers() []string {
	return append([]string(nil), n.modifiers...)
}

func (n *HexStringNode) Literal() string { return "{ " + n.pattern + " }" }

func (n *RegexStringNode) Literal() string { return "/" + n.pattern + "/" }

func (n *TextStringNode) Literal() string {
	quoted := `"` + escapeText(n.literal) + `"`
	if len(n.modifiers) == 0 {
		return quoted
	}
	return quoted + " " + strings.Join(n.modifiers, " ")
}

// And builds a conjunction. At least two non-nil expressions are required.
func And(exprs ...Node) (*AndNode, error) {
	children, err := checkExpressions(exprs)
	if err != nil {
		return nil, fmt.Errorf("and condition: %w", err)
	}
	return &AndNode{children: children}, nil
}

// Or builds a disjunction. At least two non-nil expressions are required.
func Or(exprs ...Node) (*OrNode, error) {
	children, err := checkExpressions(exprs)
	if err != nil {
		return nil, fmt.Errorf("or condition: %w", err)
	}
	return &OrNode{children: children}, nil
}

// Data builds a data check. An empty intType defaults to uint32.
func Data(offset, value int64, intType IntType) (*DataNode, error) {
	if intType == "" {
		intType = Uint32
	}
	if !intType.Valid() {
		return nil, fmt.Errorf("data condition %q: %w", intType, ErrInvalidIntType)
	}
	if offset < 0 {
		return nil, fmt.Errorf("data condition offset %d: %w", offset, ErrInvalidExpression)
	}
	return &DataNode{offset: offset, value: value, intType: intType}, nil
}

// IsNil reports whether n is nil or a nil pointer of one of the node types.
func IsNil(n Node) bool {
	switch node := n.(type) {
	case nil:
		return true
	case *AndNode:
		return node == nil
	case *OrNode:
		return node == nil
	case *DataNode:
		return node == nil
	case *HexStringNode:
		return node == nil
	case *TextStringNode:
		return node == nil
	case *RegexStringNode:
		return node == nil
	}
	return false
}

// Validate walks the tree and checks the invariants the constructors
// enforce. Trees built outside this package through zero values or nil
// pointers are rejected here rather than rendered.
func Validate(n Node) error {
	if IsNil(n) {
		return fmt.Errorf("nil node: %w", ErrInvalidExpression)
	}
	switch node := n.(type) {
	case *AndNode:
		return validateChildren("and", node.children)
	case *OrNode:
		return validateChildren("or", node.children)
	case *DataNode:
		if !node.intType.Valid() {
			return fmt.Errorf("data condition %q: %w", node.intType, ErrInvalidIntType)
		}
		if node.offset < 0 {
			return fmt.Errorf("data condition offset %d: %w", node.offset, ErrInvalidExpression)
		}
	case *HexStringNode:
		if node.pattern == "" {
			return fmt.Errorf("hex string: %w", ErrEmptyPattern)
		}
	case *TextStringNode:
		if node.literal == "" {
			return fmt.Errorf("text string: %w", ErrEmptyPattern)
		}
	case *RegexStringNode:
		if node.pattern == "" {
			return fmt.Errorf("regex string: %w", ErrEmptyPattern)
		}
	default:
		return fmt.Errorf("unknown node %T: %w", n, ErrInvalidExpression)
	}
	return nil
}

func validateChildren(op string, children []Node) error {
	if len(children) < 2 {
		return fmt.Errorf("%s condition: got %d: %w", op, len(children), ErrTooFewExpressions)
	}
	for _, c := range children {
		if err := Validate(c); err != nil {
			return fmt.Errorf("%s condition: %w", op, err)
		}
	}
	return nil
}

func checkExpressions(exprs []Node) ([]Node, error) {
	if len(exprs) < 2 {
		return nil, fmt.Errorf("got %d: %w", len(exprs), ErrTooFewExpressions)
	}
	for i, e := range exprs {
		if e == nil {
			return nil, fmt.Errorf("expression %d is nil: %w", i, ErrInvalidExpression)
		}
	}
	return append([]Node(nil), exprs...), nil
}

// textModifiers lists the modifiers accepted after a text string.
var textModifiers = map[string]bool{
	"nocase":     true,
	"wide":       true,
	"ascii":      true,
	"fullword":   true,
	"private":    true,
	"xor":        true,
	"base64":     true,
	"base64wide": true,
}

// Builder creates string nodes for one rule-building session. Identifiers
// increase monotonically and are never reused. A Builder is safe for
// concurrent use, so every processor of a tag can share one.
type Builder struct {
	mu   sync.Mutex
	next int
}

// NewBuilder starts a new session with identifiers counting from zero.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) nextID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	return id
}

// Text creates a text string node. Modifiers are validated against the
// rule grammar and duplicates are dropped.
func (b *Builder) Text(literal string, modifiers ...string) (*TextStringNode, error) {
	if literal == "" {
		return nil, fmt.Errorf("text string: %w", ErrEmptyPattern)
	}
	seen := make(map[string]bool, len(modifiers))
	var mods []string
	for _, m := range modifiers {
		m = strings.ToLower(strings.TrimSpace(m))
		if !textModifiers[m] {
			return nil, fmt.Errorf("text string modifier %q: %w", m, ErrInvalidModifier)
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		mods = append(mods, m)
	}
	return &TextStringNode{id: b.nextID(), literal: literal, modifiers: mods}, nil
}

// Hex creates a hex string node. The pattern is the body between the braces.
func (b *Builder) Hex(pattern string) (*HexStringNode, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("hex string: %w", ErrEmptyPattern)
	}
	for _, r := range pattern {
		if !strings.ContainsRune("0123456789abcdefABCDEF?[]-()| ~", r) {
			return nil, fmt.Errorf("hex string %q: unexpected %q: %w", pattern, r, ErrInvalidPattern)
		}
	}
	return &HexStringNode{id: b.nextID(), pattern: pattern}, nil
}

// Regex creates a regular expression node. The pattern is the body between
// the slashes; an unescaped slash is rejected.
func (b *Builder) Regex(pattern string) (*RegexStringNode, error) {
	if pattern == "" {
		return nil, fmt.Errorf("regex string: %w", ErrEmptyPattern)
	}
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '/':
			return nil, fmt.Errorf("regex string %q: unescaped '/': %w", pattern, ErrInvalidPattern)
		}
	}
	if escaped {
		return nil, fmt.Errorf("regex string %q: trailing escape: %w", pattern, ErrInvalidPattern)
	}
	return &RegexStringNode{id: b.nextID(), pattern: pattern}, nil
}

func escapeText(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			sb.WriteString(`\"`)
		case c == '\\':
			sb.WriteString(`\\`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c < 0x20 || c > 0x7e:
			fmt.Fprintf(&sb, `\x%02x`, c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
