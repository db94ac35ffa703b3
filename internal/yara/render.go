package yara

import (
	"fmt"
	"strconv"
	"strings"
)

// StringEntry is one line of a rule's strings section.
type StringEntry struct {
	ID    int    // node identifier from the Builder session
	Name  string // "$s0", "$s1", ... in first-reference order
	Value string // rendered pattern, e.g. `"cmd.exe" fullword wide`
}

// StringTable records string nodes in the order a render first reaches them.
// The first reference wins; later references reuse the entry.
type StringTable struct {
	entries []StringEntry
	byID    map[int]int
}

func newStringTable() *StringTable {
	return &StringTable{byID: make(map[int]int)}
}

// Entries returns the table in insertion order.
func (t *StringTable) Entries() []StringEntry {
	return append([]StringEntry(nil), t.entries...)
}

// Len returns the number of distinct string nodes registered.
func (t *StringTable) Len() int { return len(t.entries) }

func (t *StringTable) register(n StringNode) string {
	if idx, ok := t.byID[n.ID()]; ok {
		return t.entries[idx].Name
	}
	name := "$s" + strconv.Itoa(len(t.entries))
	t.byID[n.ID()] = len(t.entries)
	t.entries = append(t.entries, StringEntry{ID: n.ID(), Name: name, Value: n.Literal()})
	return name
}

// Renderer turns a condition tree into rule-grammar text. One Renderer is one
// render session: its StringTable accumulates across Render calls.
type Renderer struct {
	table *StringTable
}

// NewRenderer creates a renderer with an empty StringTable.
func NewRenderer() *Renderer {
	return &Renderer{table: newStringTable()}
}

// Strings returns the table populated by previous Render calls.
func (r *Renderer) Strings() *StringTable { return r.table }

// Render walks the tree depth first and returns the expression. String nodes
// contribute their table name. An unknown node type, a nil node or a node
// that breaks a constructor invariant panics; callers holding untrusted
// trees run Validate first.
func (r *Renderer) Render(n Node) string {
	if IsNil(n) {
		panic(fmt.Sprintf("yara: nil condition node %T", n))
	}
	switch node := n.(type) {
	case *AndNode:
		return r.join(node.children, "and")
	case *OrNode:
		return r.join(node.children, "or")
	case *DataNode:
		if !node.intType.Valid() {
			panic(fmt.Sprintf("yara: data condition with invalid integer type %q", node.intType))
		}
		return fmt.Sprintf("%s(%#x) == %s", node.intType, node.offset, formatValue(node.value))
	case *HexStringNode:
		return r.table.register(node)
	case *TextStringNode:
		return r.table.register(node)
	case *RegexStringNode:
		return r.table.register(node)
	default:
		panic(fmt.Sprintf("yara: unhandled condition node %T", n))
	}
}

// Condition renders n as a complete rule condition. Leaf expressions are
// parenthesised so every condition reads as a group.
func (r *Renderer) Condition(n Node) string {
	expr := r.Render(n)
	switch n.(type) {
	case *AndNode, *OrNode:
		return expr
	}
	return "( " + expr + " )"
}

func (r *Renderer) join(children []Node, op string) string {
	if len(children) < 2 {
		panic(fmt.Sprintf("yara: %s condition with %d expressions", op, len(children)))
	}
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = r.Render(c)
	}
	return "( " + strings.Join(parts, " "+op+" ") + " )"
}

func formatValue(v int64) string {
	if v < 0 {
		return strconv.FormatInt(v, 10)
	}
	return fmt.Sprintf("%#x", v)
}
