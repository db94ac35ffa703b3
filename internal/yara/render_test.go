package yara

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// foreignNode satisfies Node from inside the package but is not a known variant.
type foreignNode struct{}

func (foreignNode) conditionNode() {}

func mustText(t *testing.T, b *Builder, lit string, mods ...string) *TextStringNode {
	t.Helper()
	n, err := b.Text(lit, mods...)
	require.NoError(t, err)
	return n
}

func TestRender_AndOr(t *testing.T) {
	b := NewBuilder()
	a := mustText(t, b, "alpha")
	c := mustText(t, b, "charlie")
	d := mustText(t, b, "delta")

	and, err := And(a, c)
	require.NoError(t, err)
	or, err := Or(and, d)
	require.NoError(t, err)

	r := NewRenderer()
	assert.Equal(t, "( ( $s0 and $s1 ) or $s2 )", r.Render(or))

	entries := r.Strings().Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, `"alpha"`, entries[0].Value)
	assert.Equal(t, `"charlie"`, entries[1].Value)
	assert.Equal(t, `"delta"`, entries[2].Value)
}

func TestRender_OrPreservesChildOrder(t *testing.T) {
	b := NewBuilder()
	var conds []Node
	for _, lit := range []string{"one11", "two22", "three", "four4"} {
		conds = append(conds, mustText(t, b, lit))
	}
	or, err := Or(conds...)
	require.NoError(t, err)

	r := NewRenderer()
	assert.Equal(t, "( $s0 or $s1 or $s2 or $s3 )", r.Render(or))
}

func TestRender_SharedStringNodeRegisteredOnce(t *testing.T) {
	b := NewBuilder()
	shared := mustText(t, b, "shared-literal")
	x := mustText(t, b, "x-literal")
	y := mustText(t, b, "y-literal")

	left, err := And(shared, x)
	require.NoError(t, err)
	right, err := And(shared, y)
	require.NoError(t, err)
	root, err := Or(left, right)
	require.NoError(t, err)

	r := NewRenderer()
	expr := r.Render(root)

	assert.Equal(t, "( ( $s0 and $s1 ) or ( $s0 and $s2 ) )", expr)
	require.Equal(t, 3, r.Strings().Len())
	assert.Equal(t, shared.ID(), r.Strings().Entries()[0].ID)
}

func TestRender_NamesFollowFirstReferenceNotCreation(t *testing.T) {
	b := NewBuilder()
	first := mustText(t, b, "created-first")
	second := mustText(t, b, "created-second")

	and, err := And(second, first)
	require.NoError(t, err)

	r := NewRenderer()
	assert.Equal(t, "( $s0 and $s1 )", r.Render(and))
	entries := r.Strings().Entries()
	assert.Equal(t, `"created-second"`, entries[0].Value)
	assert.Equal(t, `"created-first"`, entries[1].Value)
}

func TestRender_DataNode(t *testing.T) {
	tests := []struct {
		offset int64
		value  int64
		typ    IntType
		want   string
	}{
		{0, 0x5a4d, Uint16, "uint16(0x0) == 0x5a4d"},
		{0x3c, 0x4550, "", "uint32(0x3c) == 0x4550"},
		{8, -1, Int8, "int8(0x8) == -1"},
	}
	for _, tt := range tests {
		n, err := Data(tt.offset, tt.value, tt.typ)
		require.NoError(t, err)
		assert.Equal(t, tt.want, NewRenderer().Render(n))
	}
}

func TestRender_AllStringVariants(t *testing.T) {
	b := NewBuilder()
	h, err := b.Hex("4D 5A")
	require.NoError(t, err)
	txt := mustText(t, b, "wide-one", "fullword", "wide")
	re, err := b.Regex(`evil[0-9]+`)
	require.NoError(t, err)

	and, err := And(h, txt, re)
	require.NoError(t, err)

	r := NewRenderer()
	assert.Equal(t, "( $s0 and $s1 and $s2 )", r.Render(and))
	entries := r.Strings().Entries()
	assert.Equal(t, "{ 4D 5A }", entries[0].Value)
	assert.Equal(t, `"wide-one" fullword wide`, entries[1].Value)
	assert.Equal(t, "/evil[0-9]+/", entries[2].Value)
}

func TestRender_UnknownNodePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewRenderer().Render(foreignNode{})
	})
}

func TestRender_InvariantViolationsPanic(t *testing.T) {
	s := mustText(t, NewBuilder(), "maliciouscmd")
	cases := map[string]Node{
		"empty and":        &AndNode{},
		"single child or":  &OrNode{children: []Node{s}},
		"invalid int type": &DataNode{intType: "float64"},
		"nil and pointer":  (*AndNode)(nil),
		"nil text pointer": (*TextStringNode)(nil),
		"nil interface":    nil,
	}
	for name, n := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Panics(t, func() { NewRenderer().Render(n) })
		})
	}
}

func TestCondition_WrapsLeaves(t *testing.T) {
	b := NewBuilder()
	s := mustText(t, b, "maliciouscmd")
	assert.Equal(t, "( $s0 )", NewRenderer().Condition(s))

	d, err := Data(0, 0x5a4d, Uint16)
	require.NoError(t, err)
	assert.Equal(t, "( uint16(0x0) == 0x5a4d )", NewRenderer().Condition(d))

	other := mustText(t, b, "benigncmd")
	and, err := And(s, other)
	require.NoError(t, err)
	assert.Equal(t, "( $s0 and $s1 )", NewRenderer().Condition(and))
}

func TestRender_IsPure(t *testing.T) {
	b := NewBuilder()
	and, err := And(mustText(t, b, "aaaaa"), mustText(t, b, "bbbbb"))
	require.NoError(t, err)

	first := NewRenderer()
	second := NewRenderer()
	assert.Equal(t, first.Render(and), second.Render(and))
	assert.Equal(t, first.Strings().Entries(), second.Strings().Entries())
}
