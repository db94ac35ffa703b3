package yara

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAndOr_RequireTwoExpressions(t *testing.T) {
	b := NewBuilder()
	s, err := b.Text("alpha")
	require.NoError(t, err)

	tests := []struct {
		name  string
		exprs []Node
	}{
		{"none", nil},
		{"one", []Node{s}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			and, err := And(tt.exprs...)
			assert.Nil(t, and)
			assert.ErrorIs(t, err, ErrTooFewExpressions)

			or, err := Or(tt.exprs...)
			assert.Nil(t, or)
			assert.ErrorIs(t, err, ErrTooFewExpressions)
		})
	}
}

func TestAnd_RejectsNilChild(t *testing.T) {
	s, err := NewBuilder().Text("alpha")
	require.NoError(t, err)

	n, err := And(s, nil)
	assert.Nil(t, n)
	assert.ErrorIs(t, err, ErrInvalidExpression)
}

func TestAnd_CopiesChildren(t *testing.T) {
	b := NewBuilder()
	a, _ := b.Text("a1234")
	c, _ := b.Text("c1234")
	exprs := []Node{a, c}

	n, err := And(exprs...)
	require.NoError(t, err)
	exprs[0] = c

	assert.Same(t, a, n.Children()[0])
}

func TestData_DefaultsToUint32(t *testing.T) {
	n, err := Data(0, 0x5a4d, "")
	require.NoError(t, err)
	assert.Equal(t, Uint32, n.IntType())
}

func TestData_InvalidIntType(t *testing.T) {
	for _, it := range []IntType{"uint64", "float", "UINT8"} {
		n, err := Data(0, 1, it)
		assert.Nil(t, n, it)
		assert.ErrorIs(t, err, ErrInvalidIntType, it)
	}
}

func TestData_AllSupportedTypes(t *testing.T) {
	for _, it := range []IntType{Uint8, Uint16, Uint32, Int8, Int16, Int32} {
		_, err := Data(4, 1, it)
		assert.NoError(t, err, it)
	}
}

func TestBuilder_IdentifiersIncrease(t *testing.T) {
	b := NewBuilder()
	t1, err := b.Text("first")
	require.NoError(t, err)
	h, err := b.Hex("4D 5A")
	require.NoError(t, err)
	r, err := b.Regex(`ab+c`)
	require.NoError(t, err)

	assert.Equal(t, 0, t1.ID())
	assert.Equal(t, 1, h.ID())
	assert.Equal(t, 2, r.ID())
}

func TestBuilder_FailedConstructionDoesNotConsumeID(t *testing.T) {
	b := NewBuilder()
	_, err := b.Text("")
	require.ErrorIs(t, err, ErrEmptyPattern)

	n, err := b.Text("ok-string")
	require.NoError(t, err)
	assert.Equal(t, 0, n.ID())
}

func TestBuilder_TextModifiers(t *testing.T) {
	b := NewBuilder()

	n, err := b.Text("payload", "fullword", "WIDE", "wide")
	require.NoError(t, err)
	assert.Equal(t, []string{"fullword", "wide"}, n.Modifiers())
	assert.Equal(t, `"payload" fullword wide`, n.Literal())

	_, err = b.Text("payload", "sometimes")
	assert.ErrorIs(t, err, ErrInvalidModifier)
}

func TestBuilder_TextEscaping(t *testing.T) {
	n, err := NewBuilder().Text("say \"hi\" C:\\tmp\x01")
	require.NoError(t, err)
	assert.Equal(t, `"say \"hi\" C:\\tmp\x01"`, n.Literal())
}

func TestBuilder_HexValidation(t *testing.T) {
	b := NewBuilder()

	n, err := b.Hex("4D 5A ?? [2-4] (00 | 01)")
	require.NoError(t, err)
	assert.Equal(t, "{ 4D 5A ?? [2-4] (00 | 01) }", n.Literal())

	_, err = b.Hex("4D 5Z")
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = b.Hex("   ")
	assert.ErrorIs(t, err, ErrEmptyPattern)
}

func TestBuilder_RegexValidation(t *testing.T) {
	b := NewBuilder()

	n, err := b.Regex(`https?:\/\/[a-z]+`)
	require.NoError(t, err)
	assert.Equal(t, `/https?:\/\/[a-z]+/`, n.Literal())

	_, err = b.Regex(`a/b`)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = b.Regex(`abc\`)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestBuilder_ConcurrentUseYieldsUniqueIDs(t *testing.T) {
	b := NewBuilder()
	const workers = 8
	const perWorker = 50

	ids := make(chan int, workers*perWorker)
	done := make(chan struct{})
	for w := 0; w < workers; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < perWorker; i++ {
				n, err := b.Text("literal")
				if err == nil {
					ids <- n.ID()
				}
			}
		}()
	}
	for w := 0; w < workers; w++ {
		<-done
	}
	close(ids)

	seen := map[int]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestValidate_ConstructedTrees(t *testing.T) {
	b := NewBuilder()
	s := mustText(t, b, "maliciouscmd")
	h, err := b.Hex("4D 5A")
	require.NoError(t, err)
	d, err := Data(0, 0x5a4d, Uint16)
	require.NoError(t, err)
	and, err := And(d, h)
	require.NoError(t, err)
	or, err := Or(and, s)
	require.NoError(t, err)

	assert.NoError(t, Validate(or))
	assert.NoError(t, Validate(s))
}

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil(nil))
	assert.True(t, IsNil((*AndNode)(nil)))
	assert.True(t, IsNil((*RegexStringNode)(nil)))
	assert.False(t, IsNil(&AndNode{}))
	assert.False(t, IsNil(foreignNode{}))
}
