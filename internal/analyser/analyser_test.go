package analyser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wideBytes(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for i := 0; i < len(s); i++ {
		out = append(out, s[i], 0)
	}
	return out
}

func TestStrings_NarrowAndWide(t *testing.T) {
	var data []byte
	data = append(data, 0x00, 0x01)
	data = append(data, "kernel32.dll"...)
	data = append(data, 0x00, 0xff)
	data = append(data, "abc"...) // too short
	data = append(data, 0x00, 0x90)
	data = append(data, wideBytes("CreateRemoteThread")...)
	data = append(data, 0x00, 0x00, 0xff)
	data = append(data, "kernel32.dll"...)

	res, err := NewStrings(0, "").Analyse(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, []string{"kernel32.dll", "kernel32.dll"}, res[KindNarrow])
	assert.Equal(t, []string{"CreateRemoteThread"}, res[KindWide])
}

func TestStrings_EmptyInputYieldsEmptyKinds(t *testing.T) {
	res, err := NewStrings(5, "").Analyse(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, res[KindNarrow])
	assert.Empty(t, res[KindNarrow])
	assert.Empty(t, res[KindWide])
}

func TestStrings_MinLength(t *testing.T) {
	res, err := NewStrings(3, "").Analyse(context.Background(), []byte("\x00abc\x00ab\x00"))
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, res[KindNarrow])
}

func TestStrings_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStrings(0, "").Analyse(ctx, []byte("hello world"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStrings_DebugArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	_, err := NewStrings(0, dir).Analyse(context.Background(), []byte("\x00payload-string\x00"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "payload-string")
}

func TestHeader_Prefix(t *testing.T) {
	res, err := Header{}.Analyse(context.Background(), []byte("MZ\x90\x00"))
	require.NoError(t, err)
	assert.Equal(t, []string{"4d5a9000"}, res[KindPrefix])

	long := make([]byte, 64)
	res, err = Header{}.Analyse(context.Background(), long)
	require.NoError(t, err)
	assert.Len(t, res[KindPrefix][0], HeaderLength*2)
}
