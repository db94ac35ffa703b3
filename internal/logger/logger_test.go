package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetup_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := Setup(&buf, "warn", "")
	require.NoError(t, err)
	defer closer.Close()

	log.Info("hidden")
	log.Warn("shown", "tag", "PE")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "tag=PE")
}

func TestSetup_DebugFileReceivesEverything(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "main.log")

	log, closer, err := Setup(&buf, "error", path)
	require.NoError(t, err)
	log.With("run", "r1").Debug("classifying", "file", "a.exe")
	log.Error("boom")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "classifying")
	assert.Contains(t, string(data), "run=r1")
	assert.Contains(t, string(data), "boom")

	assert.NotContains(t, buf.String(), "classifying")
	assert.Contains(t, buf.String(), "boom")
}

func TestSetup_BadLevel(t *testing.T) {
	_, _, err := Setup(&bytes.Buffer{}, "loud", "")
	assert.Error(t, err)
}

func TestReport_Log(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.jsonl")

	report, err := NewReport(path)
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID())

	require.NoError(t, report.Log(Event{
		Tag:        "PE",
		Files:      3,
		Processors: []string{"strings"},
		Conditions: 1,
		Strings:    2,
		RulePath:   "PE.yar",
	}))
	require.NoError(t, report.Log(Event{Tag: "ELF", Files: 1, Error: "no conditions"}))
	require.NoError(t, report.Close())

	events, err := ReadReport(path)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "PE", events[0].Tag)
	assert.True(t, events[0].Written())
	assert.False(t, events[1].Written())
	assert.Equal(t, report.RunID(), events[0].RunID)
	assert.Equal(t, events[0].RunID, events[1].RunID)
	assert.NotEmpty(t, events[0].Timestamp)
}

func TestReport_AppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.jsonl")

	var ids []string
	for i := 0; i < 2; i++ {
		report, err := NewReport(path)
		require.NoError(t, err)
		require.NoError(t, report.Log(Event{Tag: "PE"}))
		ids = append(ids, report.RunID())
		require.NoError(t, report.Close())
	}
	assert.NotEqual(t, ids[0], ids[1])

	events, err := ReadReport(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ids[1], events[1].RunID)
}

func TestReport_ConcurrentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.jsonl")
	report, err := NewReport(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = report.Log(Event{Tag: "PE", Files: 1})
		}()
	}
	wg.Wait()
	require.NoError(t, report.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		var e Event
		assert.NoError(t, json.Unmarshal([]byte(line), &e))
	}
}

func TestReport_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.jsonl")
	report, err := NewReport(path)
	require.NoError(t, err)
	_ = report.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestReport_NilDiscards(t *testing.T) {
	var report *Report
	assert.NoError(t, report.Log(Event{Tag: "PE"}))
	assert.NoError(t, report.Close())
	assert.Empty(t, report.RunID())
}

func TestReadReport_SkipsMalformedAndMissing(t *testing.T) {
	events, err := ReadReport(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, events)

	path := filepath.Join(t.TempDir(), "report.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"tag\":\"PE\"}\nnot json\n\n{\"tag\":\"ELF\"}\n"), 0600))
	events, err = ReadReport(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ELF", events[1].Tag)
}
