package registry

import (
	"testing"

	"github.com/gzhole/yaraforge/internal/capability"
	"github.com/gzhole/yaraforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(tags map[string]config.TagConfig) *config.Config {
	return &config.Config{
		Tags:    tags,
		Scoring: config.ScoringConfig{Table: "scores.tsv", Top: 6},
	}
}

func tagNames(cs []capability.Classifier) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.Tag())
	}
	return out
}

func TestDiscover_ClassifiersFollowEnabledTags(t *testing.T) {
	cfg := testConfig(map[string]config.TagConfig{
		"PE":    {Enabled: true},
		"MACHO": {Enabled: true},
		"ELF":   {Enabled: false},
	})
	set, err := Builtin().Discover(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"MACHO", "PE"}, tagNames(set.Classifiers))
}

func TestDiscover_AbsentTagNeverActivated(t *testing.T) {
	set, err := Builtin().Discover(testConfig(map[string]config.TagConfig{}), nil)
	require.NoError(t, err)
	assert.Empty(t, set.Classifiers)
}

func TestDiscover_AllAnalysersAndProcessorsIncluded(t *testing.T) {
	set, err := Builtin().Discover(testConfig(nil), nil)
	require.NoError(t, err)

	require.Len(t, set.Analysers, 2)
	require.Len(t, set.Processors, 2)

	as := set.AnalysersFor([]string{"strings"})
	require.Len(t, as, 1)
	assert.Equal(t, "strings", as[0].Name())

	// Invocation order follows discovery order, not allow-list order.
	ps := set.ProcessorsFor([]string{"strings", "header"})
	require.Len(t, ps, 2)
	assert.Equal(t, "header", ps[0].Name())
	assert.Equal(t, "strings", ps[1].Name())
}

func TestDiscover_AllowListCaseInsensitive(t *testing.T) {
	cfg := testConfig(map[string]config.TagConfig{
		"PE": {Enabled: true, Analysers: config.NameList{"Strings"}, Processors: config.NameList{"HEADER"}},
	})
	set, err := Builtin().Discover(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, set.AnalysersFor(cfg.Tags["PE"].Analysers), 1)
	assert.Len(t, set.ProcessorsFor(cfg.Tags["PE"].Processors), 1)
}

func TestDiscover_UnknownAllowListName(t *testing.T) {
	tests := []struct {
		name string
		tag  config.TagConfig
	}{
		{"analyser", config.TagConfig{Enabled: true, Analysers: config.NameList{"strings", "entropy"}}},
		{"processor", config.TagConfig{Enabled: true, Processors: config.NameList{"yara"}}},
		{"disabled tag still checked", config.TagConfig{Analysers: config.NameList{"nope"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(map[string]config.TagConfig{"PE": tt.tag})
			_, err := Builtin().Discover(cfg, nil)
			assert.ErrorIs(t, err, ErrUnknownCapability)
		})
	}
}

func TestDiscover_DeterministicOrder(t *testing.T) {
	table := Builtin()
	// Reverse registration order; discovery must not depend on it.
	for i, j := 0, len(table.Classifiers)-1; i < j; i, j = i+1, j-1 {
		table.Classifiers[i], table.Classifiers[j] = table.Classifiers[j], table.Classifiers[i]
	}
	cfg := testConfig(map[string]config.TagConfig{
		"PE": {Enabled: true}, "ELF": {Enabled: true}, "MACHO": {Enabled: true},
	})
	set, err := table.Discover(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ELF", "MACHO", "PE"}, tagNames(set.Classifiers))
}

func TestDiscover_DuplicateRegistration(t *testing.T) {
	table := Builtin()
	table.Analysers = append(table.Analysers, table.Analysers[0])
	_, err := table.Discover(testConfig(nil), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestDiscover_CustomActivationPredicate(t *testing.T) {
	table := Builtin()
	table.Processors[1].Active = func(*config.Config) bool { return false }
	off := table.Processors[1].Name

	_, err := table.Discover(testConfig(map[string]config.TagConfig{
		"PE": {Enabled: true, Processors: config.NameList{off}},
	}), nil)
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestSet_UnknownNamesSkipped(t *testing.T) {
	set, err := Builtin().Discover(testConfig(nil), nil)
	require.NoError(t, err)
	assert.Empty(t, set.AnalysersFor([]string{"missing"}))
	assert.Empty(t, set.ProcessorsFor(nil))
}
