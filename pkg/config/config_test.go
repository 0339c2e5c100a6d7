package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stubforge/pkg/config"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    config.Version
		wantErr bool
	}{
		{name: "major minor", raw: "3.11", want: config.Version{Major: 3, Minor: 11}},
		{name: "legacy", raw: "2.7", want: config.Version{Major: 2, Minor: 7}},
		{name: "surrounding spaces", raw: " 3.9 ", want: config.Version{Major: 3, Minor: 9}},
		{name: "missing minor", raw: "3", wantErr: true},
		{name: "three parts", raw: "3.11.2", wantErr: true},
		{name: "not numeric", raw: "x.y", wantErr: true},
		{name: "negative", raw: "-3.1", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := config.ParseVersion(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, config.ErrInvalidVersion)
				require.ErrorIs(t, err, config.ErrConfiguration)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}

func TestDefault_MatchesDocumentedDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	assert.Equal(t, config.ModeGenerate, cfg.Mode)
	assert.True(t, cfg.Optimize)
	assert.Equal(t, config.ScopeAll, cfg.Scope)
	assert.True(t, cfg.SolveUnknowns)
	assert.True(t, cfg.RunBuiltins)
	assert.True(t, cfg.CacheUnknowns)
	assert.True(t, cfg.SkipRepeatCalls)
	assert.False(t, cfg.OverrideOnFailure)
	assert.Empty(t, cfg.OutputTag)
	assert.Equal(t, ".pytd", cfg.ImportExt)
	assert.Equal(t, config.DefaultVerbosity, cfg.Verbosity)
	assert.Empty(t, cfg.SearchPath())
	assert.True(t, cfg.Deep())
	assert.Zero(t, cfg.MaximumDepth())
}

func TestSettingsBuild_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Settings)
		want   error
	}{
		{name: "verbosity too high", mutate: func(s *config.Settings) { s.Verbosity = 5 }, want: config.ErrInvalidVerbosity},
		{name: "verbosity too low", mutate: func(s *config.Settings) { s.Verbosity = -2 }, want: config.ErrInvalidVerbosity},
		{name: "bad scope", mutate: func(s *config.Settings) { s.Scope = "everything" }, want: config.ErrInvalidScope},
		{name: "bad version", mutate: func(s *config.Settings) { s.PythonVersion = "three" }, want: config.ErrInvalidVersion},
		{name: "cfg and typegraph", mutate: func(s *config.Settings) {
			s.OutputCFG = "cfg.dot"
			s.OutputTypegraph = "tg.html"
		}, want: config.ErrConflictingDumps},
		{name: "extension without dot", mutate: func(s *config.Settings) { s.PytdExtension = "pyi" }, want: config.ErrInvalidExtension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			settings := config.DefaultSettings()
			tt.mutate(&settings)

			_, err := settings.Build()
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, config.ErrConfiguration)
		})
	}
}

func TestSettingsBuild_DerivedValues(t *testing.T) {
	t.Parallel()

	settings := config.DefaultSettings()
	settings.Check = true
	settings.Quick = true
	settings.Scope = string(config.ScopeEntry)
	settings.PythonPath = "lib:vendor::"
	settings.ImportDropPrefixes = "google3"
	settings.NoFail = true
	settings.OutputID = "gen"

	cfg, err := settings.Build()
	require.NoError(t, err)

	assert.Equal(t, config.ModeCheck, cfg.Mode)
	assert.Equal(t, 1, cfg.MaximumDepth())
	assert.False(t, cfg.Deep())
	assert.Equal(t, []string{"lib", "vendor"}, cfg.SearchPath())
	assert.Equal(t, []string{"google3"}, cfg.DropPrefixes())
	assert.True(t, cfg.OverrideOnFailure)
	assert.Equal(t, "gen", cfg.OutputTag)
}

func TestRunConfig_StructuralImpliesDeep(t *testing.T) {
	t.Parallel()

	settings := config.DefaultSettings()
	settings.Scope = string(config.ScopeEntry)
	settings.Structural = true

	cfg, err := settings.Build()
	require.NoError(t, err)
	assert.True(t, cfg.Deep())
}

func TestRunConfig_AccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	cfg := config.Default().WithSearchPath("a", "b")

	paths := cfg.SearchPath()
	paths[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, cfg.SearchPath())
}
