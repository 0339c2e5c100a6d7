// Package config provides the run configuration for stubforge: the flag and
// file backed Settings, and the frozen RunConfig every other component reads.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// ErrConfiguration is the root of every configuration error. A run that fails
// with it has processed no units.
var ErrConfiguration = errors.New("configuration error")

// Sentinel validation errors.
var (
	ErrInvalidVersion   = fmt.Errorf("%w: invalid python version", ErrConfiguration)
	ErrInvalidVerbosity = fmt.Errorf("%w: invalid verbosity level", ErrConfiguration)
	ErrInvalidScope     = fmt.Errorf("%w: invalid analysis scope", ErrConfiguration)
	ErrConflictingDumps = fmt.Errorf("%w: can output CFG or typegraph, but not both", ErrConfiguration)
	ErrInvalidExtension = fmt.Errorf("%w: stub extension must start with '.'", ErrConfiguration)
)

// Mode selects between verifying an existing stub and generating a new one.
type Mode string

const (
	// ModeGenerate infers a stub from source and writes it.
	ModeGenerate Mode = "generate"
	// ModeCheck verifies source against its existing stub.
	ModeCheck Mode = "check"
)

// Scope selects which definitions the engine analyzes.
type Scope string

const (
	// ScopeAll analyzes every definition in a unit.
	ScopeAll Scope = "all"
	// ScopeEntry analyzes only definitions reachable from module-level code.
	ScopeEntry Scope = "entry"
)

// Version is a target language version.
type Version struct {
	Major int
	Minor int
}

const versionParts = 2

// ParseVersion parses a "major.minor" version string.
func ParseVersion(raw string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != versionParts {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
	}

	major, majorErr := strconv.Atoi(parts[0])
	minor, minorErr := strconv.Atoi(parts[1])

	if majorErr != nil || minorErr != nil || major < 0 || minor < 0 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, raw)
	}

	return Version{Major: major, Minor: minor}, nil
}

func (v Version) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// Settings is the raw, viper-unmarshalled form of the run options. Keys match
// the command-line flag names.
type Settings struct {
	Check              bool   `mapstructure:"check"`
	Output             string `mapstructure:"output"`
	PythonVersion      string `mapstructure:"python-version"`
	Verbosity          int    `mapstructure:"verbosity"`
	Quick              bool   `mapstructure:"quick"`
	Optimize           bool   `mapstructure:"optimize"`
	Scope              string `mapstructure:"scope"`
	Structural         bool   `mapstructure:"structural"`
	SolveUnknowns      bool   `mapstructure:"solve-unknowns"`
	RunBuiltins        bool   `mapstructure:"run-builtins"`
	Builtins           string `mapstructure:"builtins"`
	OutputCFG          string `mapstructure:"output-cfg"`
	OutputTypegraph    string `mapstructure:"output-typegraph"`
	OutputPseudocode   string `mapstructure:"output-pseudocode"`
	ReverseOperators   bool   `mapstructure:"reverse-operators"`
	CacheUnknowns      bool   `mapstructure:"cache-unknowns"`
	SkipRepeatCalls    bool   `mapstructure:"skip-repeat-calls"`
	PythonPath         string `mapstructure:"pythonpath"`
	PytdExtension      string `mapstructure:"pytd-extension"`
	ImportDropPrefixes string `mapstructure:"import-drop-prefixes"`
	NoFail             bool   `mapstructure:"no-fail"`
	OutputID           string `mapstructure:"output-id"`
	ImportsInfo        string `mapstructure:"imports-info"`
	LogJSON            bool   `mapstructure:"log-json"`
	MetricsTextfile    string `mapstructure:"metrics-textfile"`
	Summary            bool   `mapstructure:"summary"`
	NoColor            bool   `mapstructure:"no-color"`
}

// DefaultSettings returns Settings populated with the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		PythonVersion:    DefaultPythonVersion,
		Verbosity:        DefaultVerbosity,
		Optimize:         DefaultOptimize,
		Scope:            DefaultScope,
		SolveUnknowns:    DefaultSolveUnknowns,
		RunBuiltins:      DefaultRunBuiltins,
		ReverseOperators: DefaultReverseOperators,
		CacheUnknowns:    DefaultCacheUnknowns,
		SkipRepeatCalls:  DefaultSkipRepeatCalls,
		PytdExtension:    DefaultPytdExtension,
	}
}

// Build validates the settings and freezes them into a RunConfig.
func (s Settings) Build() (RunConfig, error) {
	version, err := ParseVersion(s.PythonVersion)
	if err != nil {
		return RunConfig{}, err
	}

	if s.Verbosity < VerbosityDisabled || s.Verbosity > VerbosityMax {
		return RunConfig{}, fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidVerbosity, s.Verbosity, VerbosityDisabled, VerbosityMax)
	}

	scope := Scope(s.Scope)
	if scope != ScopeAll && scope != ScopeEntry {
		return RunConfig{}, fmt.Errorf("%w: %q", ErrInvalidScope, s.Scope)
	}

	if s.OutputCFG != "" && s.OutputTypegraph != "" {
		return RunConfig{}, ErrConflictingDumps
	}

	if !strings.HasPrefix(s.PytdExtension, ".") {
		return RunConfig{}, fmt.Errorf("%w: %q", ErrInvalidExtension, s.PytdExtension)
	}

	mode := ModeGenerate
	if s.Check {
		mode = ModeCheck
	}

	return RunConfig{
		Mode:              mode,
		Output:            s.Output,
		Version:           version,
		Verbosity:         s.Verbosity,
		Approximate:       s.Quick,
		Optimize:          s.Optimize,
		Scope:             scope,
		Structural:        s.Structural,
		SolveUnknowns:     s.SolveUnknowns,
		RunBuiltins:       s.RunBuiltins,
		BuiltinsPath:      s.Builtins,
		OutputCFG:         s.OutputCFG,
		OutputTypegraph:   s.OutputTypegraph,
		OutputPseudocode:  s.OutputPseudocode,
		ReverseOperators:  s.ReverseOperators,
		CacheUnknowns:     s.CacheUnknowns,
		SkipRepeatCalls:   s.SkipRepeatCalls,
		ImportExt:         s.PytdExtension,
		OverrideOnFailure: s.NoFail,
		OutputTag:         s.OutputID,
		ImportsInfo:       s.ImportsInfo,
		LogJSON:           s.LogJSON,
		MetricsTextfile:   s.MetricsTextfile,
		Summary:           s.Summary,
		NoColor:           s.NoColor,
		searchPath:        SplitPathList(s.PythonPath),
		dropPrefixes:      SplitPathList(s.ImportDropPrefixes),
	}, nil
}

// RunConfig is the immutable configuration of one run. It is passed by value;
// list-valued options are only reachable through copying accessors.
type RunConfig struct {
	Mode              Mode
	Output            string
	Version           Version
	Verbosity         int
	Approximate       bool
	Optimize          bool
	Scope             Scope
	Structural        bool
	SolveUnknowns     bool
	RunBuiltins       bool
	BuiltinsPath      string
	OutputCFG         string
	OutputTypegraph   string
	OutputPseudocode  string
	ReverseOperators  bool
	CacheUnknowns     bool
	SkipRepeatCalls   bool
	ImportExt         string
	OverrideOnFailure bool
	OutputTag         string
	ImportsInfo       string
	LogJSON           bool
	MetricsTextfile   string
	Summary           bool
	NoColor           bool

	searchPath   []string
	dropPrefixes []string
}

// Default returns the RunConfig produced by DefaultSettings.
func Default() RunConfig {
	cfg, err := DefaultSettings().Build()
	if err != nil {
		panic(fmt.Sprintf("default settings are invalid: %v", err))
	}

	return cfg
}

// SearchPath returns the ordered stub search directories.
func (c RunConfig) SearchPath() []string {
	return slices.Clone(c.searchPath)
}

// DropPrefixes returns the module prefixes stripped before import resolution.
func (c RunConfig) DropPrefixes() []string {
	return slices.Clone(c.dropPrefixes)
}

// WithSearchPath returns a copy of c using the given search directories.
func (c RunConfig) WithSearchPath(dirs ...string) RunConfig {
	c.searchPath = slices.Clone(dirs)

	return c
}

// WithDropPrefixes returns a copy of c using the given drop prefixes.
func (c RunConfig) WithDropPrefixes(prefixes ...string) RunConfig {
	c.dropPrefixes = slices.Clone(prefixes)

	return c
}

// Deep reports whether every definition must be analyzed, not just those
// reachable from module-level code.
func (c RunConfig) Deep() bool {
	return c.Scope == ScopeAll || c.Structural
}

// MaximumDepth is the call-following bound handed to the engine. Zero means
// unlimited.
func (c RunConfig) MaximumDepth() int {
	if c.Approximate {
		return 1
	}

	return 0
}

// SplitPathList splits a path-list-separator joined string, dropping empty
// entries.
func SplitPathList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := filepath.SplitList(raw)
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
