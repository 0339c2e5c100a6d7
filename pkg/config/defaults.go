package config

// Run defaults.
const (
	DefaultPythonVersion    = "3.11"
	DefaultVerbosity        = 1
	DefaultOptimize         = true
	DefaultScope            = string(ScopeAll)
	DefaultSolveUnknowns    = true
	DefaultRunBuiltins      = true
	DefaultReverseOperators = false
	DefaultCacheUnknowns    = true
	DefaultSkipRepeatCalls  = true
	DefaultPytdExtension    = ".pytd"
)

// Verbosity bounds. VerbosityDisabled turns logging off entirely.
const (
	VerbosityDisabled = -1
	VerbosityMax      = 4
)

// StdoutSentinel is the output path that explicitly selects standard output.
const StdoutSentinel = "-"
