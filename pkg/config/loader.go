package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".stubforge"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for stubforge settings.
const envPrefix = "STUBFORGE"

// dotEnvFile is loaded into the process environment before config resolution.
const dotEnvFile = ".env"

// LoadConfig resolves the run configuration from defaults, an optional config
// file, STUBFORGE_* environment variables and the given command-line flags, in
// increasing order of precedence.
// If configPath is empty, .stubforge.yaml is searched in CWD and $HOME; a
// missing file is not an error.
func LoadConfig(configPath string, flags *pflag.FlagSet) (RunConfig, error) {
	settings, err := LoadSettings(configPath, flags)
	if err != nil {
		return RunConfig{}, err
	}

	return settings.Build()
}

// LoadSettings is LoadConfig without the final validation step.
func LoadSettings(configPath string, flags *pflag.FlagSet) (Settings, error) {
	envErr := loadDotEnv(dotEnvFile)
	if envErr != nil {
		return Settings{}, envErr
	}

	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viperCfg.AutomaticEnv()

	if flags != nil {
		bindErr := viperCfg.BindPFlags(flags)
		if bindErr != nil {
			return Settings{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return Settings{}, fmt.Errorf("%w: read config: %w", ErrConfiguration, readErr)
		}
	}

	var settings Settings

	unmarshalErr := viperCfg.Unmarshal(&settings)
	if unmarshalErr != nil {
		return Settings{}, fmt.Errorf("%w: unmarshal config: %w", ErrConfiguration, unmarshalErr)
	}

	return settings, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	defaults := DefaultSettings()

	viperCfg.SetDefault("check", defaults.Check)
	viperCfg.SetDefault("output", defaults.Output)
	viperCfg.SetDefault("python-version", defaults.PythonVersion)
	viperCfg.SetDefault("verbosity", defaults.Verbosity)
	viperCfg.SetDefault("quick", defaults.Quick)
	viperCfg.SetDefault("optimize", defaults.Optimize)
	viperCfg.SetDefault("scope", defaults.Scope)
	viperCfg.SetDefault("structural", defaults.Structural)
	viperCfg.SetDefault("solve-unknowns", defaults.SolveUnknowns)
	viperCfg.SetDefault("run-builtins", defaults.RunBuiltins)
	viperCfg.SetDefault("builtins", defaults.Builtins)
	viperCfg.SetDefault("output-cfg", defaults.OutputCFG)
	viperCfg.SetDefault("output-typegraph", defaults.OutputTypegraph)
	viperCfg.SetDefault("output-pseudocode", defaults.OutputPseudocode)
	viperCfg.SetDefault("reverse-operators", defaults.ReverseOperators)
	viperCfg.SetDefault("cache-unknowns", defaults.CacheUnknowns)
	viperCfg.SetDefault("skip-repeat-calls", defaults.SkipRepeatCalls)
	viperCfg.SetDefault("pythonpath", defaults.PythonPath)
	viperCfg.SetDefault("pytd-extension", defaults.PytdExtension)
	viperCfg.SetDefault("import-drop-prefixes", defaults.ImportDropPrefixes)
	viperCfg.SetDefault("no-fail", defaults.NoFail)
	viperCfg.SetDefault("output-id", defaults.OutputID)
	viperCfg.SetDefault("imports-info", defaults.ImportsInfo)
	viperCfg.SetDefault("log-json", defaults.LogJSON)
	viperCfg.SetDefault("metrics-textfile", defaults.MetricsTextfile)
	viperCfg.SetDefault("summary", defaults.Summary)
	viperCfg.SetDefault("no-color", defaults.NoColor)
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: load %s: %w", ErrConfiguration, path, err)
	}

	return nil
}
