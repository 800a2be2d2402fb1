package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/implicit-corpus/collector/errors"
)

// ProjectConfigName is the file searched for from the working directory upwards
const ProjectConfigName = "collector.toml"

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the collector configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path.
// Defaults apply; the user and system cascade does not.
func LoadFromFile(configPath string) (*Config, error) {
	v := newFileViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %s", configPath)
	}
	return config, nil
}

// UseFile replaces the cached configuration with the contents of configPath.
// Used by the --config flag so later Load calls see the same values.
func UseFile(configPath string) (*Config, error) {
	v := newFileViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	viperInstance = v
	globalConfig = config
	return config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

func newFileViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)
	return v
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	// Set up environment variable binding
	v.SetEnvPrefix("COLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)

	// Manually merge configs in precedence order: system -> user -> project -> env vars
	mergeConfigFiles(v, ConfigPaths())

	viperInstance = v
	return v
}

// ConfigPaths lists the configuration files consulted, lowest precedence first
func ConfigPaths() []string {
	paths := []string{"/etc/collector/collector.toml"}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".collector", ProjectConfigName))
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		paths = append(paths, projectConfig)
	}
	return paths
}

// findProjectConfig searches for collector.toml by walking up the directory tree.
// Returns an empty string when none is found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges the given files into v, later files winning
func mergeConfigFiles(v *viper.Viper, configPaths []string) {
	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(configPath)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
				continue
			}
		}
	}
}
