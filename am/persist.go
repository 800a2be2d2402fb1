package am

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/implicit-corpus/collector/errors"
)

const initHeader = `# collector configuration
#
# Precedence (lowest to highest): /etc/collector/collector.toml,
# ~/.collector/collector.toml, ./collector.toml (searched upwards), COLLECTOR_* env.
#
# Tools are downloaded once into tool_cache.dir and copied into every project
# before it is built, e.g.:
#
# [[tools]]
# name = "semanticdb-configure"
# url = "<download url of SemanticdbConfigure.scala>"
# install_path = "project/SemanticdbConfigure.scala"

`

// DefaultSettings returns the default configuration as nested maps, the shape
// written by WriteDefault
func DefaultSettings() map[string]interface{} {
	v := viper.New()
	SetDefaults(v)
	return v.AllSettings()
}

// WriteDefault writes a configuration file holding every default value.
// An existing file is kept unless force is set, in which case it is rotated
// into .back1..back3 first.
func WriteDefault(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.WithHint(
			errors.Newf("%s already exists", configPath),
			"pass --force to overwrite it (the old file is kept as .back1)")
	}

	data, err := toml.Marshal(DefaultSettings())
	if err != nil {
		return errors.Wrap(err, "failed to marshal default config")
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	var buf bytes.Buffer
	buf.WriteString(initHeader)
	buf.Write(data)

	if err := os.WriteFile(configPath, buf.Bytes(), DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", configPath)
	}
	return nil
}

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete old backup %s", back3)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}
