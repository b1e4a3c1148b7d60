package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/woliveiras/cpdeploy/pkg/deploy"
)

// ConfigFileName is looked up in the project directory and in the
// cpdeploy directory under $XDG_CONFIG_HOME.
const ConfigFileName = ".cpdeploy.yaml"

// Config holds all cpdeploy configuration.
type Config struct {
	Project ProjectConfig `mapstructure:"project"`
	Device  DeviceConfig  `mapstructure:"device"`
	Backup  BackupConfig  `mapstructure:"backup"`
	Log     LogConfig     `mapstructure:"log"`
}

// ProjectConfig describes the host-side project layout.
type ProjectConfig struct {
	Dir        string   `mapstructure:"dir"`
	LibDir     string   `mapstructure:"lib_dir"`
	HelpersDir string   `mapstructure:"helpers_dir"`
	Helpers    []string `mapstructure:"helpers"`
	Exclude    []string `mapstructure:"exclude"`
}

// DeviceConfig controls discovery and the firmware gate.
type DeviceConfig struct {
	Labels      []string `mapstructure:"labels"`
	SearchRoots []string `mapstructure:"search_roots"`
	// MinVersion is a semver constraint such as ">= 8.0.0".
	MinVersion string `mapstructure:"min_version"`
}

// BackupConfig holds backup configuration.
type BackupConfig struct {
	Dir string `mapstructure:"dir"`
	// Auto is the backup decision taken in --auto mode.
	Auto bool `mapstructure:"auto"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultBackupDir is where backups go unless backup.dir says otherwise.
func DefaultBackupDir() string {
	return filepath.Join(xdg.DataHome, "cpdeploy", "backups")
}

// LoadConfig loads configuration from file and environment. An explicit
// configPath must exist; otherwise ConfigFileName is searched in projectDir
// and then in $XDG_CONFIG_HOME/cpdeploy, and a missing file means defaults.
func LoadConfig(configPath, projectDir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("project.dir", ".")
	v.SetDefault("project.lib_dir", deploy.DeviceLibDir)
	v.SetDefault("project.helpers_dir", "helpers")
	v.SetDefault("project.helpers", []string{"install_req.py"})
	v.SetDefault("project.exclude", deploy.DefaultExclude)

	v.SetDefault("device.labels", []string{deploy.DefaultLabel})
	v.SetDefault("device.search_roots", []string{})
	v.SetDefault("device.min_version", "")

	v.SetDefault("backup.dir", DefaultBackupDir())
	v.SetDefault("backup.auto", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	} else {
		if projectDir == "" {
			projectDir = "."
		}
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(projectDir)
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "cpdeploy"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CPDEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
