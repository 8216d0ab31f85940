// Package config resolves settings from flags, TOPOLOGY_* environment variables
// and an optional topology.yaml file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	KeyDBPath         = "db_path"
	KeyLogLevel       = "log_level"
	KeyLogFile        = "log_file"
	KeyFormat         = "format"
	KeyReferenceDir   = "reference_dir"
	KeyErrorThreshold = "error_threshold"

	EnvPrefix = "TOPOLOGY"
	FileName  = "topology"
)

type Config struct {
	DBPath         string `mapstructure:"db_path"`
	LogLevel       string `mapstructure:"log_level"`
	LogFile        string `mapstructure:"log_file"`
	Format         string `mapstructure:"format"`
	ReferenceDir   string `mapstructure:"reference_dir"`
	ErrorThreshold int    `mapstructure:"error_threshold"`
}

// NewViper returns a viper instance carrying the defaults and lookup rules.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyDBPath, "topology.sqlite")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyFormat, "table")
	v.SetDefault(KeyReferenceDir, "")
	v.SetDefault(KeyErrorThreshold, 100)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".topology"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and decodes the merged settings.
// configFile overrides the search path; a missing explicit file is an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", KeyLogLevel, cfg.LogLevel, err)
	}
	return cfg, nil
}
