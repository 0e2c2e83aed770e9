// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LumberjackConfig configures the rolling log file
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig selects log level, encoding and an optional log file
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// Config is the merged result of flags, environment and config file
type Config struct {
	Port         string        `mapstructure:"port"`
	Baud         int           `mapstructure:"baud"`
	URL          string        `mapstructure:"url"`
	Username     string        `mapstructure:"username"`
	NoSSLVerify  bool          `mapstructure:"no_ssl_verify"`
	Simulate     bool          `mapstructure:"simulate"`
	Record       string        `mapstructure:"record"`
	Gap          time.Duration `mapstructure:"gap"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	Output       string        `mapstructure:"output"`
	Log          LoggingConfig `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("baud", 9600)
	v.SetDefault("gap", 50*time.Millisecond)
	v.SetDefault("write_timeout", 2*time.Second)
	v.SetDefault("read_timeout", 2*time.Second)
	v.SetDefault("output", "text")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file.max_size", 10)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age", 28)
}

// loadConfig reads the optional config file, ERGOSTAT_ environment variables
// and the bound command line flags. Flags win over environment, which wins
// over the file.
func loadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ergostat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ergostat")
	}

	setDefaults(v)

	v.SetEnvPrefix("ERGOSTAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			switch key {
			case "config":
				return
			case "log_level":
				key = "log.level"
			case "log_format":
				key = "log.format"
			case "log_file":
				key = "log.file.filename"
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Running without a config file is fine
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q (use text, json or yaml)", c.Output)
	}
	if c.Gap < 0 || c.WriteTimeout <= 0 || c.ReadTimeout <= 0 {
		return fmt.Errorf("gap must be >= 0 and timeouts > 0")
	}
	return nil
}
