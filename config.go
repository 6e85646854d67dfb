package main

import (
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/spf13/viper"
)

// Config is the configuration of the filter, read from file, environment (ECATXDP_*) and flags.
type Config struct {
	Interface string         `mapstructure:"interface"`
	EtherType uint32         `mapstructure:"ethertype"`
	Verifier  VerifierConfig `mapstructure:"verifier"`
	Log       LogConfig      `mapstructure:"log"`
}

type VerifierConfig struct {
	Verbose bool `mapstructure:"verbose"`
	// LogSize is the verifier log buffer in bytes, used for verbose loads.
	LogSize int `mapstructure:"log_size"`
}

type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables a rotating log file next to stderr when Path is set.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interface", "")
	v.SetDefault("ethertype", uint32(EtherTypeEtherCAT))
	v.SetDefault("verifier.verbose", false)
	v.SetDefault("verifier.log_size", defaultVerifierLogSize)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.max_size", 10)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age", 28)
}

// LoadConfig reads the config file at path, if any, on top of the defaults and the environment.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("ecatxdp")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config '%s': %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.EtherType > 0xFFFF {
		return nil, fmt.Errorf("ethertype 0x%X: does not fit in 16 bits", cfg.EtherType)
	}
	if cfg.EtherType < 0x0600 {
		return nil, fmt.Errorf("ethertype 0x%04X: values below 0x0600 are frame lengths", cfg.EtherType)
	}
	if cfg.Verifier.LogSize <= 0 {
		return nil, fmt.Errorf("verifier.log_size %d: must be positive", cfg.Verifier.LogSize)
	}

	return &cfg, nil
}

// Classifier returns the classifier described by the config.
func (c *Config) Classifier() Classifier {
	return Classifier{EtherType: layers.EthernetType(c.EtherType)}
}

// ProgramOptions returns the load options described by the config.
func (c *Config) ProgramOptions() ProgramOptions {
	return ProgramOptions{
		VerboseVerifier: c.Verifier.Verbose,
		VerifierLogSize: c.Verifier.LogSize,
	}
}
