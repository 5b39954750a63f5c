// Package config loads the tftpboot daemon configuration.
//
// Sources, highest precedence first:
//  1. Environment variables (TFTPBOOT_*, e.g. TFTPBOOT_TFTP_PORT)
//  2. Configuration file (YAML)
//  3. Defaults
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imdario/mergo"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "TFTPBOOT"

type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	TFTP    TFTPConfig    `mapstructure:"tftp"`
	// ClusterUUID is added to every generator request when set.
	ClusterUUID string           `mapstructure:"cluster_uuid" validate:"omitempty,uuid"`
	Controller  ControllerConfig `mapstructure:"controller"`
	Events      EventsConfig     `mapstructure:"events"`
	Parameters  ParametersConfig `mapstructure:"parameters"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

type TFTPConfig struct {
	// Root is the directory static files are served from.
	Root string `mapstructure:"root" validate:"required"`
	Port uint16 `mapstructure:"port" validate:"required"`
	// Generator is the URL boot parameters are fetched from.
	Generator string `mapstructure:"generator" validate:"required,url"`
	// Timeout and Retries tune every transfer. Zero is replaced by the default.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Retries int           `mapstructure:"retries" validate:"gt=0,lte=20"`
}

type ControllerConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type EventsConfig struct {
	// URL receives boot request events as JSON. Events are only logged when empty.
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

type ParametersConfig struct {
	// File serves boot parameters from a YAML file instead of the controller.
	File string `mapstructure:"file"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    uint16 `mapstructure:"port" validate:"required_if=Enabled true"`
}

// Defaults returns the configuration used for every unset key.
func Defaults() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		TFTP: TFTPConfig{
			Root:      "/var/lib/maas/boot-resources/current/",
			Port:      69,
			Generator: "http://localhost/MAAS/api/1.0/pxeconfig/",
			Timeout:   5 * time.Second,
			Retries:   5,
		},
		Controller: ControllerConfig{
			Timeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Load reads the configuration file at path, applies environment overrides and
// defaults, and validates the result. An empty path searches the working
// directory and /etc/tftpboot for tftpboot.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every zero field of cfg from Defaults.
func ApplyDefaults(cfg *Config) error {
	if err := mergo.Merge(cfg, Defaults()); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	return nil
}

func setupViper(v *viper.Viper, path string) {
	// TFTPBOOT_TFTP_ROOT overrides tftp.root.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper knows about.
	bindKeys(v)

	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.SetConfigName("tftpboot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/tftpboot")
}

func bindKeys(v *viper.Viper) {
	for _, k := range []string{
		"logging.level", "logging.format",
		"tftp.root", "tftp.port", "tftp.generator", "tftp.timeout", "tftp.retries",
		"cluster_uuid",
		"controller.timeout",
		"events.url",
		"parameters.file",
		"metrics.enabled", "metrics.port",
	} {
		_ = v.BindEnv(k)
	}
}
