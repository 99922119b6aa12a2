// Package config loads client settings from an optional lending.yaml file
// and LENDING_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/lehigh-university-libraries/lending/internal/catalog"
	"github.com/lehigh-university-libraries/lending/internal/storage"
)

// Config holds everything the CLI and the local API need
type Config struct {
	APIURL      string        `mapstructure:"api_url" validate:"required,url"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	SessionFile string        `mapstructure:"session_file" validate:"required"`
	LogLevel    string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Output      string        `mapstructure:"output" validate:"oneof=table json yaml"`
	ServeAddr   string        `mapstructure:"serve_addr" validate:"required"`
}

// New returns a viper instance with defaults, env binding and the config file
// search path applied. configFile may be empty.
func New(configFile string) *viper.Viper {
	v := viper.New()

	v.SetDefault("api_url", catalog.DefaultBaseURL)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("session_file", storage.DefaultPath())
	v.SetDefault("log_level", "info")
	v.SetDefault("output", "table")
	v.SetDefault("serve_addr", ":8888")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
	} else {
		v.SetConfigName("lending")
		v.SetConfigType("yaml")
	}

	// LENDING_API_URL, LENDING_SESSION_FILE, ...
	v.SetEnvPrefix("LENDING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file if there is one and validates the result
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", strings.ToLower(fe.Field()), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// findConfigFile looks for lending.yaml or lending.yml in the working
// directory and then in the user config directory.
func findConfigFile() string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "lending"))
	}
	return findConfigFileInPaths(paths)
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "lending"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
