// Package config loads the work-tree configuration document with optional
// environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/mdlgrade/internal/store"
)

// Config holds one grading session's settings: the configuration document
// stored in the work tree plus environment-only tunables.
type Config struct {
	ServiceURL string `json:"service_url" mapstructure:"service_url" validate:"required,url"`
	Token      string `json:"token" mapstructure:"token" validate:"required"`
	UserID     int    `json:"user_id" mapstructure:"user_id" validate:"required,gt=0"`
	CourseIDs  []int  `json:"course_ids" mapstructure:"course_ids" validate:"required,min=1,dive,gt=0"`

	// Workers bounds the download/upload worker pools.
	Workers int `json:"-" mapstructure:"workers"`
	// TaskTimeout bounds one file fetch or grade save.
	TaskTimeout time.Duration `json:"-" mapstructure:"-"`
}

// Load reads the configuration document of the work tree at root, applies
// MDL_-prefixed environment overrides (and an optional .env file) and
// validates the result. A corrupt document is fatal for the command.
func Load(root string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MDL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("workers", 10)
	v.SetDefault("task_timeout", "60s")

	path := store.ConfigPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Config{}, fmt.Errorf("no configuration at %s, run init first", path)
	}

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("configuration %s is unreadable: %w", path, err)
	}

	timeout, err := time.ParseDuration(v.GetString("task_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid task timeout: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("configuration %s: %w", path, err)
	}
	cfg.TaskTimeout = timeout
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("configuration %s: %w", path, err)
	}
	return cfg, nil
}

// Write persists the configuration document into the work tree at root.
func Write(root string, cfg Config) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	path := store.ConfigPath(root)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write configuration: %w", err)
	}
	return nil
}
