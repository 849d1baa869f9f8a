package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and optionally a
// config file. Environment variables take precedence over values from
// config files. Returns a populated Config struct or an error if
// loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file: config.yaml in the working directory.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file present; environment variables alone are fine.
	}

	// Environment variables use the GENFORGE_ prefix with underscores,
	// e.g. GENFORGE_DATABASE_URL maps to database.url.
	v.SetEnvPrefix("GENFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for settings that have sensible ones.
// Secrets (database URL, JWT secret, API key) have no defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("compute.model_name", "gemini-2.0-flash")
	v.SetDefault("compute.max_retries", 3)
	v.SetDefault("compute.retry_delay_seconds", 2)

	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.poll_interval_seconds", 10)
	v.SetDefault("task.poll_max_attempts", 60)
	v.SetDefault("task.reconcile_grace_minutes", 30)
	v.SetDefault("task.reconcile_interval_minutes", 5)
	v.SetDefault("task.retention_days", 30)

	v.SetDefault("cost.image_base_cost", 10)
	v.SetDefault("cost.text_base_cost", 5)
	v.SetDefault("cost.per_megapixel", 5)
	v.SetDefault("cost.per_ten_steps", 2)
	v.SetDefault("cost.per_iteration", 3)
	v.SetDefault("cost.initial_balance", 0)
}
