package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Compute  ComputeConfig  `mapstructure:"compute" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Cost     CostConfig     `mapstructure:"cost" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains bearer-token settings. The API only validates
// tokens; issuance is for tooling and tests.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gte=1"`
}

// ComputeConfig contains settings for the external compute adapter.
type ComputeConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name" validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
}

// TaskConfig contains dispatcher and polling settings. The polling
// budget is PollIntervalSeconds * PollMaxAttempts.
type TaskConfig struct {
	WorkerCount              int `mapstructure:"worker_count" validate:"required,gte=1,lte=64"`
	PollIntervalSeconds      int `mapstructure:"poll_interval_seconds" validate:"required,gte=1"`
	PollMaxAttempts          int `mapstructure:"poll_max_attempts" validate:"required,gte=1"`
	ReconcileGraceMinutes    int `mapstructure:"reconcile_grace_minutes" validate:"required,gte=1"`
	ReconcileIntervalMinutes int `mapstructure:"reconcile_interval_minutes" validate:"required,gte=1"`
	RetentionDays            int `mapstructure:"retention_days" validate:"gte=0"`
}

// CostConfig contains the parameters of the standard cost policy.
// Amounts are in credits.
type CostConfig struct {
	ImageBaseCost  int64 `mapstructure:"image_base_cost" validate:"required,gte=1"`
	TextBaseCost   int64 `mapstructure:"text_base_cost" validate:"required,gte=1"`
	PerMegapixel   int64 `mapstructure:"per_megapixel" validate:"gte=0"`
	PerTenSteps    int64 `mapstructure:"per_ten_steps" validate:"gte=0"`
	PerIteration   int64 `mapstructure:"per_iteration" validate:"gte=0"`
	InitialBalance int64 `mapstructure:"initial_balance" validate:"gte=0"`
}
