package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environments understood by WorkflowConfig.Env.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Workflow WorkflowConfig `yaml:"workflow" mapstructure:"workflow"`
	Poll     PollConfig     `yaml:"poll" mapstructure:"poll"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// WorkflowConfig points at the external workflow engine. Each webhook URL is
// optional; what happens when one is missing depends on Env.
type WorkflowConfig struct {
	Env                 string  `yaml:"env" mapstructure:"env"`
	AnalysisWebhookURL  string  `yaml:"analysis_webhook_url" mapstructure:"analysis_webhook_url"`
	BreakdownWebhookURL string  `yaml:"breakdown_webhook_url" mapstructure:"breakdown_webhook_url"`
	DailyTaskWebhookURL string  `yaml:"daily_task_webhook_url" mapstructure:"daily_task_webhook_url"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSec          float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	InboundSecret       string  `yaml:"inbound_secret" mapstructure:"inbound_secret"`
}

// PollConfig configures status polling by the CLI watcher.
type PollConfig struct {
	IntervalSecs int    `yaml:"interval_secs" mapstructure:"interval_secs"`
	MaxAttempts  int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	ServerURL    string `yaml:"server_url" mapstructure:"server_url"`
}

// legacyEnv maps keys to the variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"store.database_url":              "DATABASE_URL",
	"workflow.analysis_webhook_url":   "N8N_WORKFLOW_ANALYSIS_WEBHOOK_URL",
	"workflow.breakdown_webhook_url":  "N8N_WORKFLOW_2_WEBHOOK_URL",
	"workflow.daily_task_webhook_url": "N8N_WORKFLOW_3_WEBHOOK_URL",
}

// Load reads configuration from file and environment. An empty path looks
// for an optional config.yaml in the working directory; a given path must
// exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("GOALFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		// Prefixed name wins over the legacy alias.
		if err := v.BindEnv(key, "GOALFLOW_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), name); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.database_url", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("workflow.env", EnvDevelopment)
	v.SetDefault("workflow.analysis_webhook_url", "")
	v.SetDefault("workflow.breakdown_webhook_url", "")
	v.SetDefault("workflow.daily_task_webhook_url", "")
	v.SetDefault("workflow.inbound_secret", "")
	v.SetDefault("workflow.timeout_secs", 5)
	v.SetDefault("workflow.max_attempts", 2)
	v.SetDefault("workflow.rate_per_sec", 5.0)
	v.SetDefault("poll.interval_secs", 3)
	v.SetDefault("poll.max_attempts", 60)
	v.SetDefault("poll.server_url", "http://localhost:8080")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. Mode is one of
// "serve", "store" or "watch".
func (c *Config) Validate(mode string) error {
	var errs []string

	checkStore := func() {
		switch c.Store.Driver {
		case "postgres", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "serve":
		checkStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		switch c.Workflow.Env {
		case EnvDevelopment, EnvProduction:
		default:
			errs = append(errs, fmt.Sprintf("workflow.env %q must be development or production", c.Workflow.Env))
		}
		if c.Workflow.TimeoutSecs <= 0 {
			errs = append(errs, "workflow.timeout_secs must be > 0")
		}
		if c.Workflow.MaxAttempts < 1 || c.Workflow.MaxAttempts > 10 {
			errs = append(errs, "workflow.max_attempts must be between 1 and 10")
		}
		if c.Workflow.RatePerSec < 0 {
			errs = append(errs, "workflow.rate_per_sec must be >= 0")
		}
	case "store":
		checkStore()
	case "watch":
		if c.Poll.IntervalSecs <= 0 {
			errs = append(errs, "poll.interval_secs must be > 0")
		}
		if c.Poll.MaxAttempts <= 0 {
			errs = append(errs, "poll.max_attempts must be > 0")
		}
		if c.Poll.ServerURL == "" {
			errs = append(errs, "poll.server_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// IsProduction reports whether missing webhook URLs are fatal.
func (c *Config) IsProduction() bool {
	return c.Workflow.Env == EnvProduction
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
