// Package config loads application configuration from file and environment
// and installs the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	SOC    SOCConfig    `yaml:"soc" mapstructure:"soc"`
	Mail   MailConfig   `yaml:"mail" mapstructure:"mail"`
	Report ReportConfig `yaml:"report" mapstructure:"report"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Lock   LockConfig   `yaml:"lock" mapstructure:"lock"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SOCConfig holds the remote record system's endpoint and credentials.
type SOCConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	Username         string  `yaml:"username" mapstructure:"username"`
	Password         string  `yaml:"password" mapstructure:"password"`
	TokenWindowMins  int     `yaml:"token_window_mins" mapstructure:"token_window_mins"`
	RequestsPerSec   float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	PrincipalOrgCode string  `yaml:"principal_org_code" mapstructure:"principal_org_code"`
}

// MailConfig configures the SMTP transport and retry schedule.
type MailConfig struct {
	Host             string   `yaml:"host" mapstructure:"host"`
	Port             int      `yaml:"port" mapstructure:"port"`
	Username         string   `yaml:"username" mapstructure:"username"`
	Password         string   `yaml:"password" mapstructure:"password"`
	From             string   `yaml:"from" mapstructure:"from"`
	MaxAttempts      int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelaySecs   int      `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	OperatorContacts []string `yaml:"operator_contacts" mapstructure:"operator_contacts"`
}

// RetryDelay returns the flat pause between send attempts.
func (m MailConfig) RetryDelay() time.Duration {
	return time.Duration(m.RetryDelaySecs) * time.Second
}

// ReportConfig configures artifact rendering.
type ReportConfig struct {
	OutDir      string `yaml:"out_dir" mapstructure:"out_dir"`
	DeckTrigger int    `yaml:"deck_trigger" mapstructure:"deck_trigger"`
}

// BatchConfig configures the batch driver.
type BatchConfig struct {
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	EmailBody   string `yaml:"email_body" mapstructure:"email_body"`
}

// LockConfig configures task lock leasing.
type LockConfig struct {
	LeaseSecs int `yaml:"lease_secs" mapstructure:"lease_secs"`
}

// Lease returns the configured lock lease duration.
func (l LockConfig) Lease() time.Duration {
	return time.Duration(l.LeaseSecs) * time.Second
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("soc.token_window_mins", 30)
	v.SetDefault("soc.requests_per_sec", 2.0)
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.max_attempts", 3)
	v.SetDefault("mail.retry_delay_secs", 30)
	v.SetDefault("report.out_dir", "/tmp/recall-reports")
	v.SetDefault("report.deck_trigger", 50)
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("lock.lease_secs", 900)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
