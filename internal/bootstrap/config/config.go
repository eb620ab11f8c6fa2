package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"qagraph/internal/bootstrap/logging"
	"qagraph/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Jira     JiraConfig     `mapstructure:"jira"`
	Zephyr   ZephyrConfig   `mapstructure:"zephyr"`
	Server   ServerConfig   `mapstructure:"server"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// JiraConfig holds Jira Cloud REST v3 credentials. Email and APIToken are
// mandatory for a live sync; the project key scopes JQL queries.
type JiraConfig struct {
	Host     string `mapstructure:"host"`
	Email    string `mapstructure:"email"`
	APIToken string `mapstructure:"api_token"`
	Project  string `mapstructure:"project"`
}

// ZephyrConfig holds Zephyr Scale Cloud v2 credentials. The token is
// optional: a live sync without it skips the test-management phases.
type ZephyrConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIToken string `mapstructure:"api_token"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if cfg.Database.DSN == "" {
		return Config{}, errors.New("database.dsn is required")
	}
	cfg.Jira.Host = strings.TrimSuffix(cfg.Jira.Host, "/")
	cfg.Zephyr.BaseURL = strings.TrimSuffix(cfg.Zephyr.BaseURL, "/")

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("jira_project", cfg.Jira.Project),
		slog.Bool("zephyr_token_present", cfg.Zephyr.APIToken != ""),
	)

	return cfg, nil
}

// ValidateLiveSync checks the credentials a live sync cannot run without.
// The Zephyr token is deliberately not checked here; its absence downgrades
// the run instead of failing it.
func (c Config) ValidateLiveSync() error {
	if c.Jira.Host == "" {
		return errors.New("jira.host is required for a live sync")
	}
	if c.Jira.Email == "" || c.Jira.APIToken == "" {
		return errors.New("jira.email and jira.api_token are required for a live sync")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "qagraph")
	v.SetDefault("app.env", "local")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".qagraph/state/graph.sqlite")
	v.SetDefault("jira.project", "SCRUM")
	v.SetDefault("zephyr.base_url", "https://api.zephyrscale.smartbear.com/v2")
	v.SetDefault("server.addr", ":8080")
}
