// Package config loads driver settings from an optional file and
// prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dan-strohschein/qbdriver/auth"
	"github.com/dan-strohschein/qbdriver/client"
	"github.com/dan-strohschein/qbdriver/logger"
	qbhttp "github.com/dan-strohschein/qbdriver/transport/http"
)

// DefaultPrefix is the environment prefix used when Load is given none.
const DefaultPrefix = "QB_"

// Config is the full driver configuration. Environment variables map onto
// it by lower-casing and replacing underscores with dots: QB_REALM_URL
// sets realm.url.
type Config struct {
	Realm RealmConfig `mapstructure:"realm"`
	App   AppConfig   `mapstructure:"app"`
	Auth  AuthConfig  `mapstructure:"auth"`
	Batch BatchConfig `mapstructure:"batch"`
	Calls CallsConfig `mapstructure:"calls"`
	Log   LogConfig   `mapstructure:"log"`
}

type RealmConfig struct {
	URL string `mapstructure:"url"`
}

type AppConfig struct {
	DBID  string `mapstructure:"dbid"`
	Token string `mapstructure:"token"`
}

type AuthConfig struct {
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Ticket   string        `mapstructure:"ticket"`
	Hours    int           `mapstructure:"hours"`
	Renew    time.Duration `mapstructure:"renew"`
}

type BatchConfig struct {
	Size int `mapstructure:"size"`
}

type CallsConfig struct {
	Max     int           `mapstructure:"max"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Debug bool   `mapstructure:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auth.hours", 12)
	v.SetDefault("auth.renew", 6*time.Hour)
	v.SetDefault("batch.size", 10)
	v.SetDefault("calls.max", 8)
	v.SetDefault("calls.rps", 0)
	v.SetDefault("calls.burst", 1)
	v.SetDefault("calls.timeout", 30*time.Second)
	v.SetDefault("log.level", "INFO")
}

// Load reads file, when non-empty, and then overlays environment variables
// starting with prefix.
func Load(prefix, file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// 1. Config file; its format follows the extension.
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	// 2. Environment variables: QB_CALLS_TIMEOUT -> calls.timeout
	if prefix == "" {
		prefix = DefaultPrefix
	}
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		if len(pair) != 2 {
			continue
		}
		key, value := pair[0], pair[1]

		if strings.HasPrefix(key, prefixUpper) {
			propKey := strings.TrimPrefix(key, prefixUpper)
			propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
			propKey = strings.TrimPrefix(propKey, ".")

			v.Set(propKey, value)
		}
	}

	// 3. Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable fallback.
func (c *Config) Validate() error {
	var errs []error
	if c.Realm.URL == "" {
		errs = append(errs, errors.New("realm.url is required"))
	}
	if c.Batch.Size < 1 {
		errs = append(errs, fmt.Errorf("batch.size must be positive, got %d", c.Batch.Size))
	}
	if c.Auth.Username != "" && c.Auth.Ticket != "" {
		errs = append(errs, errors.New("auth.username and auth.ticket are mutually exclusive"))
	}
	return errors.Join(errs...)
}

// Logger builds the logger described by log.level.
func (c *Config) Logger() logger.Logger {
	return logger.New(c.Log.Level, nil)
}

// ClientOptions returns the client settings, using log for output.
func (c *Config) ClientOptions(log logger.Logger) client.ClientOptions {
	opts := client.DefaultOptions()
	opts.BatchSize = c.Batch.Size
	opts.LogLevel = c.Log.Level
	opts.DebugMode = c.Log.Debug
	opts.Logger = log
	return opts
}

// HTTPOptions returns the transport settings. tickets may be nil.
func (c *Config) HTTPOptions(tickets auth.TicketSource, log logger.Logger) qbhttp.Options {
	return qbhttp.Options{
		BaseURL:            c.Realm.URL,
		AppToken:           c.App.Token,
		Tickets:            tickets,
		Timeout:            c.Calls.Timeout,
		MaxConcurrentCalls: c.Calls.Max,
		RequestsPerSecond:  c.Calls.RPS,
		Burst:              c.Calls.Burst,
		Logger:             log,
	}
}

// Credentials returns the sign-in credentials for a ticket renewer.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{
		Username: c.Auth.Username,
		Password: c.Auth.Password,
		Hours:    c.Auth.Hours,
	}
}

// UsesRenewal reports whether tickets come from signing in rather than a
// fixed auth.ticket.
func (c *Config) UsesRenewal() bool {
	return c.Auth.Username != ""
}
