// Package config loads server and engine settings.
//
// Sources, later ones winning:
//
//  1. built-in defaults
//  2. a .env file in the working directory, if present
//  3. a YAML file (savings.yaml), if a path is given
//  4. SAVINGS_* environment variables
//
// CLI flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/interest"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Accrual  AccrualConfig  `yaml:"accrual"`
	AMQP     AMQPConfig     `yaml:"amqp"`
}

type ServerConfig struct {
	Port      string `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AccrualConfig struct {
	// Schedule is a cron spec or descriptor ("@daily", "0 3 * * *").
	Schedule     string        `yaml:"schedule"`
	RunOnStartup bool          `yaml:"run_on_startup"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// Rates overrides the default annual rates, e.g. savings: "0.05".
	Rates map[string]string `yaml:"rates"`
}

// AMQPConfig enables publishing of posted interest. Empty URL disables it.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "8080",
			StaticDir: "./web",
		},
		Database: DatabaseConfig{Path: "./data/savings.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Accrual: AccrualConfig{
			Schedule:     "@daily",
			RunOnStartup: true,
			WriteTimeout: 5 * time.Second,
		},
		AMQP: AMQPConfig{Exchange: "savings"},
	}
}

// Load builds a Config from defaults, .env, the optional YAML file at path and
// the environment. It does not validate.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SAVINGS_PORT", c.Server.Port)
	c.Server.StaticDir = getEnv("SAVINGS_STATIC_DIR", c.Server.StaticDir)
	c.Database.Path = getEnv("SAVINGS_DB_PATH", c.Database.Path)
	c.Log.Level = getEnv("SAVINGS_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("SAVINGS_LOG_FORMAT", c.Log.Format)
	c.Accrual.Schedule = getEnv("SAVINGS_ACCRUAL_SCHEDULE", c.Accrual.Schedule)
	c.Accrual.RunOnStartup = getEnvBool("SAVINGS_ACCRUAL_ON_STARTUP", c.Accrual.RunOnStartup)
	c.Accrual.WriteTimeout = getEnvDuration("SAVINGS_WRITE_TIMEOUT", c.Accrual.WriteTimeout)
	c.AMQP.URL = getEnv("SAVINGS_AMQP_URL", c.AMQP.URL)
	c.AMQP.Exchange = getEnv("SAVINGS_AMQP_EXCHANGE", c.AMQP.Exchange)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Server.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Server.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.Database.Path == "" {
		problems = append(problems, "database path cannot be empty")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("invalid log level '%s'", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be json or text", c.Log.Format))
	}

	if _, err := cron.ParseStandard(c.Accrual.Schedule); err != nil {
		problems = append(problems, fmt.Sprintf("invalid accrual schedule '%s': %v", c.Accrual.Schedule, err))
	}
	if c.Accrual.WriteTimeout <= 0 {
		problems = append(problems, "write timeout must be positive")
	}
	for category, rate := range c.Accrual.Rates {
		d, err := decimal.NewFromString(rate)
		if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
			problems = append(problems, fmt.Sprintf("invalid %s rate '%s': must be a decimal in [0, 1]", category, rate))
		}
	}

	if c.AMQP.URL != "" {
		if u, err := url.Parse(c.AMQP.URL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQP.URL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQP.Exchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// RateTable merges the configured overrides into the default rates.
func (a AccrualConfig) RateTable() (interest.RateTable, error) {
	overrides := make(map[generic.Category]decimal.Decimal, len(a.Rates))
	for name, rate := range a.Rates {
		c, err := generic.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("%w: %s rate %q", generic.ErrInvalidRate, c, rate)
		}
		overrides[c] = d
	}
	return interest.DefaultRates().WithOverrides(overrides)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
