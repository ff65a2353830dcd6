package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	APIHost                 string `mapstructure:"api_host"`
	APIPort                 int    `mapstructure:"api_port"`
	UpdateInterval          int    `mapstructure:"update_interval"`
	IPSource                string `mapstructure:"ip_source"`
	UseFallback             bool   `mapstructure:"use_fallback"`
	RouterHost              string `mapstructure:"router_host"`
	RouterPort              int    `mapstructure:"router_port"`
	EnableRefreshIPEndpoint bool   `mapstructure:"enable_refresh_ip_endpoint"`
	RateLimitIPRenewal      int    `mapstructure:"rate_limit_ip_renewal"`
	SettleDelay             int    `mapstructure:"settle_delay"`
	RequestTimeout          int    `mapstructure:"request_timeout"`
	LogLevel                string `mapstructure:"log_level"`
	DatabaseURL             string `mapstructure:"database_url"`
	ServiceCatalog          string `mapstructure:"service_catalog"`

	userSet map[string]bool
}

type setting struct {
	key   string
	envs  []string
	value any
}

// settings lists every key in the order it is logged at startup.
var settings = []setting{
	{"api_host", []string{"API_HOST"}, "0.0.0.0"},
	{"api_port", []string{"API_PORT"}, 9090},
	{"update_interval", []string{"UPDATE_INTERVAL"}, 60},
	{"ip_source", []string{"IP_SOURCE"}, "router"},
	{"use_fallback", []string{"USE_FALLBACK"}, true},
	{"router_host", []string{"ROUTER_HOST", "FRITZBOX_HOST"}, "fritz.box"},
	{"router_port", []string{"ROUTER_PORT"}, 49000},
	{"enable_refresh_ip_endpoint", []string{"ENABLE_REFRESH_IP_ENDPOINT"}, true},
	{"rate_limit_ip_renewal", []string{"RATE_LIMIT_IP_RENEWAL"}, 300},
	{"settle_delay", []string{"SETTLE_DELAY"}, 20},
	{"request_timeout", []string{"REQUEST_TIMEOUT"}, 10},
	{"log_level", []string{"LOG_LEVEL"}, "INFO"},
	{"database_url", []string{"DATABASE_URL"}, ""},
	{"service_catalog", []string{"SERVICE_CATALOG"}, ""},
}

// Load reads defaults, then the config file, then the environment. With an
// empty path an optional wanip.yaml in the working directory is used.
func Load(path string) (*Config, error) {
	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.value)
		if err := v.BindEnv(append([]string{s.key}, s.envs...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", s.key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("wanip")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.userSet = make(map[string]bool, len(settings))
	for _, s := range settings {
		cfg.userSet[s.key] = v.InConfig(s.key) || envSet(s.envs)
	}

	cfg.IPSource = strings.ToLower(strings.TrimSpace(cfg.IPSource))
	if cfg.IPSource == "fritzbox" {
		cfg.IPSource = "router"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envSet(names []string) bool {
	for _, name := range names {
		if _, ok := os.LookupEnv(name); ok {
			return true
		}
	}
	return false
}

// validate rejects values no component can run with. An unknown ip_source
// is not rejected here; each cycle reports it instead.
func (c *Config) validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api_port %d", c.APIPort)
	}
	if c.RouterPort <= 0 || c.RouterPort > 65535 {
		return fmt.Errorf("invalid router_port %d", c.RouterPort)
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("update_interval must be positive, got %d", c.UpdateInterval)
	}
	if c.RateLimitIPRenewal < 0 || c.SettleDelay < 0 {
		return errors.New("rate_limit_ip_renewal and settle_delay must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %d", c.RequestTimeout)
	}
	return nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Second
}

func (c *Config) RefreshWindow() time.Duration {
	return time.Duration(c.RateLimitIPRenewal) * time.Second
}

func (c *Config) Settle() time.Duration {
	return time.Duration(c.SettleDelay) * time.Second
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// UserSet reports whether key came from the environment or a config file.
func (c *Config) UserSet(key string) bool {
	return c.userSet[key]
}

func (c *Config) values() map[string]any {
	dsn := c.DatabaseURL
	if dsn != "" {
		dsn = "<redacted>"
	}
	return map[string]any{
		"api_host":                   c.APIHost,
		"api_port":                   c.APIPort,
		"update_interval":            c.UpdateInterval,
		"ip_source":                  c.IPSource,
		"use_fallback":               c.UseFallback,
		"router_host":                c.RouterHost,
		"router_port":                c.RouterPort,
		"enable_refresh_ip_endpoint": c.EnableRefreshIPEndpoint,
		"rate_limit_ip_renewal":      c.RateLimitIPRenewal,
		"settle_delay":               c.SettleDelay,
		"request_timeout":            c.RequestTimeout,
		"log_level":                  c.LogLevel,
		"database_url":               dsn,
		"service_catalog":            c.ServiceCatalog,
	}
}

// LogSummary logs every setting with its origin.
func (c *Config) LogSummary(logger *zap.Logger) {
	values := c.values()
	for _, s := range settings {
		origin := "(default)"
		if c.userSet[s.key] {
			origin = "(set by user)"
		}
		logger.Info(fmt.Sprintf("%s: %v %s", s.envs[0], values[s.key], origin))
	}
}
