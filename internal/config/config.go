package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/Ngetich-86/autoseat-engine/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Backend    BackendConfig    `yaml:"backend"`
	Mpesa      MpesaConfig      `yaml:"mpesa"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Engine     EngineConfig     `yaml:"engine"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheTTL       int    `yaml:"cache_ttl"` // seconds, 0 disables the redis read-cache
}

type MpesaConfig struct {
	BaseURL        string            `yaml:"base_url"`
	ConsumerKey    string            `yaml:"consumer_key"`
	ConsumerSecret string            `yaml:"consumer_secret"`
	ShortCode      string            `yaml:"short_code"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	ResultMessages map[string]string `yaml:"result_messages"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key   string `yaml:"key"`
	Extra string `yaml:"extra"`
	Name  string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type EngineConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxPollCycles       int `yaml:"max_poll_cycles"`
	MaxTransportRetries int `yaml:"max_transport_retries"`
	SessionTTL          int `yaml:"session_ttl"` // seconds
}

// DefaultResultMessages maps known M-Pesa result codes to user-facing
// messages. The backend asserts these meanings; the table stays configurable
// because the codes are not independently verifiable from this side.
var DefaultResultMessages = map[string]string{
	"1":    "Payment failed: insufficient funds.",
	"2001": "Payment failed: wrong PIN entered.",
	"1032": "Payment cancelled by user.",
	"1037": "Payment failed: PIN entry timed out.",
}

var baseURLPattern = regexp.MustCompile(`^https?://`)

func Load(configPath string) (*Config, error) {
	// .env is optional; ignore a missing file but fail on a broken one.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}
	if !baseURLPattern.MatchString(c.Backend.BaseURL) {
		return fmt.Errorf("backend base_url %q must start with http:// or https://", c.Backend.BaseURL)
	}
	if c.Mpesa.BaseURL == "" {
		return errors.New("mpesa base_url is required")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth is enabled but no api_keys are configured")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 10
	}
	if c.Mpesa.TimeoutSeconds == 0 {
		c.Mpesa.TimeoutSeconds = 30
	}

	// Engine defaults preserve the original workflow timings exactly: the
	// timeout is attempt-counted (cycles × interval), not wall-clock.
	if c.Engine.PollIntervalSeconds == 0 {
		c.Engine.PollIntervalSeconds = models.PollIntervalSeconds
	}
	if c.Engine.MaxPollCycles == 0 {
		c.Engine.MaxPollCycles = models.MaxPollCycles
	}
	if c.Engine.MaxTransportRetries == 0 {
		c.Engine.MaxTransportRetries = models.MaxTransportRetries
	}
	if c.Engine.SessionTTL == 0 {
		c.Engine.SessionTTL = models.DefaultSessionTTL
	}

	if c.Mpesa.ResultMessages == nil {
		c.Mpesa.ResultMessages = make(map[string]string, len(DefaultResultMessages))
	}
	for code, msg := range DefaultResultMessages {
		if _, ok := c.Mpesa.ResultMessages[code]; !ok {
			c.Mpesa.ResultMessages[code] = msg
		}
	}
}
