package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete callbridge configuration.
type Config struct {
	// Server is the HTTP/WebSocket server configuration.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Agent configures the hosted voice-agent connection.
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Session tunes per-call bookkeeping cadences.
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Sentiment configures the external sentiment-scoring service.
	Sentiment SentimentConfig `yaml:"sentiment" env:"SENTIMENT"`

	// Pipeline configures the cognitive pipeline collaborator.
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Redis configures the patient-context cache.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Auth configures admin endpoint authentication.
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Log is the zap logger configuration.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry is the OpenTelemetry export configuration.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTP port.
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Read timeout. Must exceed the longest expected call; media streams
	// are long-lived, so zero (no limit) is the usual choice.
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// Write timeout.
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// Graceful shutdown budget, covering in-flight call teardown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// Per-IP rate limit for the HTTP surface.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// Origins allowed to call the admin API from a browser. Empty list
	// means no CORS headers are emitted.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// AgentConfig configures the voice-agent connection and conversation.
type AgentConfig struct {
	// WebSocket endpoint of the hosted agent service.
	URL string `yaml:"url" env:"URL"`
	// API key; connections fail without it.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Inbound event channel capacity.
	EventBuffer int `yaml:"event_buffer" env:"EVENT_BUFFER"`
	// Conversation instructions sent in the settings payload.
	Instructions string `yaml:"instructions" env:"INSTRUCTIONS"`
	// Opening line the agent speaks.
	Greeting string `yaml:"greeting" env:"GREETING"`
}

// SessionConfig tunes the per-call bookkeeping.
type SessionConfig struct {
	// Send a topic summary every Nth patient turn.
	TopicSummaryEvery int `yaml:"topic_summary_every" env:"TOPIC_SUMMARY_EVERY"`
	// Trigger sentiment analysis every Nth patient turn.
	SentimentEvery int `yaml:"sentiment_every" env:"SENTIMENT_EVERY"`
	// Transcript lines scored per analysis.
	SentimentWindow int `yaml:"sentiment_window" env:"SENTIMENT_WINDOW"`
	// Per-call sentiment label history capacity.
	SentimentHistoryCap int `yaml:"sentiment_history_cap" env:"SENTIMENT_HISTORY_CAP"`
	// Consecutive negative labels counted as sustained.
	SustainedNegative int `yaml:"sustained_negative" env:"SUSTAINED_NEGATIVE"`
	// Minimum spacing between consecutive injections.
	InjectionInterval time.Duration `yaml:"injection_interval" env:"INJECTION_INTERVAL"`
}

// SentimentConfig configures the sentiment-scoring service client.
type SentimentConfig struct {
	// Scoring endpoint. Empty disables sentiment monitoring.
	URL     string        `yaml:"url" env:"URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// PipelineConfig configures the cognitive pipeline client.
type PipelineConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig configures the patient-context cache.
type RedisConfig struct {
	// Enabled toggles the cache; the bridge runs fine without it.
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	Addr       string        `yaml:"addr" env:"ADDR"`
	Password   string        `yaml:"password" env:"PASSWORD"`
	DB         int           `yaml:"db" env:"DB"`
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	PoolSize   int           `yaml:"pool_size" env:"POOL_SIZE"`
}

// AuthConfig configures admin endpoint authentication.
type AuthConfig struct {
	// Enabled toggles JWT checks on /api/v1 endpoints.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HMAC secret for JWT verification.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format string `yaml:"format" env:"FORMAT"`
	// Output paths.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// Annotate entries with the calling site.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration, builder style.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "CALLBRIDGE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validation step run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then file, then env.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration or panics. Intended for main.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

// Validate checks the loaded configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Session.SentimentEvery <= 0 {
		errs = append(errs, "sentiment_every must be positive")
	}
	if c.Session.TopicSummaryEvery <= 0 {
		errs = append(errs, "topic_summary_every must be positive")
	}
	if c.Session.SentimentWindow <= 0 {
		errs = append(errs, "sentiment_window must be positive")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, "auth enabled without jwt_secret")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
