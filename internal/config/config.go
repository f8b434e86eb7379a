// Package config loads the process configuration from a YAML file and
// environment-variable overrides, following the same
// LoadConfig/applyDefaults/applyEnvironmentOverrides/ValidateConfig
// pipeline used throughout this codebase's retrieval pack.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"ssw-trace-core/internal/bterr"
)

// AppConfig carries process-identity fields, mirroring the teacher's
// App section.
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig configures the shared logrus.Logger every package
// constructor receives.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the promhttp mount point.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// TracingConfig configures internal/obs's OTel tracer.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // jaeger, otlp, console
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// ResourceConfig configures internal/obs/resource's gopsutil sampler.
type ResourceConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// HTTPServerConfig configures the gorilla/mux debug/metrics surface.
type HTTPServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// ObsConfig groups every ambient observability concern.
type ObsConfig struct {
	Tracing    TracingConfig    `yaml:"tracing"`
	Resource   ResourceConfig   `yaml:"resource"`
	HTTPServer HTTPServerConfig `yaml:"http_server"`
}

// GraphConfig tunes the scheduler's back-off.
type GraphConfig struct {
	RetryDurationUs int64 `yaml:"retry_duration_us"`
}

// MediumConfig tunes the file medium (component E).
type MediumConfig struct {
	MmapWindowBytes  int64    `yaml:"mmap_window_bytes"`
	Follow           bool     `yaml:"follow"`
	WatchDirectories []string `yaml:"watch_directories"`
}

// LiveConfig tunes the LTTng-live client and session manager (F, M).
type LiveConfig struct {
	ViewerURL          string `yaml:"viewer_url"`
	RetryDurationUs    int64  `yaml:"retry_duration_us"`
	ZeroSessionsPolicy string `yaml:"zero_sessions_policy"` // continue, fail, end
}

// KafkaAuthConfig configures optional SASL/SCRAM authentication.
type KafkaAuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Mechanism string `yaml:"mechanism"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
}

// KafkaSinkConfig configures the internal/kafkasink supplemental sink.
type KafkaSinkConfig struct {
	Enabled         bool            `yaml:"enabled"`
	Brokers         []string        `yaml:"brokers"`
	Topic           string          `yaml:"topic"`
	Compression     string          `yaml:"compression"` // none, gzip, snappy, lz4
	RequiredAcks    int16           `yaml:"required_acks"`
	BatchSize       int             `yaml:"batch_size"`
	BatchTimeout    string          `yaml:"batch_timeout"`
	MaxMessageBytes int             `yaml:"max_message_bytes"`
	Auth            KafkaAuthConfig `yaml:"auth"`
}

// Config is the root process configuration.
type Config struct {
	App     AppConfig       `yaml:"app"`
	Logging LoggingConfig   `yaml:"logging"`
	Metrics MetricsConfig   `yaml:"metrics"`
	Obs     ObsConfig       `yaml:"obs"`
	Graph   GraphConfig     `yaml:"graph"`
	Medium  MediumConfig    `yaml:"medium"`
	Live    LiveConfig      `yaml:"live"`
	Kafka   KafkaSinkConfig `yaml:"kafka"`
}

// LoadConfig reads configFile if non-empty, applies defaults for any
// field left unset, then applies environment-variable overrides on top.
func LoadConfig(configFile string, logger *logrus.Logger) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "config", "load", "failed to read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, bterr.Wrap(err, bterr.KindInvalidArgument, bterr.ActorUnknown, "config", "load", "failed to parse config file")
		}
		logger.WithField("file", configFile).Info("loaded configuration from file")
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ssw-trace-core"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "v0.1.0"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "production"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9465
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	cfg.Metrics.Enabled = true

	if cfg.Obs.Tracing.Exporter == "" {
		cfg.Obs.Tracing.Exporter = "otlp"
	}
	if cfg.Obs.Tracing.SampleRate == 0 {
		cfg.Obs.Tracing.SampleRate = 1.0
	}
	if cfg.Obs.Resource.SampleInterval == 0 {
		cfg.Obs.Resource.SampleInterval = 5 * time.Second
	}
	if cfg.Obs.HTTPServer.Host == "" {
		cfg.Obs.HTTPServer.Host = "0.0.0.0"
	}
	if cfg.Obs.HTTPServer.Port == 0 {
		cfg.Obs.HTTPServer.Port = 9466
	}

	if cfg.Graph.RetryDurationUs == 0 {
		cfg.Graph.RetryDurationUs = 100000
	}

	if cfg.Medium.MmapWindowBytes == 0 {
		cfg.Medium.MmapWindowBytes = 64 * 1024 * 1024
	}

	if cfg.Live.RetryDurationUs == 0 {
		cfg.Live.RetryDurationUs = 100000
	}
	if cfg.Live.ZeroSessionsPolicy == "" {
		cfg.Live.ZeroSessionsPolicy = "continue"
	}

	if cfg.Kafka.Compression == "" {
		cfg.Kafka.Compression = "snappy"
	}
	if cfg.Kafka.RequiredAcks == 0 {
		cfg.Kafka.RequiredAcks = 1
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = 100
	}
	if cfg.Kafka.BatchTimeout == "" {
		cfg.Kafka.BatchTimeout = "5s"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	cfg.App.Environment = getEnvString("BT_APP_ENVIRONMENT", cfg.App.Environment)
	cfg.Logging.Level = getEnvString("BT_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnvString("BT_LOG_FORMAT", cfg.Logging.Format)

	cfg.Metrics.Enabled = getEnvBool("BT_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Port = getEnvInt("BT_METRICS_PORT", cfg.Metrics.Port)

	cfg.Obs.Tracing.Enabled = getEnvBool("BT_TRACING_ENABLED", cfg.Obs.Tracing.Enabled)
	cfg.Obs.Tracing.Endpoint = getEnvString("BT_TRACING_ENDPOINT", cfg.Obs.Tracing.Endpoint)

	cfg.Graph.RetryDurationUs = getEnvInt64("BT_GRAPH_RETRY_DURATION_US", cfg.Graph.RetryDurationUs)

	cfg.Medium.Follow = getEnvBool("BT_MEDIUM_FOLLOW", cfg.Medium.Follow)
	if dirs := getEnvString("BT_MEDIUM_WATCH_DIRECTORIES", ""); dirs != "" {
		cfg.Medium.WatchDirectories = strings.Split(dirs, ",")
	}

	cfg.Live.ViewerURL = getEnvString("BT_LIVE_VIEWER_URL", cfg.Live.ViewerURL)
	cfg.Live.ZeroSessionsPolicy = getEnvString("BT_LIVE_ZERO_SESSIONS_POLICY", cfg.Live.ZeroSessionsPolicy)

	cfg.Kafka.Enabled = getEnvBool("BT_KAFKA_ENABLED", cfg.Kafka.Enabled)
	if brokers := getEnvString("BT_KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Kafka.Topic = getEnvString("BT_KAFKA_TOPIC", cfg.Kafka.Topic)
	if user := getEnvString("BT_KAFKA_SASL_USERNAME", ""); user != "" {
		cfg.Kafka.Auth.Enabled = true
		cfg.Kafka.Auth.Username = user
		cfg.Kafka.Auth.Password = getEnvString("BT_KAFKA_SASL_PASSWORD", "")
	}
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// ValidateConfig runs every section's validation, collecting every
// failure before returning instead of stopping at the first one.
func ValidateConfig(cfg *Config) error {
	var problems []string

	validLogLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}
	if !validLogLevels[cfg.Logging.Level] {
		problems = append(problems, fmt.Sprintf("invalid logging level: %s", cfg.Logging.Level))
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[cfg.Logging.Format] {
		problems = append(problems, fmt.Sprintf("invalid logging format: %s", cfg.Logging.Format))
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		problems = append(problems, fmt.Sprintf("invalid metrics port: %d", cfg.Metrics.Port))
	}

	if cfg.Obs.Tracing.Enabled {
		if _, err := url.Parse(cfg.Obs.Tracing.Endpoint); err != nil {
			problems = append(problems, fmt.Sprintf("invalid tracing endpoint: %v", err))
		}
		validExporters := map[string]bool{"jaeger": true, "otlp": true, "console": true}
		if !validExporters[cfg.Obs.Tracing.Exporter] {
			problems = append(problems, fmt.Sprintf("invalid tracing exporter: %s", cfg.Obs.Tracing.Exporter))
		}
	}

	if cfg.Graph.RetryDurationUs <= 0 {
		problems = append(problems, "graph retry_duration_us must be positive")
	}

	validPolicies := map[string]bool{"continue": true, "fail": true, "end": true}
	if !validPolicies[cfg.Live.ZeroSessionsPolicy] {
		problems = append(problems, fmt.Sprintf("invalid live zero_sessions_policy: %s", cfg.Live.ZeroSessionsPolicy))
	}

	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			problems = append(problems, "kafka sink enabled but no brokers configured")
		}
		if cfg.Kafka.Topic == "" {
			problems = append(problems, "kafka sink enabled but no topic configured")
		}
		if cfg.Kafka.BatchTimeout != "" {
			if _, err := time.ParseDuration(cfg.Kafka.BatchTimeout); err != nil {
				problems = append(problems, fmt.Sprintf("invalid kafka batch_timeout: %s", cfg.Kafka.BatchTimeout))
			}
		}
		if cfg.Kafka.Auth.Enabled {
			validMechanisms := map[string]bool{"PLAIN": true, "SCRAM-SHA-256": true, "SCRAM-SHA-512": true}
			if !validMechanisms[strings.ToUpper(cfg.Kafka.Auth.Mechanism)] {
				problems = append(problems, fmt.Sprintf("invalid kafka auth mechanism: %s", cfg.Kafka.Auth.Mechanism))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "config", "validate",
		fmt.Sprintf("%d configuration problems: %s", len(problems), strings.Join(problems, "; ")))
}
