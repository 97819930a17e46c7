// Package config loads and validates server configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, TLS, Search, Redis, Kafka, Postgres, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	TLS      TLSConfig      `yaml:"tls"`
	Search   SearchConfig   `yaml:"search"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the TCP listener and worker-pool settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queueSize"`
	ReadTimeout      time.Duration `yaml:"readTimeout"`
	WriteTimeout     time.Duration `yaml:"writeTimeout"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdownTimeout"`
	MaxPayloadBytes  int           `yaml:"maxPayloadBytes"`
}

// Addr returns the host:port the server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TLSConfig holds the TLS toggle and certificate material paths.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// SearchConfig selects the matching engine and its corpus.
type SearchConfig struct {
	Algorithm      string  `yaml:"algorithm"`
	CorpusPath     string  `yaml:"corpusPath"`
	CaseSensitive  bool    `yaml:"caseSensitive"`
	RereadOnQuery  bool    `yaml:"rereadOnQuery"`
	BloomCapacity  uint    `yaml:"bloomCapacity"`
	BloomErrorRate float64 `yaml:"bloomErrorRate"`
	RabinKarpBase  uint64  `yaml:"rabinKarpBase"`
	RabinKarpPrime uint64  `yaml:"rabinKarpPrime"`
}

// RedisConfig holds connection parameters for the optional query cache.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds broker and topic settings for query analytics events.
type KafkaConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	BufferSize int      `yaml:"bufferSize"`
}

// PostgresConfig holds connection parameters for the analytics snapshot store.
type PostgresConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	SSLMode          string        `yaml:"sslMode"`
	MaxOpenConns     int           `yaml:"maxOpenConns"`
	MaxIdleConns     int           `yaml:"maxIdleConns"`
	ConnMaxLifetime  time.Duration `yaml:"connMaxLifetime"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics and health server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks the settings whose failure must prevent the server from
// starting: an unreadable corpus, missing TLS material when TLS is enabled,
// and nonsensical pool sizes. It runs before the listening socket is opened.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("server.workers must be positive, got %d", c.Server.Workers)
	}
	if c.Server.QueueSize < 0 {
		return fmt.Errorf("server.queueSize must not be negative, got %d", c.Server.QueueSize)
	}
	if c.Server.MaxPayloadBytes <= 0 {
		return fmt.Errorf("server.maxPayloadBytes must be positive, got %d", c.Server.MaxPayloadBytes)
	}
	if c.Search.CorpusPath == "" {
		return fmt.Errorf("search.corpusPath is required")
	}
	f, err := os.Open(c.Search.CorpusPath)
	if err != nil {
		return fmt.Errorf("corpus file unreadable: %w", err)
	}
	f.Close()
	if c.Search.Algorithm == "" {
		return fmt.Errorf("search.algorithm is required")
	}
	if c.Search.BloomErrorRate <= 0 || c.Search.BloomErrorRate >= 1 {
		return fmt.Errorf("search.bloomErrorRate must be in (0, 1), got %g", c.Search.BloomErrorRate)
	}
	if c.TLS.Enabled {
		for _, p := range []string{c.TLS.CertFile, c.TLS.KeyFile} {
			if p == "" {
				return fmt.Errorf("tls enabled but certFile/keyFile not set")
			}
			if _, err := os.Stat(p); err != nil {
				return fmt.Errorf("tls material unreadable: %w", err)
			}
		}
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "localhost",
			Port:             8443,
			Workers:          8,
			QueueSize:        1000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     10 * time.Second,
			HandshakeTimeout: 3 * time.Second,
			ShutdownTimeout:  15 * time.Second,
			MaxPayloadBytes:  1024,
		},
		Search: SearchConfig{
			Algorithm:      "inmemory",
			CaseSensitive:  true,
			RereadOnQuery:  false,
			BloomCapacity:  1_000_000,
			BloomErrorRate: 0.001,
			RabinKarpBase:  256,
			RabinKarpPrime: 1_000_000_007,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    []string{"localhost:9092"},
			Topic:      "query-events",
			BufferSize: 10000,
		},
		Postgres: PostgresConfig{
			Host:             "localhost",
			Port:             5432,
			Database:         "lineserve",
			User:             "lineserve",
			Password:         "localdev",
			SSLMode:          "disable",
			MaxOpenConns:     10,
			MaxIdleConns:     2,
			ConnMaxLifetime:  5 * time.Minute,
			SnapshotInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads LS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LS_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LS_SERVER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Workers = n
		}
	}
	if v := os.Getenv("LS_SERVER_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.QueueSize = n
		}
	}
	if v := os.Getenv("LS_TLS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TLS.Enabled = b
		}
	}
	if v := os.Getenv("LS_TLS_CERT_FILE"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("LS_TLS_KEY_FILE"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := os.Getenv("LS_SEARCH_ALGORITHM"); v != "" {
		cfg.Search.Algorithm = v
	}
	if v := os.Getenv("LS_SEARCH_CORPUS_PATH"); v != "" {
		cfg.Search.CorpusPath = v
	}
	if v := os.Getenv("LS_SEARCH_CASE_SENSITIVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Search.CaseSensitive = b
		}
	}
	if v := os.Getenv("LS_SEARCH_REREAD_ON_QUERY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Search.RereadOnQuery = b
		}
	}
	if v := os.Getenv("LS_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("LS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("LS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("LS_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("LS_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("LS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("LS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("LS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("LS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("LS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("LS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
