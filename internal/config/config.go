// Package config loads the service configuration from a TOML file with
// environment-variable overrides. Priority: CLI flags > environment >
// config file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete service configuration.
type Config struct {
	Kafka   KafkaConfig   `toml:"kafka"`
	S3      S3Config      `toml:"s3"`
	Sink    SinkConfig    `toml:"sink"`
	Metrics MetricsConfig `toml:"metrics"`
}

type KafkaConfig struct {
	Brokers    []string `toml:"brokers"`
	Topics     []string `toml:"topics"`
	Group      string   `toml:"group"`
	User       string   `toml:"user"`
	Password   string   `toml:"password"`
	DisableTLS bool     `toml:"disable_tls"`
}

type S3Config struct {
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	EndpointURL     string `toml:"endpoint_url"`
	ForcePathStyle  bool   `toml:"force_path_style"`
	PartSizeBytes   int64  `toml:"part_size_bytes"`
}

type SinkConfig struct {
	Format            string            `toml:"format"`
	FormatConfig      map[string]string `toml:"format_config"`
	Partitioner       string            `toml:"partitioner"`
	PartitionerConfig map[string]string `toml:"partitioner_config"`
	Prefix            string            `toml:"prefix"`
	FlushCount        int               `toml:"flush_count"`
	RotateInterval    Duration          `toml:"rotate_interval"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Duration parses TOML string values like "5m" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Sink: SinkConfig{
			Format:      "jsonl",
			Partitioner: "default",
			FlushCount:  1000,
		},
		Metrics: MetricsConfig{
			Addr: ":2112",
		},
	}
}

// Load reads configuration from a TOML file (when path is non-empty) and
// applies STREAMSINK_* environment-variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}

	if v := os.Getenv("STREAMSINK_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("STREAMSINK_KAFKA_TOPICS"); v != "" {
		cfg.Kafka.Topics = splitList(v)
	}
	if v := os.Getenv("STREAMSINK_KAFKA_GROUP"); v != "" {
		cfg.Kafka.Group = v
	}
	if v := os.Getenv("STREAMSINK_KAFKA_USER"); v != "" {
		cfg.Kafka.User = v
	}
	if v := os.Getenv("STREAMSINK_KAFKA_PASSWORD"); v != "" {
		cfg.Kafka.Password = v
	}
	if v := os.Getenv("STREAMSINK_S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("STREAMSINK_S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv("STREAMSINK_S3_ACCESS_KEY_ID"); v != "" {
		cfg.S3.AccessKeyID = v
	}
	if v := os.Getenv("STREAMSINK_S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.S3.SecretAccessKey = v
	}
	if v := os.Getenv("STREAMSINK_S3_ENDPOINT_URL"); v != "" {
		cfg.S3.EndpointURL = v
	}
	if v := os.Getenv("STREAMSINK_SINK_PREFIX"); v != "" {
		cfg.Sink.Prefix = v
	}
	if v := os.Getenv("STREAMSINK_SINK_FLUSH_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid STREAMSINK_SINK_FLUSH_COUNT: %w", err)
		}
		cfg.Sink.FlushCount = n
	}
	if v := os.Getenv("STREAMSINK_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}

	return cfg, nil
}

// Validate checks that the required fields are set.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	if len(c.Kafka.Topics) == 0 {
		return errors.New("kafka topics are required")
	}
	if c.Kafka.Group == "" {
		return errors.New("kafka group is required")
	}
	if c.S3.Region == "" {
		return errors.New("s3 region is required")
	}
	if c.S3.Bucket == "" {
		return errors.New("s3 bucket is required")
	}
	if c.Sink.FlushCount < 0 {
		return errors.New("sink flush_count must be > 0")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
