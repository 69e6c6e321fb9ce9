package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streamsink.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfig_Default(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.Equal(t, "jsonl", cfg.Sink.Format)
	require.Equal(t, "default", cfg.Sink.Partitioner)
	require.Equal(t, 1000, cfg.Sink.FlushCount)
	require.Equal(t, ":2112", cfg.Metrics.Addr)
}

func TestConfig_Load_TOML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[kafka]
brokers = ["kafka-1:9092", "kafka-2:9092"]
topics = ["logs", "audit"]
group = "streamsink"
user = "svc"
password = "secret"
disable_tls = true

[s3]
region = "us-east-1"
bucket = "archive"
endpoint_url = "http://minio:9000"
force_path_style = true
part_size_bytes = 5242880

[sink]
format = "jsonl"
prefix = "topics"
flush_count = 500
rotate_interval = "5m"

[sink.format_config]
compression = "gzip"

[sink.partitioner_config]
"path.format" = "2006/01/02"

[metrics]
addr = ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, []string{"logs", "audit"}, cfg.Kafka.Topics)
	require.Equal(t, "streamsink", cfg.Kafka.Group)
	require.Equal(t, "svc", cfg.Kafka.User)
	require.True(t, cfg.Kafka.DisableTLS)

	require.Equal(t, "us-east-1", cfg.S3.Region)
	require.Equal(t, "archive", cfg.S3.Bucket)
	require.Equal(t, "http://minio:9000", cfg.S3.EndpointURL)
	require.True(t, cfg.S3.ForcePathStyle)
	require.Equal(t, int64(5242880), cfg.S3.PartSizeBytes)

	require.Equal(t, "topics", cfg.Sink.Prefix)
	require.Equal(t, 500, cfg.Sink.FlushCount)
	require.Equal(t, 5*time.Minute, time.Duration(cfg.Sink.RotateInterval))
	require.Equal(t, map[string]string{"compression": "gzip"}, cfg.Sink.FormatConfig)
	require.Equal(t, map[string]string{"path.format": "2006/01/02"}, cfg.Sink.PartitionerConfig)

	require.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestConfig_Load_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.ErrorContains(t, err, "failed to read config file")
}

func TestConfig_Load_InvalidDuration(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[sink]
rotate_interval = "five minutes"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "invalid duration")
}

func TestConfig_Load_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[kafka]
brokers = ["file:9092"]
group = "from-file"

[s3]
bucket = "file-bucket"
`)

	t.Setenv("STREAMSINK_KAFKA_BROKERS", "env-1:9092, env-2:9092")
	t.Setenv("STREAMSINK_KAFKA_TOPICS", "logs")
	t.Setenv("STREAMSINK_KAFKA_GROUP", "from-env")
	t.Setenv("STREAMSINK_S3_BUCKET", "env-bucket")
	t.Setenv("STREAMSINK_S3_ACCESS_KEY_ID", "AKIA")
	t.Setenv("STREAMSINK_S3_SECRET_ACCESS_KEY", "shh")
	t.Setenv("STREAMSINK_SINK_PREFIX", "env-prefix")
	t.Setenv("STREAMSINK_SINK_FLUSH_COUNT", "250")
	t.Setenv("STREAMSINK_METRICS_ADDR", ":9091")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"env-1:9092", "env-2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, []string{"logs"}, cfg.Kafka.Topics)
	require.Equal(t, "from-env", cfg.Kafka.Group)
	require.Equal(t, "env-bucket", cfg.S3.Bucket)
	require.Equal(t, "AKIA", cfg.S3.AccessKeyID)
	require.Equal(t, "shh", cfg.S3.SecretAccessKey)
	require.Equal(t, "env-prefix", cfg.Sink.Prefix)
	require.Equal(t, 250, cfg.Sink.FlushCount)
	require.Equal(t, ":9091", cfg.Metrics.Addr)
}

func TestConfig_Load_InvalidFlushCountEnv(t *testing.T) {
	t.Setenv("STREAMSINK_SINK_FLUSH_COUNT", "lots")

	_, err := Load("")
	require.ErrorContains(t, err, "STREAMSINK_SINK_FLUSH_COUNT")
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := Default()
		cfg.Kafka.Brokers = []string{"kafka:9092"}
		cfg.Kafka.Topics = []string{"logs"}
		cfg.Kafka.Group = "streamsink"
		cfg.S3.Region = "us-east-1"
		cfg.S3.Bucket = "archive"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing brokers", func(c *Config) { c.Kafka.Brokers = nil }, "brokers are required"},
		{"missing topics", func(c *Config) { c.Kafka.Topics = nil }, "topics are required"},
		{"missing group", func(c *Config) { c.Kafka.Group = "" }, "group is required"},
		{"missing region", func(c *Config) { c.S3.Region = "" }, "region is required"},
		{"missing bucket", func(c *Config) { c.S3.Bucket = "" }, "bucket is required"},
		{"negative flush count", func(c *Config) { c.Sink.FlushCount = -1 }, "flush_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
