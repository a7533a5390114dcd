// Package config loads the batchpipe binaries' settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/ib-77/batchpipe/pkg/pipeline"
)

const (
	EnvKafkaBrokers  = "BATCHPIPE_KAFKA_BROKERS"
	EnvKafkaTopic    = "BATCHPIPE_KAFKA_TOPIC"
	EnvKafkaGroup    = "BATCHPIPE_KAFKA_GROUP"
	EnvConcurrency   = "BATCHPIPE_CONCURRENCY"
	EnvMaxRetries    = "BATCHPIPE_MAX_RETRIES"
	EnvRetryDelay    = "BATCHPIPE_RETRY_DELAY"
	EnvMaxQueueDepth = "BATCHPIPE_MAX_QUEUE_DEPTH"
	EnvDispatchQPS   = "BATCHPIPE_DISPATCH_QPS"
	EnvLogLevel      = "BATCHPIPE_LOG_LEVEL"
)

const (
	DefaultKafkaTopic = "messages-upsert"
	DefaultKafkaGroup = "batchpipe"
)

type Config struct {
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	LogLevel     logging.Level

	Pipeline pipeline.Options
}

// Load reads the environment. Files named in envFiles (default ".env") are
// loaded first if they exist; variables already set win over them.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Fmt("loading env file: %w", err)
	}

	cfg := &Config{
		KafkaBrokers: splitList(os.Getenv(EnvKafkaBrokers)),
		KafkaTopic:   getenv(EnvKafkaTopic, DefaultKafkaTopic),
		KafkaGroup:   getenv(EnvKafkaGroup, DefaultKafkaGroup),
		LogLevel:     logging.DefaultLevel,
	}

	var merr errors.MultiError
	if len(cfg.KafkaBrokers) == 0 {
		merr.MaybeAdd(errors.Fmt("%s is required", EnvKafkaBrokers))
	}
	merr.MaybeAdd(parseInt(EnvConcurrency, &cfg.Pipeline.Concurrency))
	merr.MaybeAdd(parseInt(EnvMaxRetries, &cfg.Pipeline.MaxRetries))
	merr.MaybeAdd(parseInt(EnvMaxQueueDepth, &cfg.Pipeline.MaxQueueDepth))
	merr.MaybeAdd(parseDuration(EnvRetryDelay, &cfg.Pipeline.RetryDelay))
	merr.MaybeAdd(parseFloat(EnvDispatchQPS, &cfg.Pipeline.DispatchQPS))
	if v := os.Getenv(EnvLogLevel); v != "" {
		if err := cfg.LogLevel.Set(strings.ToLower(v)); err != nil {
			merr.MaybeAdd(errors.Fmt("%s: %w", EnvLogLevel, err))
		}
	}
	if err := merr.AsError(); err != nil {
		return nil, err
	}

	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Fmt("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func parseFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return errors.Fmt("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func parseDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.Fmt("%s: %w", key, err)
	}
	*dst = d
	return nil
}
