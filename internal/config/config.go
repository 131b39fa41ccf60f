// Package config читает конфигурацию процесса из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/fooroh/internal/worker"
)

// Бэкенды ресурсов.
const (
	BackendMemory = "memory"
	BackendAMQP   = "amqp"
	BackendS3     = "s3"
	BackendEnv    = "env"
	BackendSSM    = "ssm"
)

// ErrInvalid — значение переменной окружения не разобрано.
var ErrInvalid = errors.New("invalid configuration")

// Config — конфигурация процесса fooroh.
type Config struct {
	Stage     string
	AppName   string
	LogLevel  string
	LogFormat string
	HTTPPort  string

	QueueBackend string
	AMQPURL      string

	StorageBackend string
	BucketPrefix   string

	SecretBackend string
	SecretName    string
	SecretJSON    string

	// DBURL включает хранение execution'ов в Postgres.
	DBURL string

	BskyService     string
	BskyChatService string

	SignupEnabled   bool
	SignupInterval  string
	SignoutInterval string

	// WatermarkDeleteOriginal выбирает вариант watermarking с удалением исходного поста.
	WatermarkDeleteOriginal bool

	EngineConcurrency int

	FirehoseEnabled bool
	FirehoseURL     string
	FirehoseRefresh time.Duration

	ShutdownTimeout time.Duration

	// RemoteWorkers — worker → URL, из REMOTE_WORKERS="name=url,name=url".
	RemoteWorkers map[string]string
}

// Load читает конфигурацию.
func Load() (Config, error) {
	var errs []error

	cfg := Config{
		Stage:     getEnv("STAGE", "dev"),
		AppName:   getEnv("APP_NAME", "fooroh"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		HTTPPort:  getEnv("HTTP_PORT", "8080"),

		QueueBackend: strings.ToLower(getEnv("QUEUE_BACKEND", BackendMemory)),
		AMQPURL:      getEnv("AMQP_URL", ""),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendMemory)),
		BucketPrefix:   getEnv("BUCKET_PREFIX", ""),

		SecretBackend: strings.ToLower(getEnv("SECRET_BACKEND", BackendEnv)),
		SecretName:    getEnv("SECRET_NAME", ""),
		SecretJSON:    getEnv("SECRET_JSON", ""),

		DBURL: getEnv("DB_URL", ""),

		BskyService:     getEnv("BSKY_SERVICE", "https://bsky.social"),
		BskyChatService: getEnv("BSKY_CHAT_SERVICE", "did:web:api.bsky.chat#bsky_chat"),

		SignupInterval:  getEnv("SIGNUP_INTERVAL", "rate(4 minutes)"),
		SignoutInterval: getEnv("SIGNOUT_INTERVAL", "rate(2 minutes)"),

		FirehoseURL: getEnv("FIREHOSE_URL", ""),
	}

	remotes, err := worker.ParseRemotes(getEnv("REMOTE_WORKERS", ""))
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: REMOTE_WORKERS: %v", ErrInvalid, err))
	}
	cfg.RemoteWorkers = remotes

	cfg.SignupEnabled = getBool("SIGNUP_ENABLED", false, &errs)
	cfg.WatermarkDeleteOriginal = getBool("WATERMARK_DELETE_ORIGINAL", true, &errs)
	cfg.FirehoseEnabled = getBool("FIREHOSE_ENABLED", false, &errs)
	cfg.EngineConcurrency = getInt("ENGINE_CONCURRENCY", 4, &errs)
	cfg.FirehoseRefresh = getDuration("FIREHOSE_REFRESH", 10*time.Second, &errs)
	cfg.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs)

	// Бакеты называются "<prefix><bucket>".
	if cfg.BucketPrefix != "" && !strings.HasSuffix(cfg.BucketPrefix, "-") {
		cfg.BucketPrefix += "-"
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate проверяет согласованность бэкендов.
func (c Config) Validate() error {
	switch c.QueueBackend {
	case BackendMemory:
	case BackendAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("%w: AMQP_URL is required for QUEUE_BACKEND=amqp", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: QUEUE_BACKEND=%q", ErrInvalid, c.QueueBackend)
	}

	switch c.StorageBackend {
	case BackendMemory, BackendS3:
	default:
		return fmt.Errorf("%w: STORAGE_BACKEND=%q", ErrInvalid, c.StorageBackend)
	}

	switch c.SecretBackend {
	case BackendEnv:
		if c.SecretJSON == "" {
			return fmt.Errorf("%w: SECRET_JSON is required for SECRET_BACKEND=env", ErrInvalid)
		}
	case BackendSSM:
		if c.SecretName == "" {
			return fmt.Errorf("%w: SECRET_NAME is required for SECRET_BACKEND=ssm", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: SECRET_BACKEND=%q", ErrInvalid, c.SecretBackend)
	}

	if c.EngineConcurrency <= 0 {
		return fmt.Errorf("%w: ENGINE_CONCURRENCY must be positive", ErrInvalid)
	}
	return nil
}

// Addr возвращает адрес HTTP сервера.
func (c Config) Addr() string { return ":" + c.HTTPPort }

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool, errs *[]error) bool {
	raw := strings.ToLower(getEnv(key, ""))
	switch raw {
	case "":
		return fallback
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	}
	*errs = append(*errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, raw))
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, raw))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalid, key, raw))
		return fallback
	}
	return d
}
