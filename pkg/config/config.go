package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full typed configuration of the jobmail binaries.
type Config struct {
	DB       DBConfig       `yaml:"db"`
	MQ       MQConfig       `yaml:"mq"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Gmail    GmailConfig    `yaml:"gmail"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	// SlowQuery 慢查询阈值
	SlowQuery time.Duration `yaml:"slow_query"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// PipelineConfig tunes the extraction and merge worker.
type PipelineConfig struct {
	DiscardNonApplications bool          `yaml:"discard_non_applications"`
	MinConfidence          float64       `yaml:"min_confidence"`
	LockTTL                time.Duration `yaml:"lock_ttl"`
	LockWait               time.Duration `yaml:"lock_wait"`
	DedupTTL               time.Duration `yaml:"dedup_ttl"`
	MaxRetries             int64         `yaml:"max_retries"`
	MergeRetries           int           `yaml:"merge_retries"`
	OutboxInterval         time.Duration `yaml:"outbox_interval"`
}

// TracingConfig OpenTelemetry 导出配置
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// GmailConfig configures the mailbox scanner.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	Query           string `yaml:"query"`
	MaxResults      int64  `yaml:"max_results"`
	// UserID is the Gmail API user, normally "me".
	UserID string `yaml:"user_id"`
	// Owner is the jobmail user the scanned mailbox belongs to.
	Owner string `yaml:"owner"`
	// ScanInterval repeats the scan; zero scans once and exits.
	ScanInterval time.Duration `yaml:"scan_interval"`
}

// Defaults returns the values used when a key is absent from every layer.
func Defaults() Config {
	return Config{
		DB: DBConfig{
			Host:      "localhost",
			Port:      5432,
			SSLMode:   "disable",
			MaxConns:  10,
			SlowQuery: 100 * time.Millisecond,
		},
		MQ:      MQConfig{Queue: "job.email.fetched.q", Prefetch: 16},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Addr: ":9102"},
		Pipeline: PipelineConfig{
			LockTTL:        30 * time.Second,
			LockWait:       10 * time.Second,
			DedupTTL:       time.Hour,
			MaxRetries:     5,
			MergeRetries:   3,
			OutboxInterval: time.Second,
		},
		Tracing: TracingConfig{Endpoint: "localhost:4317", Insecure: true, SampleRatio: 1},
		Gmail: GmailConfig{
			Query:      `subject:(application OR applying OR interview OR assessment OR offer) newer_than:30d`,
			MaxResults: 100,
			UserID:     "me",
		},
	}
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

func OverrideLogFromEnv(cfg *LogConfig) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
}

func OverrideMetricsFromEnv(cfg *MetricsConfig) {
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
}

func OverrideTracingFromEnv(cfg *TracingConfig) {
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		cfg.Endpoint = ep
		cfg.Enabled = true
	}
}

func OverrideGmailFromEnv(cfg *GmailConfig) {
	if f := os.Getenv("GMAIL_CREDENTIALS_FILE"); f != "" {
		cfg.CredentialsFile = f
	}
	if f := os.Getenv("GMAIL_TOKEN_FILE"); f != "" {
		cfg.TokenFile = f
	}
	if q := os.Getenv("GMAIL_QUERY"); q != "" {
		cfg.Query = q
	}
	if u := os.Getenv("GMAIL_USER_ID"); u != "" {
		cfg.UserID = u
	}
	if o := os.Getenv("GMAIL_OWNER"); o != "" {
		cfg.Owner = o
	}
}
