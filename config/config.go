package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	CourierHub CourierHubConfig `yaml:"courierhub"`
	Providers  ProvidersConfig  `yaml:"providers"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	StatusChangedTopicName string `yaml:"status_changed_topic_name"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type CourierHubConfig struct {
	HTTPAddr                string `yaml:"http_addr"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`
	PincodeTTLSeconds       int    `yaml:"pincode_ttl_seconds"`

	// CredentialsKey: 32-байтный ключ secretbox (hex или base64) для provider_credentials.
	// Переменная окружения COURIERHUB_CREDENTIALS_KEY имеет приоритет.
	CredentialsKey string `yaml:"credentials_key"`

	FetchTimeoutSeconds int  `yaml:"fetch_timeout_seconds"`
	BatchConcurrency    int  `yaml:"batch_concurrency"`
	MaxBatchSize        int  `yaml:"max_batch_size"`
	EnableFakeProvider  bool `yaml:"enable_fake_provider"`

	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int    `yaml:"worker_batch_size"`
	WorkerConcurrency         int    `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int    `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute  int    `yaml:"worker_rate_limit_per_minute"`
	WorkerHTTPAddr            string `yaml:"worker_http_addr"`

	// Worker scheduling (optional). Defaults: active 30..120 minutes, unknown 90 minutes,
	// delivered/RTO 7 days, backoff 5/15/30/60 minutes.
	WorkerNextCheckActiveMinSeconds int `yaml:"worker_next_check_active_min_seconds"`
	WorkerNextCheckActiveMaxSeconds int `yaml:"worker_next_check_active_max_seconds"`
	WorkerNextCheckUnknownSeconds   int `yaml:"worker_next_check_unknown_seconds"`
	WorkerNextCheckTerminalSeconds  int `yaml:"worker_next_check_terminal_seconds"`
	WorkerBackoff1Seconds           int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds           int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds           int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds           int `yaml:"worker_backoff_4_seconds"`
}

// CurrentStatusTTL: срок жизни кэша снимка накладной, по умолчанию 10 минут.
func (c CourierHubConfig) CurrentStatusTTL() time.Duration {
	if c.CurrentStatusTTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.CurrentStatusTTLSeconds) * time.Second
}

type ProvidersConfig struct {
	DTDC DTDCConfig `yaml:"dtdc"`
}

type DTDCConfig struct {
	BaseURL            string   `yaml:"base_url"`
	TimeoutSeconds     int      `yaml:"timeout_seconds"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	RemarksFields      []string `yaml:"remarks_fields"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if key := os.Getenv("COURIERHUB_CREDENTIALS_KEY"); key != "" {
		config.CourierHub.CredentialsKey = key
	}

	return &config, nil
}
