package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  status_changed_topic_name: "consignment.status_changed"
redis:
  host: "localhost"
  port: 6379
courierhub:
  http_addr: ":8080"
  kafka_consumer_group: "track-api"
  current_status_ttl_seconds: 600
  credentials_key: "from-file"
  fetch_timeout_seconds: 15
  batch_concurrency: 8
providers:
  dtdc:
    base_url: "https://dtdc.example"
    timeout_seconds: 10
    rate_limit_per_minute: 60
    remarks_fields: ["strRemarks", "sTrRemarks"]
`

func writeConfig(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(sampleConfig), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("COURIERHUB_CREDENTIALS_KEY", "")

	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "consignment.status_changed", cfg.Kafka.StatusChangedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.CourierHub.HTTPAddr)
	require.Equal(t, "from-file", cfg.CourierHub.CredentialsKey)
	require.Equal(t, 8, cfg.CourierHub.BatchConcurrency)
	require.Equal(t, "https://dtdc.example", cfg.Providers.DTDC.BaseURL)
	require.Equal(t, []string{"strRemarks", "sTrRemarks"}, cfg.Providers.DTDC.RemarksFields)

	require.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable", cfg.Database.ConnString())
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers())
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoadConfig_CredentialsKeyFromEnv(t *testing.T) {
	t.Setenv("COURIERHUB_CREDENTIALS_KEY", "from-env")

	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.CourierHub.CredentialsKey)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("database: ["), 0o600))
	_, err = LoadConfig(p)
	require.Error(t, err)
}

func TestExampleFilesLoad(t *testing.T) {
	cfg, err := LoadConfig("config.example.yaml")
	require.NoError(t, err)
	require.Equal(t, "consignment.status_changed", cfg.Kafka.StatusChangedTopicName)
	require.Equal(t, 604800, cfg.CourierHub.WorkerNextCheckTerminalSeconds)
	require.Equal(t, []string{"sTrRemarks", "strRemarks"}, cfg.Providers.DTDC.RemarksFields)

	rates, err := LoadRates("rates.example.yaml")
	require.NoError(t, err)
	require.Len(t, rates.WeightSlabs, 3)
}

func TestCurrentStatusTTL(t *testing.T) {
	require.Equal(t, 10*time.Minute, CourierHubConfig{}.CurrentStatusTTL())
	require.Equal(t, 30*time.Second, CourierHubConfig{CurrentStatusTTLSeconds: 30}.CurrentStatusTTL())
}
