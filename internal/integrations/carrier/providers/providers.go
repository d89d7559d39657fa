// Package providers собирает реестр перевозчиков из конфигурации.
package providers

import (
	"log/slog"
	"time"

	"github.com/BearBump/CourierHub/config"
	"github.com/BearBump/CourierHub/internal/integrations/carrier"
	"github.com/BearBump/CourierHub/internal/integrations/carrier/dtdc"
	"github.com/BearBump/CourierHub/internal/integrations/carrier/fake"
	"github.com/BearBump/CourierHub/internal/secrets"
)

func NewRegistry(cfg *config.Config) *carrier.Registry {
	d := cfg.Providers.DTDC
	reg := carrier.NewRegistry(
		dtdc.NewProvider(d.BaseURL, time.Duration(d.TimeoutSeconds)*time.Second, d.RemarksFields...),
	)
	if cfg.CourierHub.EnableFakeProvider {
		reg.Register(fake.NewProvider())
	}
	return reg
}

// RateLimits: лимиты запросов в минуту по перевозчикам (для воркера).
func RateLimits(cfg *config.Config) map[string]int64 {
	out := map[string]int64{}
	if n := cfg.Providers.DTDC.RateLimitPerMinute; n > 0 {
		out[dtdc.ProviderKey] = int64(n)
	}
	return out
}

// NewSealer returns nil when no credentials key is configured: the API still serves pricing and
// reads, but carriers that need credentials fail with a configuration error.
func NewSealer(cfg *config.Config) (*secrets.Sealer, error) {
	if cfg.CourierHub.CredentialsKey == "" {
		slog.Warn("credentials key is not configured")
		return nil, nil
	}
	return secrets.NewFromString(cfg.CourierHub.CredentialsKey)
}
