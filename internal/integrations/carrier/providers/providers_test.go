package providers

import (
	"testing"

	"github.com/BearBump/CourierHub/config"
	"github.com/BearBump/CourierHub/internal/secrets"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	cfg := &config.Config{}
	require.Equal(t, []string{"dtdc"}, NewRegistry(cfg).Keys())

	cfg.CourierHub.EnableFakeProvider = true
	reg := NewRegistry(cfg)
	require.Equal(t, []string{"dtdc", "fake"}, reg.Keys())

	p, ok := reg.Get("DTDC")
	require.True(t, ok)
	require.Equal(t, []string{"tracking_token"}, p.RequiredCredentials)
}

func TestRateLimits(t *testing.T) {
	cfg := &config.Config{}
	require.Empty(t, RateLimits(cfg))

	cfg.Providers.DTDC.RateLimitPerMinute = 30
	require.Equal(t, map[string]int64{"dtdc": 30}, RateLimits(cfg))
}

func TestNewSealer(t *testing.T) {
	s, err := NewSealer(&config.Config{})
	require.NoError(t, err)
	require.Nil(t, s)

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	cfg := &config.Config{CourierHub: config.CourierHubConfig{CredentialsKey: key}}
	s, err = NewSealer(cfg)
	require.NoError(t, err)
	require.NotNil(t, s)

	cfg.CourierHub.CredentialsKey = "short"
	_, err = NewSealer(cfg)
	require.Error(t, err)
}
