package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const sampleRates = `
services:
  - {id: 1, client_id: 0, code: EXPRESS, base_price: 40}
  - {id: 2, client_id: 7, code: standard, base_price: "25.50"}
weight_slabs:
  - {id: 1, client_id: 0, min: 0, max: 1, price: 50}
  - {id: 2, client_id: 0, min: 1.001, max: 5, price: 120}
distance_slabs:
  - {id: 1, client_id: 0, min: 0, max: 500, price: 100}
surcharges:
  - {id: 1, client_id: 0, load_type: NON-DOCUMENT, price: 30}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadRates(t *testing.T) {
	cfg, err := LoadRates(writeFile(t, "rates.yaml", sampleRates))
	require.NoError(t, err)

	require.Len(t, cfg.Services, 2)
	require.Equal(t, "EXPRESS", cfg.Services[0].Code)
	require.True(t, cfg.Services[1].BasePrice.Equal(decimal.RequireFromString("25.5")))
	require.EqualValues(t, 7, cfg.Services[1].ClientID)

	require.Len(t, cfg.WeightSlabs, 2)
	require.True(t, cfg.WeightSlabs[1].Min.Equal(decimal.RequireFromString("1.001")))
	require.Len(t, cfg.DistanceSlabs, 1)
	require.Equal(t, "NON-DOCUMENT", cfg.Surcharges[0].LoadType)
}

func TestLoadRates_Errors(t *testing.T) {
	_, err := LoadRates(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadRates(writeFile(t, "bad.yaml", "services: [oops"))
	require.Error(t, err)

	_, err = LoadRates(writeFile(t, "nan.yaml", "services:\n  - {code: X, base_price: abc}\n"))
	require.Error(t, err)
}

func TestLoadPincodes(t *testing.T) {
	items, err := LoadPincodes(writeFile(t, "pins.yaml", `
pincodes:
  - {pincode: "110001", office: Connaught Place, district: New Delhi, state: Delhi}
  - {pincode: "400001", office: Fort, district: Mumbai, state: Maharashtra}
`))
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Maharashtra", items[1].State)

	_, err = LoadPincodes(writeFile(t, "nostate.yaml", "pincodes:\n  - {pincode: \"110001\"}\n"))
	require.ErrorContains(t, err, "pincodes[0]")
}
