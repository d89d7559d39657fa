package config

import (
	"fmt"
	"os"

	"github.com/BearBump/CourierHub/internal/models"
	"go.yaml.in/yaml/v4"
)

// LoadRates читает тарифы из YAML (формат models.RateConfig, суммы можно писать числами или строками).
func LoadRates(filename string) (models.RateConfig, error) {
	var cfg models.RateConfig
	if err := readYAML(filename, &cfg); err != nil {
		return models.RateConfig{}, err
	}
	return cfg, nil
}

type pincodeFile struct {
	Pincodes []models.Pincode `yaml:"pincodes"`
}

func LoadPincodes(filename string) ([]models.Pincode, error) {
	var f pincodeFile
	if err := readYAML(filename, &f); err != nil {
		return nil, err
	}
	for i, p := range f.Pincodes {
		if p.Pincode == "" || p.State == "" {
			return nil, fmt.Errorf("pincodes[%d]: pincode and state are required", i)
		}
	}
	return f.Pincodes, nil
}

func readYAML(filename string, v any) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal YAML %s: %w", filename, err)
	}
	return nil
}
