package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cta-core/pkg/exchanges/common"
)

type contractEntry struct {
	Symbol        string  `yaml:"symbol"`
	Exchange      string  `yaml:"exchange"`
	Name          string  `yaml:"name"`
	PriceTick     float64 `yaml:"price_tick"`
	MinVolume     float64 `yaml:"min_volume"`
	StopSupported bool    `yaml:"stop_supported"`
	Gateway       string  `yaml:"gateway"`
}

type contractsFile struct {
	Contracts []contractEntry `yaml:"contracts"`
}

// LoadContracts reads the instrument table from a YAML file. A missing
// file is not an error; the caller falls back to contract events from
// the gateway.
func LoadContracts(path string) ([]*common.Contract, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read contracts file: %w", err)
	}

	var file contractsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse contracts file: %w", err)
	}

	contracts := make([]*common.Contract, 0, len(file.Contracts))
	for i, e := range file.Contracts {
		if e.Symbol == "" || e.Exchange == "" {
			return nil, fmt.Errorf("contract %d: symbol and exchange are required", i)
		}
		if e.MinVolume <= 0 {
			e.MinVolume = 1
		}
		contracts = append(contracts, &common.Contract{
			Symbol:        e.Symbol,
			Exchange:      e.Exchange,
			Name:          e.Name,
			PriceTick:     e.PriceTick,
			MinVolume:     e.MinVolume,
			StopSupported: e.StopSupported,
			GatewayName:   e.Gateway,
		})
	}
	return contracts, nil
}
