package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Seed is the optional catalog file imported on boot when the product
// table is empty.
type Seed struct {
	Products []SeedProduct `yaml:"products"`
}

type SeedProduct struct {
	Name       string   `yaml:"name"`
	PriceCents int64    `yaml:"price_cents"`
	Categories []string `yaml:"categories"`
}

func ParseSeed(content []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(content, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse catalog seed: %w", err)
	}

	for i, product := range seed.Products {
		if product.Name == "" {
			return nil, fmt.Errorf("catalog seed product %d: name is required", i)
		}
		if product.PriceCents < 0 {
			return nil, fmt.Errorf("catalog seed product %d: price must not be negative", i)
		}
	}
	return &seed, nil
}
