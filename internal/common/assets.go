package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"swap-settlement-go/internal/models"

	"gopkg.in/yaml.v2"
)

type currenciesFile struct {
	Currencies []models.Currency `yaml:"currencies"`
}

// LoadCurrencies reads the supported deposit currencies. Relative paths are
// resolved against the working directory.
func LoadCurrencies(file string) ([]models.Currency, error) {
	path := file
	if !filepath.IsAbs(file) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, file)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", file, err)
	}
	return ParseCurrencies(data)
}

func ParseCurrencies(data []byte) ([]models.Currency, error) {
	var parsed currenciesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unable to parse currencies: %w", err)
	}
	if len(parsed.Currencies) == 0 {
		return nil, fmt.Errorf("no currencies configured")
	}

	seen := make(map[string]bool, len(parsed.Currencies))
	for i := range parsed.Currencies {
		c := &parsed.Currencies[i]
		c.Symbol = strings.ToLower(strings.TrimSpace(c.Symbol))
		c.Network = strings.ToLower(strings.TrimSpace(c.Network))
		if c.Symbol == "" {
			return nil, fmt.Errorf("currency at index %d missing symbol", i)
		}
		if c.Network == "" {
			return nil, fmt.Errorf("currency %s missing network", c.Symbol)
		}
		if c.Scale < 0 || c.Scale > models.MaxScale {
			return nil, fmt.Errorf("currency %s has invalid scale %d (max %d)", c.Symbol, c.Scale, models.MaxScale)
		}
		if seen[c.Symbol] {
			return nil, fmt.Errorf("currency %s listed twice", c.Symbol)
		}
		seen[c.Symbol] = true
	}
	return parsed.Currencies, nil
}
