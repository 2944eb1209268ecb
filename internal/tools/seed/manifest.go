// Package seed loads a TOML manifest of cats and wallets into the trading
// store for local development.
package seed

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/shopspring/decimal"
)

//go:embed demo.toml
var demoManifest string

// Manifest lists the records a seed run ensures exist.
type Manifest struct {
	Name    string           `toml:"name"`
	Assets  []ManifestAsset  `toml:"assets"`
	Wallets []ManifestWallet `toml:"wallets"`
}

// ManifestAsset is one cat and its genesis owner.
type ManifestAsset struct {
	ID    string `toml:"id"`
	Owner string `toml:"owner"`
	Name  string `toml:"name"`
	Level int    `toml:"level"`
}

// ManifestWallet is a target credit balance. Seeding tops the wallet up to
// Balance and never withdraws.
type ManifestWallet struct {
	Owner    string `toml:"owner"`
	Currency string `toml:"currency"`
	Balance  string `toml:"balance"`
}

// DemoManifest returns the bundled development manifest.
func DemoManifest() (Manifest, error) {
	return DecodeManifest(demoManifest)
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return Manifest{}, fmt.Errorf("load seed manifest: %w", err)
	}
	return checkDecoded(m, meta)
}

// DecodeManifest parses and validates manifest text.
func DecodeManifest(data string) (Manifest, error) {
	var m Manifest
	meta, err := toml.Decode(data, &m)
	if err != nil {
		return Manifest{}, fmt.Errorf("decode seed manifest: %w", err)
	}
	return checkDecoded(m, meta)
}

func checkDecoded(m Manifest, meta toml.MetaData) (Manifest, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return Manifest{}, fmt.Errorf("unknown seed manifest keys: %s", strings.Join(keys, ", "))
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks ids, owners and amounts.
func (m Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Assets))
	for i, asset := range m.Assets {
		id := strings.TrimSpace(asset.ID)
		if id == "" {
			return fmt.Errorf("assets[%d]: id is required", i)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("assets[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(asset.Owner) == "" {
			return fmt.Errorf("asset %q: owner is required", id)
		}
		if asset.Level < 0 {
			return fmt.Errorf("asset %q: level must not be negative", id)
		}
	}
	for i, wallet := range m.Wallets {
		if strings.TrimSpace(wallet.Owner) == "" {
			return fmt.Errorf("wallets[%d]: owner is required", i)
		}
		if _, err := wallet.currency(); err != nil {
			return fmt.Errorf("wallets[%d]: %w", i, err)
		}
		if _, err := wallet.balance(); err != nil {
			return fmt.Errorf("wallets[%d]: %w", i, err)
		}
	}
	return nil
}

func (w ManifestWallet) currency() (string, error) {
	if strings.TrimSpace(w.Currency) == "" {
		return domain.CurrencyCredits, nil
	}
	return domain.ParseCurrency(w.Currency)
}

func (w ManifestWallet) balance() (decimal.Decimal, error) {
	return domain.ParsePrice(w.Balance)
}
