// Package market holds the asset catalog and the player's portfolio ledger.
package market

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tatianab/hustle/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed assets.yaml
var defaultAssetsYAML []byte

// ErrAssetNotFound is returned for lookups of an unknown asset id.
var ErrAssetNotFound = errors.New("asset not found")

// Prices is the read side of the catalog used by the portfolio and the engine.
type Prices interface {
	Asset(id string) (models.Asset, error)
}

// Catalog is the registry of tradable assets. Prices only change through
// AdvancePrices.
type Catalog struct {
	mu       sync.RWMutex
	assets   map[string]*models.Asset
	order    []string
	window   int
	driftMin float64
	driftMax float64
}

// DefaultAssets returns the built-in asset list.
func DefaultAssets() ([]models.Asset, error) {
	var file struct {
		Assets []models.Asset `yaml:"assets"`
	}
	if err := yaml.Unmarshal(defaultAssetsYAML, &file); err != nil {
		return nil, fmt.Errorf("parse built-in assets: %w", err)
	}
	return file.Assets, nil
}

// NewCatalog builds a catalog from assets, using the history window and
// price drift range of rules. Duplicate ids keep the first entry.
func NewCatalog(assets []models.Asset, rules models.Rules) *Catalog {
	c := &Catalog{
		assets:   make(map[string]*models.Asset, len(assets)),
		window:   rules.HistoryWindow,
		driftMin: rules.PriceDriftMin,
		driftMax: rules.PriceDriftMax,
	}
	if c.window <= 0 {
		c.window = models.DefaultRules().HistoryWindow
	}
	for _, a := range assets {
		if _, ok := c.assets[a.ID]; ok {
			continue
		}
		cp := cloneAsset(a)
		if cp.Price < 1 {
			cp.Price = 1
		}
		cp.History = trimHistory(cp.History, c.window)
		c.assets[a.ID] = &cp
		c.order = append(c.order, a.ID)
	}
	return c
}

func (c *Catalog) Asset(id string) (models.Asset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.assets[id]
	if !ok {
		return models.Asset{}, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	return cloneAsset(*a), nil
}

// List returns assets in catalog order. An empty filter returns everything.
func (c *Catalog) List(filter models.AssetType) []models.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Asset, 0, len(c.order))
	for _, id := range c.order {
		a := c.assets[id]
		if filter != "" && a.Type != filter {
			continue
		}
		out = append(out, cloneAsset(*a))
	}
	return out
}

// AdvancePrices moves every asset by a bounded multiplicative step and
// records the new price in its history.
func (c *Catalog) AdvancePrices(r models.Rand) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.order {
		a := c.assets[id]
		step := models.Uniform(r, c.driftMin, c.driftMax)
		a.Price = nextPrice(a.Price, step)
		a.History = trimHistory(append(a.History, a.Price), c.window)
	}
}

func nextPrice(price int64, step float64) int64 {
	next := int64(math.Floor(float64(price) * (1 + step)))
	if next < 1 {
		return 1
	}
	return next
}

func trimHistory(h []int64, window int) []int64 {
	if len(h) > window {
		h = h[len(h)-window:]
	}
	return append([]int64(nil), h...)
}

func cloneAsset(a models.Asset) models.Asset {
	a.History = append([]int64(nil), a.History...)
	return a
}
