package market

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/tatianab/hustle/internal/models"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientUnits = errors.New("insufficient units")
	ErrBelowMinimumUnit  = errors.New("spend buys less than one unit")
	ErrNoHolding         = errors.New("no holding for asset")
)

// Fill is the result of one buy or sell.
type Fill struct {
	AssetID string `json:"asset_id"`
	Units   int64  `json:"units"`
	Price   int64  `json:"price"`
	Amount  int64  `json:"amount"` // units * price
}

// TriggerKind names an automatic exit on a holding.
type TriggerKind string

const (
	StopLoss   TriggerKind = "stop-loss"
	TakeProfit TriggerKind = "take-profit"
)

// Portfolio tracks holdings by asset. It is not safe for concurrent use;
// the game controller owns it.
type Portfolio struct {
	holdings map[string]models.Holding
}

// NewPortfolio builds a portfolio from persisted holdings, dropping empty ones.
func NewPortfolio(holdings []models.Holding) *Portfolio {
	p := &Portfolio{holdings: make(map[string]models.Holding, len(holdings))}
	for _, h := range holdings {
		if h.Units > 0 {
			p.holdings[h.AssetID] = h
		}
	}
	return p
}

// Clone returns an independent copy.
func (p *Portfolio) Clone() *Portfolio {
	return NewPortfolio(p.Holdings())
}

// Holding returns the position in assetID, if any.
func (p *Portfolio) Holding(assetID string) (models.Holding, bool) {
	h, ok := p.holdings[assetID]
	return h, ok
}

// Holdings returns all positions sorted by asset id.
func (p *Portfolio) Holdings() []models.Holding {
	out := make([]models.Holding, 0, len(p.holdings))
	for _, h := range p.holdings {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// Buy spends up to spend on whole units at the current price. The realized
// amount may be below spend; the caller refunds the difference.
func (p *Portfolio) Buy(prices Prices, assetID string, spend int64) (Fill, error) {
	asset, err := prices.Asset(assetID)
	if err != nil {
		return Fill{}, err
	}
	if asset.Price > spend {
		return Fill{}, fmt.Errorf("%w: %s costs %d, spend is %d", ErrInsufficientFunds, assetID, asset.Price, spend)
	}
	units := spend / asset.Price
	if units < 1 {
		return Fill{}, ErrBelowMinimumUnit
	}

	h, ok := p.holdings[assetID]
	if !ok {
		h = models.Holding{AssetID: assetID, AverageCost: decimal.Zero}
	}
	oldCost := h.AverageCost.Mul(decimal.NewFromInt(h.Units))
	newCost := decimal.NewFromInt(units * asset.Price)
	h.Units += units
	h.AverageCost = oldCost.Add(newCost).Div(decimal.NewFromInt(h.Units)).Round(4)
	p.holdings[assetID] = h

	return Fill{AssetID: assetID, Units: units, Price: asset.Price, Amount: units * asset.Price}, nil
}

// Sell removes units at the current price. Average cost is untouched; a
// holding that reaches zero units is pruned.
func (p *Portfolio) Sell(prices Prices, assetID string, units int64) (Fill, error) {
	if units <= 0 {
		return Fill{}, fmt.Errorf("units must be > 0")
	}
	asset, err := prices.Asset(assetID)
	if err != nil {
		return Fill{}, err
	}
	h, ok := p.holdings[assetID]
	if !ok || h.Units < units {
		return Fill{}, fmt.Errorf("%w: hold %d of %s, selling %d", ErrInsufficientUnits, h.Units, assetID, units)
	}
	h.Units -= units
	if h.Units == 0 {
		delete(p.holdings, assetID)
	} else {
		p.holdings[assetID] = h
	}
	return Fill{AssetID: assetID, Units: units, Price: asset.Price, Amount: units * asset.Price}, nil
}

// SetTrigger sets or, with a nil value, clears a stop-loss or take-profit level.
func (p *Portfolio) SetTrigger(assetID string, kind TriggerKind, value *int64) error {
	h, ok := p.holdings[assetID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHolding, assetID)
	}
	if value != nil && *value <= 0 {
		return fmt.Errorf("trigger level must be > 0")
	}
	var level *int64
	if value != nil {
		v := *value
		level = &v
	}
	switch kind {
	case StopLoss:
		h.StopLoss = level
	case TakeProfit:
		h.TakeProfit = level
	default:
		return fmt.Errorf("unknown trigger kind %q", kind)
	}
	p.holdings[assetID] = h
	return nil
}

// Valuate is the sum of units * current price. Holdings whose asset has
// left the catalog count as zero.
func (p *Portfolio) Valuate(prices Prices) int64 {
	var total int64
	for _, h := range p.holdings {
		asset, err := prices.Asset(h.AssetID)
		if err != nil {
			continue
		}
		total += h.Units * asset.Price
	}
	return total
}

// Liquidation is a forced full sell caused by a trigger.
type Liquidation struct {
	Kind TriggerKind `json:"kind"`
	Fill Fill        `json:"fill"`
}

// Liquidate sells every holding whose stop-loss or take-profit level has
// been crossed at current prices. Take-profit wins when both fire.
func (p *Portfolio) Liquidate(prices Prices) []Liquidation {
	var out []Liquidation
	for _, h := range p.Holdings() {
		asset, err := prices.Asset(h.AssetID)
		if err != nil {
			continue
		}
		kind, fired := triggerFor(h, asset.Price)
		if !fired {
			continue
		}
		fill, err := p.Sell(prices, h.AssetID, h.Units)
		if err != nil {
			continue
		}
		out = append(out, Liquidation{Kind: kind, Fill: fill})
	}
	return out
}

func triggerFor(h models.Holding, price int64) (TriggerKind, bool) {
	if h.TakeProfit != nil && price >= *h.TakeProfit {
		return TakeProfit, true
	}
	if h.StopLoss != nil && price <= *h.StopLoss {
		return StopLoss, true
	}
	return "", false
}
