package market

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tatianab/hustle/internal/models"
)

// seq replays fixed draws, cycling when exhausted.
type seq struct {
	vals []float64
	i    int
}

func (s *seq) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	return NewCatalog([]models.Asset{
		{ID: "mtn-ng", DisplayName: "MTN Nigeria", Type: models.AssetEquity, Price: 280, History: []int64{280}},
		{ID: "stanbic-fund", DisplayName: "Stanbic IBTC Fund", Type: models.AssetFund, Price: 100, History: []int64{100}},
	}, models.DefaultRules())
}

func TestDefaultAssets(t *testing.T) {
	assets, err := DefaultAssets()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assets) != 4 {
		t.Fatalf("expected 4 built-in assets, got %d", len(assets))
	}
	c := NewCatalog(assets, models.DefaultRules())
	if got := len(c.List(models.AssetFund)); got != 1 {
		t.Fatalf("expected 1 fund, got %d", got)
	}
	if got := len(c.List("")); got != 4 {
		t.Fatalf("expected 4 assets unfiltered, got %d", got)
	}
}

func TestCatalogAssetNotFound(t *testing.T) {
	c := testCatalog(t)
	if _, err := c.Asset("nope"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestAdvancePrices(t *testing.T) {
	c := testCatalog(t)
	// draw 0.5 -> step -0.07 + 0.5*0.16 = 0.01
	c.AdvancePrices(&seq{vals: []float64{0.5}})

	a, _ := c.Asset("mtn-ng")
	if a.Price != 282 { // floor(280 * 1.01)
		t.Fatalf("got price %d want 282", a.Price)
	}
	if len(a.History) != 2 || a.History[1] != 282 {
		t.Fatalf("unexpected history %v", a.History)
	}
}

func TestAdvancePricesFloorAndWindow(t *testing.T) {
	rules := models.DefaultRules()
	rules.HistoryWindow = 3
	rules.PriceDriftMin = -0.99
	rules.PriceDriftMax = -0.99
	c := NewCatalog([]models.Asset{{ID: "x", Price: 2, History: []int64{5, 4, 3, 2}}}, rules)

	r := &seq{vals: []float64{0}}
	for i := 0; i < 5; i++ {
		c.AdvancePrices(r)
	}
	a, _ := c.Asset("x")
	if a.Price != 1 {
		t.Fatalf("price should floor at 1, got %d", a.Price)
	}
	if len(a.History) != 3 {
		t.Fatalf("history should be capped at 3, got %v", a.History)
	}
}

func TestBuyRounding(t *testing.T) {
	c := testCatalog(t)
	p := NewPortfolio(nil)

	fill, err := p.Buy(c, "mtn-ng", 999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fill.Units != 3 || fill.Amount != 840 {
		t.Fatalf("got units=%d amount=%d, want 3 and 840", fill.Units, fill.Amount)
	}
	if refund := 999 - fill.Amount; refund != 159 {
		t.Fatalf("refund got %d want 159", refund)
	}
	h, _ := p.Holding("mtn-ng")
	if !h.AverageCost.Equal(decimal.NewFromInt(280)) {
		t.Fatalf("average cost got %s want 280", h.AverageCost)
	}
}

func TestBuyWeightedAverage(t *testing.T) {
	c := NewCatalog([]models.Asset{{ID: "a", Price: 280}}, models.DefaultRules())
	p := NewPortfolio(nil)
	if _, err := p.Buy(c, "a", 840); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// price moves to 300 via a fresh catalog
	c2 := NewCatalog([]models.Asset{{ID: "a", Price: 300}}, models.DefaultRules())
	if _, err := p.Buy(c2, "a", 600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, _ := p.Holding("a")
	if h.Units != 5 {
		t.Fatalf("units got %d want 5", h.Units)
	}
	if !h.AverageCost.Equal(decimal.NewFromInt(288)) {
		t.Fatalf("average cost got %s want 288", h.AverageCost)
	}
}

func TestBuyErrors(t *testing.T) {
	c := testCatalog(t)
	p := NewPortfolio(nil)

	if _, err := p.Buy(c, "mtn-ng", 279); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := p.Buy(c, "ghost", 1000); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
	if len(p.Holdings()) != 0 {
		t.Fatalf("failed buys must not create holdings")
	}
}

func TestSell(t *testing.T) {
	c := testCatalog(t)
	p := NewPortfolio(nil)
	if _, err := p.Buy(c, "stanbic-fund", 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := p.Sell(c, "stanbic-fund", 6); !errors.Is(err, ErrInsufficientUnits) {
		t.Fatalf("expected ErrInsufficientUnits, got %v", err)
	}
	fill, err := p.Sell(c, "stanbic-fund", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fill.Amount != 200 {
		t.Fatalf("proceeds got %d want 200", fill.Amount)
	}
	h, _ := p.Holding("stanbic-fund")
	if h.Units != 3 || !h.AverageCost.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected holding after sell %+v", h)
	}
	if _, err := p.Sell(c, "stanbic-fund", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.Holding("stanbic-fund"); ok {
		t.Fatalf("empty holding should be pruned")
	}
}

func TestValuateMatchesHoldings(t *testing.T) {
	c := testCatalog(t)
	p := NewPortfolio(nil)
	p.Buy(c, "mtn-ng", 1000)
	p.Buy(c, "stanbic-fund", 450)

	r := &seq{vals: []float64{0.1, 0.9, 0.4}}
	for i := 0; i < 10; i++ {
		c.AdvancePrices(r)
		var want int64
		for _, h := range p.Holdings() {
			a, _ := c.Asset(h.AssetID)
			want += h.Units * a.Price
		}
		if got := p.Valuate(c); got != want {
			t.Fatalf("round %d: valuate got %d want %d", i, got, want)
		}
	}
}

func TestSetTrigger(t *testing.T) {
	c := testCatalog(t)
	p := NewPortfolio(nil)
	level := int64(250)

	if err := p.SetTrigger("mtn-ng", StopLoss, &level); !errors.Is(err, ErrNoHolding) {
		t.Fatalf("expected ErrNoHolding, got %v", err)
	}
	p.Buy(c, "mtn-ng", 560)
	if err := p.SetTrigger("mtn-ng", StopLoss, &level); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	level = 1 // mutating the caller's value must not move the trigger
	h, _ := p.Holding("mtn-ng")
	if h.StopLoss == nil || *h.StopLoss != 250 {
		t.Fatalf("unexpected stop loss %v", h.StopLoss)
	}
	if err := p.SetTrigger("mtn-ng", StopLoss, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, _ = p.Holding("mtn-ng")
	if h.StopLoss != nil {
		t.Fatalf("stop loss should be cleared")
	}
}

func TestLiquidate(t *testing.T) {
	c := testCatalog(t)
	p := NewPortfolio(nil)
	p.Buy(c, "mtn-ng", 560)
	p.Buy(c, "stanbic-fund", 300)

	// both levels sit at the current price: take-profit must win
	tp, sl := int64(280), int64(280)
	p.SetTrigger("mtn-ng", TakeProfit, &tp)
	p.SetTrigger("mtn-ng", StopLoss, &sl)
	// not crossed
	far := int64(50)
	p.SetTrigger("stanbic-fund", StopLoss, &far)

	got := p.Liquidate(c)
	if len(got) != 1 {
		t.Fatalf("expected 1 liquidation, got %d", len(got))
	}
	if got[0].Kind != TakeProfit || got[0].Fill.Amount != 560 {
		t.Fatalf("unexpected liquidation %+v", got[0])
	}
	if _, ok := p.Holding("mtn-ng"); ok {
		t.Fatalf("liquidated holding should be gone")
	}
	if _, ok := p.Holding("stanbic-fund"); !ok {
		t.Fatalf("untriggered holding should remain")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := testCatalog(t)
	p := NewPortfolio(nil)
	p.Buy(c, "mtn-ng", 560)

	cp := p.Clone()
	cp.Buy(c, "mtn-ng", 280)
	h, _ := p.Holding("mtn-ng")
	if h.Units != 2 {
		t.Fatalf("original changed through clone: %d units", h.Units)
	}
}
