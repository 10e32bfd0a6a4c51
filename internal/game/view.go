package game

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/tatianab/hustle/internal/engine"
	"github.com/tatianab/hustle/internal/history"
	"github.com/tatianab/hustle/internal/market"
	"github.com/tatianab/hustle/internal/metrics"
	"github.com/tatianab/hustle/internal/models"
	"github.com/tatianab/hustle/internal/store"
)

// HoldingView is a holding priced at the current catalog price.
type HoldingView struct {
	models.Holding
	DisplayName string          `json:"display_name"`
	Price       int64           `json:"price"`
	Value       int64           `json:"value"`
	Unrealized  decimal.Decimal `json:"unrealized"`
}

// View is a read-only copy of everything a front end renders.
type View struct {
	RunID          string               `json:"run_id,omitempty"`
	Phase          models.Phase         `json:"phase"`
	State          models.PlayerState   `json:"state"`
	MaxTurns       int                  `json:"max_turns"`
	Season         string               `json:"season"`
	Surge          bool                 `json:"surge"`
	PortfolioValue int64                `json:"portfolio_value"`
	NetWorth       int64                `json:"net_worth"`
	Health         float64              `json:"health"`
	HealthLabel    string               `json:"health_label"`
	Scenario       *models.Scenario     `json:"scenario,omitempty"`
	ScenarioError  string               `json:"scenario_error,omitempty"`
	LastEntry      *models.LedgerEntry  `json:"last_entry,omitempty"`
	Holdings       []HoldingView        `json:"holdings"`
	Assets         []models.Asset       `json:"assets"`
	History        []models.LedgerEntry `json:"history"`
	Outcome        *models.RunOutcome   `json:"outcome,omitempty"`
	Report         *models.Report       `json:"report,omitempty"`
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		RunID:    c.runID,
		Phase:    c.phase,
		State:    c.state,
		MaxTurns: c.rules.MaxTurns,
		Season:   models.Season(c.state.CurrentTurn, c.rules.MaxTurns),
		Surge:    models.SurgeTurn(c.state.CurrentTurn),
		Assets:   c.catalog.List(""),
		History:  c.history.All(),
		Outcome:  c.outcome,
		Report:   c.report,
	}
	if c.current != nil {
		sc := *c.current
		v.Scenario = &sc
	}
	if c.scenarioErr != nil {
		v.ScenarioError = c.scenarioErr.Error()
	}
	if c.lastEntry != nil {
		e := *c.lastEntry
		v.LastEntry = &e
	}
	for _, h := range c.portfolio.Holdings() {
		hv := HoldingView{Holding: h}
		if a, err := c.catalog.Asset(h.AssetID); err == nil {
			hv.DisplayName = a.DisplayName
			hv.Price = a.Price
			hv.Value = h.Units * a.Price
			hv.Unrealized = h.Unrealized(a.Price)
		}
		v.Holdings = append(v.Holdings, hv)
	}
	v.PortfolioValue = c.portfolio.Valuate(c.catalog)
	v.NetWorth = c.state.NetWorth(v.PortfolioValue)
	v.Health = models.HealthScore(c.state)
	v.HealthLabel = models.HealthLabel(v.Health)
	return v
}

// persist saves a snapshot of the active run. Failures are logged; the run
// continues in memory.
func (c *Controller) persist() {
	c.mu.Lock()
	if c.phase == models.PhaseNotStarted {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := c.opts.Store.Save(ctx, snap); err != nil {
		metrics.StoreErrors.WithLabelValues("save").Inc()
		c.logger.Warn("save failed", "run_id", snap.RunID, "error", err)
	}
}

func (c *Controller) snapshotLocked() *models.Snapshot {
	return &models.Snapshot{
		Version:  models.SnapshotVersion,
		RunID:    c.runID,
		SavedAt:  c.opts.Now().UTC(),
		Rules:    c.rules,
		Phase:    c.phase,
		State:    c.state,
		History:  c.history.All(),
		Holdings: c.portfolio.Holdings(),
		Catalog:  c.catalog.List(""),
		Scenario: c.current,
		Outcome:  c.outcome,
		Report:   c.report,
	}
}

// restoreLocked loads snap into the controller. Rules that no longer
// validate fall back to the configured ones.
func (c *Controller) restoreLocked(snap *models.Snapshot) {
	rules := c.opts.Rules
	if snap.Rules.Validate() == nil {
		rules = snap.Rules
	}
	c.rules = rules

	assets := snap.Catalog
	if len(assets) == 0 {
		assets = c.opts.Assets
	}
	c.catalog = market.NewCatalog(assets, rules)
	c.resolver = engine.New(rules, c.catalog, c.opts.Rand)
	c.history = history.New(snap.History)
	c.portfolio = market.NewPortfolio(snap.Holdings)

	c.runID = snap.RunID
	c.phase = snap.Phase
	c.state = snap.State
	c.current = snap.Scenario
	c.outcome = snap.Outcome
	c.report = snap.Report
	if c.phase == models.PhaseTerminated && c.report == nil && c.outcome != nil {
		rep := DefaultReport(c.outcome.Reason)
		c.report = &rep
	}
}

// HasSavedRun reports whether the store holds a run to resume.
func (c *Controller) HasSavedRun(ctx context.Context) (bool, error) {
	_, err := c.opts.Store.Load(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		return false, nil
	}
	return err == nil, err
}
