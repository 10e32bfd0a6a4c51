// Package game owns the single active run: it asks the narrator for
// scenarios, resolves turns through the engine, persists snapshots and calls
// the analyst when the run ends.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tatianab/hustle/internal/engine"
	"github.com/tatianab/hustle/internal/history"
	"github.com/tatianab/hustle/internal/market"
	"github.com/tatianab/hustle/internal/metrics"
	"github.com/tatianab/hustle/internal/models"
	"github.com/tatianab/hustle/internal/store"
)

var (
	ErrNotStarted     = errors.New("no run in progress")
	ErrAlreadyStarted = errors.New("a run is already in progress")
	ErrRunOver        = errors.New("run is over")
	ErrTurnInFlight   = errors.New("a turn is already being resolved")
	ErrNoScenario     = errors.New("no scenario loaded for this turn")
	ErrSetup          = errors.New("invalid setup")
)

// Narrator supplies the scenario for a turn.
type Narrator interface {
	RequestScenario(ctx context.Context, req models.ScenarioRequest) (models.Scenario, error)
}

// Analyst grades a finished run.
type Analyst interface {
	RequestReport(ctx context.Context, req models.ReportRequest) (models.Report, error)
}

const (
	defaultPrefetchWait   = 2 * time.Second
	defaultAnalystTimeout = 20 * time.Second
	fetchTimeout          = 60 * time.Second
	saveTimeout           = 5 * time.Second
)

// Options configures a Controller. Narrator, Analyst and Store are required.
type Options struct {
	Rules          models.Rules
	Assets         []models.Asset
	Presets        Presets
	Narrator       Narrator
	Analyst        Analyst
	Store          store.Store
	Rand           models.Rand
	Logger         *slog.Logger
	PrefetchWait   time.Duration
	AnalystTimeout time.Duration
	AutoTriggers   bool
	// Notify, when set, is called after state changes that clients may want
	// pushed to them. It must not block.
	Notify func(Event)
	Now    func() time.Time
}

// EventType names a push notification.
type EventType string

const (
	EventStarted       EventType = "run-started"
	EventTurnResolved  EventType = "turn-resolved"
	EventScenarioReady EventType = "scenario-ready"
	EventScenarioError EventType = "scenario-error"
	EventRunOver       EventType = "run-over"
	EventRestarted     EventType = "run-restarted"
)

type Event struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id"`
	Turn  int       `json:"turn"`
}

// prefetched is a scenario fetched ahead of the turn it belongs to.
type prefetched struct {
	gen      uint64
	forTurn  int
	scenario models.Scenario
}

// Controller is safe for concurrent use. At most one turn resolution and one
// prefetch run at a time.
type Controller struct {
	opts   Options
	logger *slog.Logger

	resolving   atomic.Bool
	prefetching atomic.Bool

	mu           sync.Mutex
	gen          uint64
	rules        models.Rules
	runID        string
	phase        models.Phase
	state        models.PlayerState
	history      *history.History
	portfolio    *market.Portfolio
	catalog      *market.Catalog
	resolver     *engine.Resolver
	current      *models.Scenario
	scenarioErr  error
	next         *prefetched
	prefetchDone chan struct{}
	prefetchGen  uint64
	prefetchTurn int
	lastEntry    *models.LedgerEntry
	outcome      *models.RunOutcome
	report       *models.Report
}

// New builds a controller in the not-started phase.
func New(opts Options) (*Controller, error) {
	if opts.Narrator == nil || opts.Analyst == nil || opts.Store == nil || opts.Rand == nil {
		return nil, fmt.Errorf("narrator, analyst, store and rand are required")
	}
	if err := opts.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	if len(opts.Presets.Jobs) == 0 {
		p, err := DefaultPresets()
		if err != nil {
			return nil, err
		}
		opts.Presets = p
	}
	if opts.Assets == nil {
		assets, err := market.DefaultAssets()
		if err != nil {
			return nil, err
		}
		opts.Assets = assets
	}
	if opts.PrefetchWait <= 0 {
		opts.PrefetchWait = defaultPrefetchWait
	}
	if opts.AnalystTimeout <= 0 {
		opts.AnalystTimeout = defaultAnalystTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{opts: opts, logger: logger}
	c.resetLocked()
	return c, nil
}

func (c *Controller) Presets() Presets { return c.opts.Presets }

// Rules returns the rules of the active run.
func (c *Controller) Rules() models.Rules {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rules
}

// Catalog exposes the live asset catalog for read-only listings.
func (c *Controller) Catalog() *market.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog
}

// begin takes the resolution guard; every operation that moves the run
// forward holds it for its whole duration.
func (c *Controller) begin() error {
	if !c.resolving.CompareAndSwap(false, true) {
		return ErrTurnInFlight
	}
	return nil
}

func (c *Controller) end() { c.resolving.Store(false) }

// Start begins a new run and loads its first scenario synchronously. If the
// narrator fails the run is still started; RetryScenario fetches again.
func (c *Controller) Start(ctx context.Context, setup Setup) (View, error) {
	if err := c.begin(); err != nil {
		return View{}, err
	}
	defer c.end()

	c.mu.Lock()
	if c.phase == models.PhasePlaying {
		c.mu.Unlock()
		return View{}, ErrAlreadyStarted
	}
	st, err := c.opts.Presets.InitialState(setup, c.opts.Rules)
	if err != nil {
		c.mu.Unlock()
		return View{}, err
	}
	c.resetLocked()
	c.runID = uuid.NewString()
	c.phase = models.PhasePlaying
	c.state = st
	c.logger.Info("run started", "run_id", c.runID, "job", st.Profile.Job, "challenge", st.Profile.Challenge)
	c.notifyLocked(EventStarted)
	c.mu.Unlock()

	err = c.ensureScenario(ctx)
	c.persist()
	return c.View(), err
}

// Resume restores the saved run, if any.
func (c *Controller) Resume(ctx context.Context) (View, error) {
	if err := c.begin(); err != nil {
		return View{}, err
	}
	defer c.end()

	snap, err := c.opts.Store.Load(ctx)
	if err != nil {
		return View{}, err
	}

	c.mu.Lock()
	c.resetLocked()
	c.restoreLocked(snap)
	phase := c.phase
	c.logger.Info("run resumed", "run_id", c.runID, "turn", c.state.CurrentTurn, "phase", phase)
	c.mu.Unlock()

	if phase == models.PhasePlaying {
		err = c.ensureScenario(ctx)
	}
	return c.View(), err
}

// Restart abandons the current run and clears the saved snapshot.
func (c *Controller) Restart(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.opts.Store.Clear(ctx); err != nil {
		metrics.StoreErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("clear saved run: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyLocked(EventRestarted)
	c.resetLocked()
	c.logger.Info("run restarted")
	return nil
}

// RetryScenario refetches the current turn's scenario after a failure.
func (c *Controller) RetryScenario(ctx context.Context) (View, error) {
	if err := c.begin(); err != nil {
		return View{}, err
	}
	defer c.end()

	c.mu.Lock()
	if err := c.playableLocked(); err != nil {
		c.mu.Unlock()
		return View{}, err
	}
	c.mu.Unlock()

	err := c.ensureScenario(ctx)
	c.persist()
	return c.View(), err
}

// Turn is the player's submission for the current scenario.
type Turn struct {
	Selections []int           `json:"selections"`
	Actions    []engine.Action `json:"actions,omitempty"`
}

// TurnResult reports what a submission did. Entry is the turn's consequence
// log even when the run ended; Liquidations lists holdings sold by triggers
// after the price update.
type TurnResult struct {
	Entry        models.LedgerEntry  `json:"entry"`
	Liquidations *models.LedgerEntry `json:"liquidations,omitempty"`
	Lesson       string              `json:"lesson,omitempty"`
	Outcome      *models.RunOutcome  `json:"outcome,omitempty"`
	View         View                `json:"view"`
}

// Submit resolves the current turn. Validation errors leave the run
// untouched. A failed next-scenario fetch is reported in the view, not as
// an error, since the turn itself was committed.
func (c *Controller) Submit(ctx context.Context, t Turn) (TurnResult, error) {
	if err := c.begin(); err != nil {
		return TurnResult{}, err
	}
	defer c.end()

	c.mu.Lock()
	if err := c.playableLocked(); err != nil {
		c.mu.Unlock()
		return TurnResult{}, err
	}
	if c.current == nil {
		c.mu.Unlock()
		return TurnResult{}, ErrNoScenario
	}

	start := time.Now()
	res, err := c.resolver.Resolve(engine.Input{
		State:      c.state,
		Scenario:   *c.current,
		Selections: t.Selections,
		Actions:    t.Actions,
		Portfolio:  c.portfolio,
	})
	metrics.TurnLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		c.mu.Unlock()
		return TurnResult{}, err
	}

	out := TurnResult{Entry: res.Entry, Lesson: c.current.Lesson}
	c.portfolio = res.Portfolio
	c.lastEntry = &res.Entry

	if res.Terminated() {
		c.state = res.Next
		c.outcome = res.Outcome
		c.phase = models.PhaseTerminated
		c.current = nil
		c.next = nil
		metrics.TurnsTotal.WithLabelValues(string(res.Outcome.Reason)).Inc()
		c.logger.Info("run over", "run_id", c.runID, "turn", c.state.CurrentTurn, "reason", res.Outcome.Reason)
		req := c.reportRequestLocked()
		c.mu.Unlock()

		c.finish(ctx, req)
		c.persist()
		out.Outcome = res.Outcome
		out.View = c.View()
		return out, nil
	}

	c.state = res.Next
	c.history.Append(res.Entry)
	c.current = nil
	c.scenarioErr = nil
	metrics.TurnsTotal.WithLabelValues("ongoing").Inc()
	c.logger.Info("turn committed", "run_id", c.runID, "turn", res.Entry.Turn, "cash", c.state.Cash, "net_cash", res.Entry.NetCash)

	c.catalog.AdvancePrices(c.opts.Rand)
	out.Liquidations = c.liquidateLocked(res.Entry.Turn)
	c.notifyLocked(EventTurnResolved)
	c.mu.Unlock()

	// The committed turn is saved before the next scenario is fetched so a
	// crash during the fetch loses nothing.
	c.persist()
	if err := c.ensureScenario(ctx); err != nil {
		c.logger.Warn("next scenario unavailable", "run_id", c.runID, "error", err)
	}
	c.persist()
	out.View = c.View()
	return out, nil
}

// SetTrigger sets or clears a stop-loss or take-profit level on a holding.
func (c *Controller) SetTrigger(ctx context.Context, assetID string, kind market.TriggerKind, level *int64) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	c.mu.Lock()
	if err := c.playableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.portfolio.SetTrigger(assetID, kind, level); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	c.persist()
	return nil
}

func (c *Controller) playableLocked() error {
	switch c.phase {
	case models.PhaseNotStarted:
		return ErrNotStarted
	case models.PhaseTerminated:
		return ErrRunOver
	}
	return nil
}

// liquidateLocked sells holdings whose triggers fired at the new prices and
// records them as their own ledger entry.
func (c *Controller) liquidateLocked(turn int) *models.LedgerEntry {
	if !c.opts.AutoTriggers {
		return nil
	}
	sold := c.portfolio.Liquidate(c.catalog)
	if len(sold) == 0 {
		return nil
	}
	entry := models.LedgerEntry{Turn: turn, Title: "Auto-liquidation", Decision: "Triggers fired"}
	var proceeds int64
	for _, l := range sold {
		proceeds += l.Fill.Amount
		entry.Events = append(entry.Events, models.Event{
			Kind:     models.EventLiquidation,
			Decision: string(l.Kind),
			Text:     fmt.Sprintf("Sold %d units of %s at %s", l.Fill.Units, l.Fill.AssetID, models.Naira(l.Fill.Price)),
			Amount:   l.Fill.Amount,
		})
		metrics.Liquidations.WithLabelValues(string(l.Kind)).Inc()
	}
	c.state.Cash += proceeds
	entry.NetCash = proceeds
	entry.BalanceAfter = c.state.Cash
	entry.Consequence = fmt.Sprintf("%s credited from triggered sells.", models.Naira(proceeds))
	c.history.Append(entry)
	return &entry
}

// finish asks the analyst for the report exactly once, substituting the
// default report on failure or timeout.
func (c *Controller) finish(ctx context.Context, req models.ReportRequest) {
	actx, cancel := context.WithTimeout(ctx, c.opts.AnalystTimeout)
	defer cancel()

	rep, err := c.opts.Analyst.RequestReport(actx, req)
	if err != nil {
		metrics.AnalystFallbacks.Inc()
		c.logger.Warn("analyst failed, using default report", "error", err)
		rep = DefaultReport(req.Reason)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.report = &rep
	c.notifyLocked(EventRunOver)
}

// DefaultReport is shown when the analyst cannot produce one.
func DefaultReport(reason models.EndReason) models.Report {
	if reason == models.EndBankrupt {
		return models.Report{
			Grade:   "F",
			Verdict: "Sapa catch you. Game over.",
			Insights: []string{
				"Keep an emergency fund so one bad week does not empty your wallet.",
				"Spend on needs before wants.",
				"Track every naira that leaves your account.",
			},
		}
	}
	return models.Report{
		Grade:   "B",
		Verdict: "Oga! You survived the hustle.",
		Insights: []string{
			"Consistent saving carried you through.",
			"Investing early lets time do the work.",
			"Plan for family requests before they arrive.",
		},
	}
}

func (c *Controller) reportRequestLocked() models.ReportRequest {
	pv := c.portfolio.Valuate(c.catalog)
	return models.ReportRequest{
		Final:    c.state,
		History:  c.history.All(),
		Reason:   c.outcome.Reason,
		NetWorth: c.state.NetWorth(pv),
		MaxTurns: c.rules.MaxTurns,
	}
}

// resetLocked drops the active run and invalidates in-flight prefetches.
func (c *Controller) resetLocked() {
	c.gen++
	c.rules = c.opts.Rules
	c.runID = ""
	c.phase = models.PhaseNotStarted
	c.state = models.PlayerState{}
	c.history = history.New(nil)
	c.portfolio = market.NewPortfolio(nil)
	c.catalog = market.NewCatalog(c.opts.Assets, c.rules)
	c.resolver = engine.New(c.rules, c.catalog, c.opts.Rand)
	c.current = nil
	c.scenarioErr = nil
	c.next = nil
	c.lastEntry = nil
	c.outcome = nil
	c.report = nil
}

func (c *Controller) notifyLocked(t EventType) {
	if c.opts.Notify == nil {
		return
	}
	c.opts.Notify(Event{Type: t, RunID: c.runID, Turn: c.state.CurrentTurn})
}
