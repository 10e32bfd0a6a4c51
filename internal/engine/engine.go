// Package engine resolves one turn: previous state plus the player's
// selections and manual actions in, next state plus effects out.
package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tatianab/hustle/internal/market"
	"github.com/tatianab/hustle/internal/models"
)

// Input is everything one resolution needs. State and Portfolio are never
// modified; the result carries new values.
type Input struct {
	State      models.PlayerState
	Scenario   models.Scenario
	Selections []int
	Actions    []Action
	Portfolio  *market.Portfolio
}

// Result is the outcome of a resolution. Outcome is non-nil when the run
// terminated; in that case Next is the final snapshot and Entry must not be
// appended to history.
type Result struct {
	Next      models.PlayerState
	Portfolio *market.Portfolio
	Entry     models.LedgerEntry
	Outcome   *models.RunOutcome
}

// Terminated reports whether the turn ended the run.
func (r Result) Terminated() bool { return r.Outcome != nil }

// Resolver applies one set of rules to turns. It holds no per-run state.
type Resolver struct {
	rules  models.Rules
	prices market.Prices
	rand   models.Rand
}

// New builds a resolver. prices is read for investments and manual trades;
// r supplies every random draw.
func New(rules models.Rules, prices market.Prices, r models.Rand) *Resolver {
	return &Resolver{rules: rules, prices: prices, rand: r}
}

// Rules returns the rules the resolver was built with.
func (r *Resolver) Rules() models.Rules { return r.rules }

// totals accumulates deltas across one resolution.
type totals struct {
	cash, savings, debt int64
	inventory           int64
	happiness           int
	events              []models.Event
}

func (t *totals) log(kind models.EventKind, decision, text string, amount int64) {
	t.events = append(t.events, models.Event{Kind: kind, Decision: decision, Text: text, Amount: amount})
}

// Resolve runs income, choices, manual actions, aggregation, shortfall
// reconciliation and the turn-limit check, in that order.
func (r *Resolver) Resolve(in Input) (Result, error) {
	if err := r.validate(in); err != nil {
		return Result{}, err
	}

	prev := in.State
	portfolio := market.NewPortfolio(nil)
	if in.Portfolio != nil {
		portfolio = in.Portfolio.Clone()
	}
	t := &totals{}

	r.applyIncome(prev, t)

	var decisions, consequences []string
	for _, idx := range in.Selections {
		c := in.Scenario.Choices[idx]
		decisions = append(decisions, c.Text)
		if c.Consequence != "" {
			consequences = append(consequences, c.Consequence)
		}
		r.applyChoice(c, portfolio, t)
	}

	for _, a := range in.Actions {
		r.applyAction(prev, a, portfolio, t)
		decisions = append(decisions, a.String())
	}

	next := prev
	next.Cash = prev.Cash + t.cash
	next.Savings = max(0, prev.Savings+t.savings)
	next.Debt = max(0, prev.Debt+t.debt)
	next.Happiness = clamp(prev.Happiness+t.happiness, 0, 100)
	next.Inventory = max(0, prev.Inventory+t.inventory)

	entry := models.LedgerEntry{
		Turn:        prev.CurrentTurn,
		Title:       in.Scenario.Title,
		Decision:    strings.Join(decisions, " + "),
		Consequence: strings.Join(consequences, " "),
	}

	if next.Cash < 0 {
		deficit := -next.Cash
		if next.Savings < deficit {
			entry.NetCash = next.Cash - prev.Cash
			entry.BalanceAfter = next.Cash
			entry.Events = t.events
			return Result{
				Next:      next,
				Portfolio: portfolio,
				Entry:     entry,
				Outcome:   &models.RunOutcome{Reason: models.EndBankrupt, FinalState: next},
			}, nil
		}
		next.Savings -= deficit
		next.Cash = 0
		t.log(models.EventAutoSavings, "Auto-savings", fmt.Sprintf("Covered a %s shortfall from savings", models.Naira(deficit)), deficit)
	}

	entry.NetCash = next.Cash - prev.Cash
	entry.BalanceAfter = next.Cash
	entry.Events = t.events

	if prev.CurrentTurn+1 > r.rules.MaxTurns {
		return Result{
			Next:      next,
			Portfolio: portfolio,
			Entry:     entry,
			Outcome:   &models.RunOutcome{Reason: models.EndCompleted, FinalState: next},
		}, nil
	}

	next.CurrentTurn = prev.CurrentTurn + 1
	return Result{Next: next, Portfolio: portfolio, Entry: entry}, nil
}

func (r *Resolver) applyIncome(prev models.PlayerState, t *totals) {
	switch prev.Income {
	case models.IncomeTrade:
		if prev.Inventory <= 0 {
			return
		}
		share := models.Uniform(r.rand, r.rules.SalesShareMin, r.rules.SalesShareMax)
		sold := int64(math.Floor(float64(prev.Inventory) * share))
		markup := models.Uniform(r.rand, r.rules.SalesMarkupMin, r.rules.SalesMarkupMax)
		revenue := int64(math.Floor(float64(sold) * markup))
		t.cash += revenue
		t.inventory -= sold
		t.log(models.EventSales, "Weekly sales",
			fmt.Sprintf("Sold %s of stock for %s (profit %s)", models.Naira(sold), models.Naira(revenue), models.Naira(revenue-sold)),
			revenue)
	default:
		if prev.Salary > 0 && prev.CurrentTurn%r.rules.PayCycle == 0 {
			t.cash += prev.Salary
			t.log(models.EventSalary, "Salary", "Salary credited", prev.Salary)
		}
	}
}

func (r *Resolver) applyChoice(c models.Choice, p *market.Portfolio, t *totals) {
	t.cash += c.Impact.Cash
	t.savings += c.Impact.Savings
	t.debt += c.Impact.Debt
	t.happiness += c.Impact.Happiness
	t.log(models.EventChoice, c.Text, c.Consequence, c.Impact.Cash)

	if c.InvestmentID == "" {
		return
	}
	// Only a cash outflow funds a purchase.
	if c.Impact.Cash >= 0 {
		t.log(models.EventInvestment, c.Text, "No cash committed, nothing bought", 0)
		return
	}
	spend := -c.Impact.Cash
	fill, err := p.Buy(r.prices, c.InvestmentID, spend)
	switch {
	case errors.Is(err, market.ErrAssetNotFound):
		t.log(models.EventInvestment, c.Text, fmt.Sprintf("%s is not listed, no units bought", c.InvestmentID), 0)
	case err != nil:
		t.cash += spend
		t.log(models.EventRefund, c.Text, fmt.Sprintf("Purchase failed (%v), %s refunded", err, models.Naira(spend)), spend)
	default:
		t.log(models.EventInvestment, c.Text,
			fmt.Sprintf("Bought %d units of %s at %s", fill.Units, fill.AssetID, models.Naira(fill.Price)), -fill.Amount)
		if refund := spend - fill.Amount; refund > 0 {
			t.cash += refund
			t.log(models.EventRefund, c.Text, fmt.Sprintf("%s unspent after rounding", models.Naira(refund)), refund)
		}
	}
}

// applyAction executes one manual action against running balances. A failed
// action changes nothing and is logged as rejected.
func (r *Resolver) applyAction(prev models.PlayerState, a Action, p *market.Portfolio, t *totals) {
	// Savings cannot go below zero, so a choice that overdrew it is settled
	// before the action reads or adds to the balance.
	if prev.Savings+t.savings < 0 {
		t.savings = -prev.Savings
	}
	cash := prev.Cash + t.cash
	savings := prev.Savings + t.savings
	decision := a.String()

	reject := func(err error) {
		t.log(models.EventRejected, decision, err.Error(), 0)
	}

	switch a.Kind {
	case ActionDeposit:
		if cash < a.Amount {
			reject(fmt.Errorf("%w: %s on hand", market.ErrInsufficientFunds, models.Naira(cash)))
			return
		}
		t.cash -= a.Amount
		t.savings += a.Amount
		t.log(models.EventDeposit, decision, "Moved to savings", -a.Amount)
	case ActionWithdraw:
		if savings < a.Amount {
			reject(fmt.Errorf("%w: %s saved", market.ErrInsufficientFunds, models.Naira(savings)))
			return
		}
		t.savings -= a.Amount
		t.cash += a.Amount
		t.log(models.EventWithdraw, decision, "Moved to cash", a.Amount)
	case ActionRestock:
		if cash < a.Amount {
			reject(fmt.Errorf("%w: %s on hand", market.ErrInsufficientFunds, models.Naira(cash)))
			return
		}
		t.cash -= a.Amount
		t.inventory += a.Amount
		t.log(models.EventRestock, decision, "Bought new stock", -a.Amount)
	case ActionBuy:
		if cash < a.Amount {
			reject(fmt.Errorf("%w: %s on hand", market.ErrInsufficientFunds, models.Naira(cash)))
			return
		}
		fill, err := p.Buy(r.prices, a.AssetID, a.Amount)
		if err != nil {
			reject(err)
			return
		}
		t.cash -= fill.Amount
		t.log(models.EventBuy, decision,
			fmt.Sprintf("Bought %d units at %s", fill.Units, models.Naira(fill.Price)), -fill.Amount)
	case ActionSell:
		fill, err := p.Sell(r.prices, a.AssetID, a.Amount)
		if err != nil {
			reject(err)
			return
		}
		t.cash += fill.Amount
		t.log(models.EventSell, decision,
			fmt.Sprintf("Sold %d units at %s", fill.Units, models.Naira(fill.Price)), fill.Amount)
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
