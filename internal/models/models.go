package models

import "github.com/shopspring/decimal"

// IncomeMode selects how a player earns money each turn.
type IncomeMode string

const (
	IncomeSalary IncomeMode = "salary" // paid every pay cycle
	IncomeTrade  IncomeMode = "trade"  // weekly sales out of inventory
)

// Profile holds the identity fields chosen at setup. It never changes during a run.
type Profile struct {
	Name          string `yaml:"name" json:"name"`
	Gender        string `yaml:"gender" json:"gender"`
	Age           int    `yaml:"age" json:"age"`
	Job           string `yaml:"job" json:"job"`
	City          string `yaml:"city" json:"city"`
	Challenge     string `yaml:"challenge" json:"challenge"`
	MaritalStatus string `yaml:"marital_status" json:"marital_status"` // "single" or "married"
	Dependents    int    `yaml:"dependents" json:"dependents"`
}

// PlayerState is the authoritative record of one run. It is treated as a
// value: every resolved turn produces a new PlayerState.
type PlayerState struct {
	Profile      Profile    `yaml:"profile" json:"profile"`
	Income       IncomeMode `yaml:"income" json:"income"`
	Cash         int64      `yaml:"cash" json:"cash"`
	Savings      int64      `yaml:"savings" json:"savings"`
	Debt         int64      `yaml:"debt" json:"debt"`
	Happiness    int        `yaml:"happiness" json:"happiness"`
	CurrentTurn  int        `yaml:"current_turn" json:"current_turn"`
	Salary       int64      `yaml:"salary" json:"salary"`
	Inventory    int64      `yaml:"inventory" json:"inventory"`         // trade mode only
	BusinessDebt int64      `yaml:"business_debt" json:"business_debt"` // owed by customers
}

// NetWorth is cash + savings + portfolio value + inventory - debt.
func (p PlayerState) NetWorth(portfolioValue int64) int64 {
	return p.Cash + p.Savings + portfolioValue + p.Inventory - p.Debt
}

// Impact is the mechanical effect of a choice.
type Impact struct {
	Cash      int64 `yaml:"cash" json:"cash"`
	Savings   int64 `yaml:"savings" json:"savings"`
	Debt      int64 `yaml:"debt" json:"debt"`
	Happiness int   `yaml:"happiness" json:"happiness"`
}

// Choice is one option of a scenario.
type Choice struct {
	Text         string   `yaml:"text" json:"text"`
	Consequence  string   `yaml:"consequence" json:"consequence"`
	Category     string   `yaml:"category,omitempty" json:"category,omitempty"`
	Impact       Impact   `yaml:"impact" json:"impact"`
	InvestmentID string   `yaml:"investment_id,omitempty" json:"investment_id,omitempty"`
	Tags         []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// MarketNews is an optional headline attached to a scenario. Display only.
type MarketNews struct {
	Headline string `yaml:"headline" json:"headline"`
	Impact   string `yaml:"impact" json:"impact"` // positive, negative, neutral
	AssetID  string `yaml:"asset_id,omitempty" json:"asset_id,omitempty"`
}

// Scenario is narrator content for exactly one turn.
type Scenario struct {
	Title       string      `yaml:"title" json:"title"`
	Description string      `yaml:"description" json:"description"`
	Lesson      string      `yaml:"lesson,omitempty" json:"lesson,omitempty"`
	Choices     []Choice    `yaml:"choices" json:"choices"`
	News        *MarketNews `yaml:"news,omitempty" json:"news,omitempty"`
	Trends      []Post      `yaml:"trends,omitempty" json:"trends,omitempty"`
}

// Post is a short social-feed line shown next to a scenario.
type Post struct {
	Handle    string `yaml:"handle" json:"handle"`
	Content   string `yaml:"content" json:"content"`
	Sentiment string `yaml:"sentiment,omitempty" json:"sentiment,omitempty"` // bullish, bearish, funny, advice
}

// ScenarioRequest is what the narrator is given to write the next turn.
type ScenarioRequest struct {
	State       PlayerState
	Recent      []LedgerEntry
	AvoidTitles []string
	MaxTurns    int
	Assets      []Asset
}

// ReportRequest is what the analyst is given at the end of a run.
type ReportRequest struct {
	Final    PlayerState
	History  []LedgerEntry
	Reason   EndReason
	NetWorth int64
	MaxTurns int
}

// EventKind tags one line of a turn's consequence log.
type EventKind string

const (
	EventSalary      EventKind = "salary"
	EventSales       EventKind = "sales"
	EventChoice      EventKind = "choice"
	EventInvestment  EventKind = "investment"
	EventRefund      EventKind = "refund"
	EventDeposit     EventKind = "savings-deposit"
	EventWithdraw    EventKind = "savings-withdraw"
	EventRestock     EventKind = "restock"
	EventBuy         EventKind = "portfolio-buy"
	EventSell        EventKind = "portfolio-sell"
	EventRejected    EventKind = "rejected"
	EventAutoSavings EventKind = "auto-savings"
	EventLiquidation EventKind = "auto-liquidation"
)

// Event is one consequence produced while resolving a turn.
type Event struct {
	Kind     EventKind `yaml:"kind" json:"kind"`
	Decision string    `yaml:"decision" json:"decision"`
	Text     string    `yaml:"text" json:"text"`
	Amount   int64     `yaml:"amount,omitempty" json:"amount,omitempty"` // cash effect
}

// LedgerEntry is the immutable history record of one resolved turn.
type LedgerEntry struct {
	Turn         int     `yaml:"turn" json:"turn"`
	Title        string  `yaml:"title" json:"title"`
	Decision     string  `yaml:"decision" json:"decision"`
	Consequence  string  `yaml:"consequence" json:"consequence"`
	NetCash      int64   `yaml:"net_cash" json:"net_cash"`
	BalanceAfter int64   `yaml:"balance_after" json:"balance_after"`
	Events       []Event `yaml:"events,omitempty" json:"events,omitempty"`
}

// Has reports whether the entry contains an event of the given kind.
func (e LedgerEntry) Has(kind EventKind) bool {
	for _, ev := range e.Events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

// EndReason is why a run terminated.
type EndReason string

const (
	EndBankrupt  EndReason = "bankrupt"
	EndCompleted EndReason = "completed"
)

// RunOutcome is produced once when a run terminates.
type RunOutcome struct {
	Reason     EndReason   `yaml:"reason" json:"reason"`
	FinalState PlayerState `yaml:"final_state" json:"final_state"`
}

// Report is the analyst's end-of-run verdict.
type Report struct {
	Grade    string   `yaml:"grade" json:"grade"`
	Verdict  string   `yaml:"verdict" json:"verdict"`
	Insights []string `yaml:"insights" json:"insights"`
}

// AssetType distinguishes single equities from pooled funds.
type AssetType string

const (
	AssetEquity AssetType = "equity"
	AssetFund   AssetType = "fund"
)

// Asset is a tradable instrument in the catalog.
type Asset struct {
	ID          string    `yaml:"id" json:"id"`
	DisplayName string    `yaml:"display_name" json:"display_name"`
	Sector      string    `yaml:"sector" json:"sector"`
	Type        AssetType `yaml:"type" json:"type"`
	Price       int64     `yaml:"price" json:"price"`
	History     []int64   `yaml:"history" json:"history"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
}

// Holding is the player's position in one asset.
type Holding struct {
	AssetID     string          `yaml:"asset_id" json:"asset_id"`
	Units       int64           `yaml:"units" json:"units"`
	AverageCost decimal.Decimal `yaml:"average_cost" json:"average_cost"`
	StopLoss    *int64          `yaml:"stop_loss,omitempty" json:"stop_loss,omitempty"`
	TakeProfit  *int64          `yaml:"take_profit,omitempty" json:"take_profit,omitempty"`
}

// Unrealized returns the paper gain of the holding at price.
func (h Holding) Unrealized(price int64) decimal.Decimal {
	units := decimal.NewFromInt(h.Units)
	return decimal.NewFromInt(price).Sub(h.AverageCost).Mul(units)
}

// Rand is the random source threaded through every stochastic step.
// *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Uniform draws from [lo, hi).
func Uniform(r Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}
