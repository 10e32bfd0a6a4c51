package models

import "fmt"

// Rules parameterizes turn resolution. It is chosen at run start and carried
// in the snapshot so a resumed run keeps its rules.
type Rules struct {
	PayCycle          int     `yaml:"pay_cycle" json:"pay_cycle"`
	MaxTurns          int     `yaml:"max_turns" json:"max_turns"`
	MaxSelections     int     `yaml:"max_selections" json:"max_selections"`
	HistoryWindow     int     `yaml:"history_window" json:"history_window"`
	PriceDriftMin     float64 `yaml:"price_drift_min" json:"price_drift_min"`
	PriceDriftMax     float64 `yaml:"price_drift_max" json:"price_drift_max"`
	SalesShareMin     float64 `yaml:"sales_share_min" json:"sales_share_min"`
	SalesShareMax     float64 `yaml:"sales_share_max" json:"sales_share_max"`
	SalesMarkupMin    float64 `yaml:"sales_markup_min" json:"sales_markup_min"`
	SalesMarkupMax    float64 `yaml:"sales_markup_max" json:"sales_markup_max"`
	NarratorHistory   int     `yaml:"narrator_history" json:"narrator_history"`
	StartingHappiness int     `yaml:"starting_happiness" json:"starting_happiness"`
}

// DefaultRules returns the stock game rules.
func DefaultRules() Rules {
	return Rules{
		PayCycle:          4,
		MaxTurns:          24,
		MaxSelections:     2,
		HistoryWindow:     14,
		PriceDriftMin:     -0.07,
		PriceDriftMax:     0.09,
		SalesShareMin:     0.10,
		SalesShareMax:     0.25,
		SalesMarkupMin:    1.20,
		SalesMarkupMax:    1.50,
		NarratorHistory:   5,
		StartingHappiness: 80,
	}
}

// Validate rejects rule sets the engine cannot run.
func (r Rules) Validate() error {
	switch {
	case r.PayCycle <= 0:
		return fmt.Errorf("pay_cycle must be > 0")
	case r.MaxTurns <= 0:
		return fmt.Errorf("max_turns must be > 0")
	case r.MaxSelections <= 0:
		return fmt.Errorf("max_selections must be > 0")
	case r.HistoryWindow <= 0:
		return fmt.Errorf("history_window must be > 0")
	case r.PriceDriftMin > r.PriceDriftMax:
		return fmt.Errorf("price drift range is inverted")
	case r.SalesShareMin > r.SalesShareMax || r.SalesShareMin < 0 || r.SalesShareMax > 1:
		return fmt.Errorf("sales share range must sit inside [0,1]")
	case r.SalesMarkupMin > r.SalesMarkupMax:
		return fmt.Errorf("sales markup range is inverted")
	case r.StartingHappiness < 0 || r.StartingHappiness > 100:
		return fmt.Errorf("starting_happiness must be within [0,100]")
	}
	return nil
}

// SurgeTurn reports whether turn is one of the harder weeks handed to the narrator.
func SurgeTurn(turn int) bool {
	return turn > 0 && turn%6 == 0
}

// Season labels the half of the run the turn falls in.
func Season(turn, maxTurns int) string {
	if turn > maxTurns/2 {
		return "The Heat"
	}
	return "The Hustle"
}

// HealthScore rates the player's finances on [0,100].
func HealthScore(p PlayerState) float64 {
	score := float64(p.Happiness) * 0.4
	if p.Salary > 0 {
		score += float64(p.Cash)/float64(p.Salary)*20 + float64(p.Savings)/float64(p.Salary)*40
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// HealthLabel names the band of a health score.
func HealthLabel(score float64) string {
	switch {
	case score > 80:
		return "Wealthy"
	case score > 50:
		return "Stable"
	case score > 20:
		return "Struggling"
	default:
		return "Sapa Mode"
	}
}
