package engine

import (
	"errors"
	"fmt"

	"github.com/tatianab/hustle/internal/models"
)

// ErrValidation matches every ValidationError via errors.Is.
var ErrValidation = errors.New("invalid turn input")

// ValidationError is bad caller input, rejected before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ActionKind names a manual side transaction submitted alongside choices.
type ActionKind string

const (
	ActionDeposit  ActionKind = "deposit"
	ActionWithdraw ActionKind = "withdraw"
	ActionRestock  ActionKind = "restock"
	ActionBuy      ActionKind = "buy"
	ActionSell     ActionKind = "sell"
)

// Action is one manual transaction. Amount is money for every kind except
// sell, where it is a unit count.
type Action struct {
	Kind    ActionKind `json:"kind" yaml:"kind"`
	AssetID string     `json:"asset_id,omitempty" yaml:"asset_id,omitempty"`
	Amount  int64      `json:"amount" yaml:"amount"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActionBuy:
		return fmt.Sprintf("buy %s of %s", models.Naira(a.Amount), a.AssetID)
	case ActionSell:
		return fmt.Sprintf("sell %d units of %s", a.Amount, a.AssetID)
	case ActionDeposit:
		return fmt.Sprintf("save %s", models.Naira(a.Amount))
	case ActionWithdraw:
		return fmt.Sprintf("withdraw %s from savings", models.Naira(a.Amount))
	case ActionRestock:
		return fmt.Sprintf("restock %s of goods", models.Naira(a.Amount))
	}
	return string(a.Kind)
}

func (r *Resolver) validate(in Input) error {
	choices := len(in.Scenario.Choices)
	if choices == 0 {
		return invalid("scenario", "no choices to select from")
	}
	n := len(in.Selections)
	if n < 1 || n > r.rules.MaxSelections {
		return invalid("selections", "need 1 to %d, got %d", r.rules.MaxSelections, n)
	}
	seen := make(map[int]bool, n)
	for _, idx := range in.Selections {
		if idx < 0 || idx >= choices {
			return invalid("selections", "index %d out of range [0,%d)", idx, choices)
		}
		if seen[idx] {
			return invalid("selections", "index %d selected twice", idx)
		}
		seen[idx] = true
	}

	for i, a := range in.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		if a.Amount <= 0 {
			return invalid(field, "amount must be > 0")
		}
		switch a.Kind {
		case ActionDeposit, ActionWithdraw:
		case ActionRestock:
			if in.State.Income != models.IncomeTrade {
				return invalid(field, "restock needs a trade role")
			}
		case ActionBuy, ActionSell:
			if a.AssetID == "" {
				return invalid(field, "asset id is required")
			}
			if _, err := r.prices.Asset(a.AssetID); err != nil {
				return invalid(field, "unknown asset %q", a.AssetID)
			}
		default:
			return invalid(field, "unknown action %q", a.Kind)
		}
	}
	return nil
}
