package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tatianab/hustle/internal/engine"
	"github.com/tatianab/hustle/internal/market"
)

type commandKind int

const (
	cmdSelect commandKind = iota
	cmdAction
	cmdTrigger
	cmdClear
	cmdRetry
	cmdRestart
	cmdQuit
	cmdHelp
)

type command struct {
	kind       commandKind
	selections []int // zero-based
	action     engine.Action
	assetID    string
	trigger    market.TriggerKind
	level      *int64 // nil clears the trigger
}

// parseCommand reads one line of player input. Choices are typed as their
// 1-based numbers, "1 3" or "1,3"; everything else starts with a slash.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, fmt.Errorf("empty input")
	}
	if !strings.HasPrefix(line, "/") {
		return parseSelections(line)
	}

	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	case "/restart":
		return command{kind: cmdRestart}, nil
	case "/retry":
		return command{kind: cmdRetry}, nil
	case "/clear":
		return command{kind: cmdClear}, nil
	case "/help":
		return command{kind: cmdHelp}, nil
	case "/deposit", "/save", "/withdraw", "/restock":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: %s <amount>", name)
		}
		amount, err := parseAmount(args[0])
		if err != nil {
			return command{}, err
		}
		kind := map[string]engine.ActionKind{
			"/deposit":  engine.ActionDeposit,
			"/save":     engine.ActionDeposit,
			"/withdraw": engine.ActionWithdraw,
			"/restock":  engine.ActionRestock,
		}[name]
		return command{kind: cmdAction, action: engine.Action{Kind: kind, Amount: amount}}, nil
	case "/buy", "/sell":
		if len(args) != 2 {
			return command{}, fmt.Errorf("usage: %s <asset> <amount>", name)
		}
		n, err := parseAmount(args[1])
		if err != nil {
			return command{}, err
		}
		kind := engine.ActionBuy
		if name == "/sell" {
			kind = engine.ActionSell
		}
		return command{kind: cmdAction, action: engine.Action{Kind: kind, AssetID: strings.ToLower(args[0]), Amount: n}}, nil
	case "/stop", "/take":
		if len(args) != 2 {
			return command{}, fmt.Errorf("usage: %s <asset> <price|off>", name)
		}
		c := command{kind: cmdTrigger, assetID: strings.ToLower(args[0]), trigger: market.StopLoss}
		if name == "/take" {
			c.trigger = market.TakeProfit
		}
		if strings.EqualFold(args[1], "off") {
			return c, nil
		}
		level, err := parseAmount(args[1])
		if err != nil {
			return command{}, err
		}
		c.level = &level
		return c, nil
	}
	return command{}, fmt.Errorf("unknown command %s", fields[0])
}

func parseSelections(line string) (command, error) {
	parts := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == ',' })
	c := command{kind: cmdSelect}
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("%q is not a choice number", p)
		}
		c.selections = append(c.selections, n-1)
	}
	return c, nil
}

// parseAmount accepts plain digits with optional naira sign, commas and a
// trailing k for thousands.
func parseAmount(s string) (int64, error) {
	raw := s
	s = strings.TrimPrefix(strings.TrimSpace(s), "₦")
	s = strings.ReplaceAll(s, ",", "")
	mult := int64(1)
	if strings.HasSuffix(strings.ToLower(s), "k") {
		mult = 1000
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%q is not a positive amount", raw)
	}
	return n * mult, nil
}
