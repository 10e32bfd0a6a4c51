package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/generative-ai-go/genai"
	"github.com/tatianab/hustle/internal/config"
	"github.com/tatianab/hustle/internal/game"
	"github.com/tatianab/hustle/internal/gemini"
	"github.com/tatianab/hustle/internal/models"
	"github.com/tatianab/hustle/internal/store"
	"google.golang.org/api/option"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	good    = color.New(color.FgGreen)
	bad     = color.New(color.FgRed)
)

// Plays one full run against the real narrator with a second model as the
// player. Set HUSTLE_SIM_PLAYER=random to pick choices at random instead.
func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		log.Fatalf("%v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if os.Getenv("HUSTLE_SIM_VERBOSE") != "" {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	narrator, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.ScenarioModel, cfg.ReportModel, logger)
	if err != nil {
		log.Fatalf("Failed to create narrator: %v", err)
	}
	defer narrator.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ctrl, err := game.New(game.Options{
		Rules:        cfg.Rules,
		Narrator:     narrator,
		Analyst:      narrator,
		Store:        store.NewMemoryStore(),
		Rand:         rng,
		Logger:       logger,
		AutoTriggers: true,
	})
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}

	var p player = randomPlayer{rng}
	if os.Getenv("HUSTLE_SIM_PLAYER") != "random" {
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			log.Fatalf("Failed to create player client: %v", err)
		}
		defer client.Close()
		p = &llmPlayer{model: client.GenerativeModel(cfg.ScenarioModel), fallback: randomPlayer{rng}}
	}

	presets := ctrl.Presets()
	setup := game.Setup{
		Name:          "Sim Player",
		Job:           presets.Jobs[rng.Intn(len(presets.Jobs))].Name,
		City:          "Lagos",
		Challenge:     presets.Challenges[rng.Intn(len(presets.Challenges))].ID,
		MaritalStatus: "single",
	}
	heading.Printf("--- Starting run: %s, %s ---\n", setup.Job, setup.Challenge)

	v, err := ctrl.Start(ctx, setup)
	for attempt := 0; err != nil && v.Phase == models.PhasePlaying && attempt < 3; attempt++ {
		fmt.Printf("Narrator failed (%v), retrying\n", err)
		v, err = ctrl.RetryScenario(ctx)
	}
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	for v.Phase == models.PhasePlaying {
		if v.Scenario == nil {
			if v, err = ctrl.RetryScenario(ctx); err != nil {
				log.Fatalf("Narrator unavailable: %v", err)
			}
			continue
		}
		sc := v.Scenario
		heading.Printf("--- Week %d/%d: %s ---\n", v.State.CurrentTurn, v.MaxTurns, sc.Title)
		fmt.Println(sc.Description)
		for i, c := range sc.Choices {
			fmt.Printf("  %d. %s\n", i+1, c.Text)
		}

		picks := p.choose(ctx, v, ctrl.Rules().MaxSelections)
		fmt.Printf("Player picks: %v\n", oneBased(picks))

		res, err := ctrl.Submit(ctx, game.Turn{Selections: picks})
		if err != nil {
			bad.Printf("Rejected (%v), falling back to the first choice\n", err)
			res, err = ctrl.Submit(ctx, game.Turn{Selections: []int{0}})
			if err != nil {
				log.Fatalf("Turn failed: %v", err)
			}
		}
		fmt.Println(res.Entry.Consequence)
		for _, e := range res.Entry.Events {
			printAmount(fmt.Sprintf("  %s: %s", e.Kind, e.Text), e.Amount)
		}
		v = res.View
		fmt.Printf("Cash=%s Savings=%s Debt=%s Happiness=%d NetWorth=%s (%s)\n\n",
			models.Naira(v.State.Cash), models.Naira(v.State.Savings), models.Naira(v.State.Debt),
			v.State.Happiness, models.Naira(v.NetWorth), v.HealthLabel)
	}

	if v.Outcome != nil && v.Outcome.Reason == models.EndBankrupt {
		bad.Println("Game Ended: Bankrupt!")
	} else {
		good.Println("Game Ended: Survived the year!")
	}
	if v.Report != nil {
		heading.Printf("Grade %s: %s\n", v.Report.Grade, v.Report.Verdict)
		for _, in := range v.Report.Insights {
			fmt.Printf("  - %s\n", in)
		}
	}
}

func printAmount(line string, amount int64) {
	switch {
	case amount > 0:
		good.Println(line)
	case amount < 0:
		bad.Println(line)
	default:
		fmt.Println(line)
	}
}

func oneBased(picks []int) []int {
	out := make([]int, len(picks))
	for i, p := range picks {
		out[i] = p + 1
	}
	return out
}

type player interface {
	choose(ctx context.Context, v game.View, limit int) []int
}

type randomPlayer struct {
	rng *rand.Rand
}

func (p randomPlayer) choose(_ context.Context, v game.View, limit int) []int {
	n := len(v.Scenario.Choices)
	k := 1 + p.rng.Intn(min(limit, n))
	return p.rng.Perm(n)[:k]
}

type llmPlayer struct {
	model    *genai.GenerativeModel
	fallback player
}

func (p *llmPlayer) choose(ctx context.Context, v game.View, limit int) []int {
	var choices strings.Builder
	for i, c := range v.Scenario.Choices {
		fmt.Fprintf(&choices, "%d. %s\n", i+1, c.Text)
	}
	prompt := fmt.Sprintf(`You are playing a Nigerian personal finance game as a %s in %s.
Week %d of %d. Cash %s, savings %s, debt %s, happiness %d/100.

Scenario: %s
%s

Choices:
%s
Pick between 1 and %d choices that keep you solvent for the whole year.
Return ONLY the choice numbers separated by spaces.`,
		v.State.Profile.Job, v.State.Profile.City,
		v.State.CurrentTurn, v.MaxTurns,
		models.Naira(v.State.Cash), models.Naira(v.State.Savings), models.Naira(v.State.Debt), v.State.Happiness,
		v.Scenario.Title, v.Scenario.Description,
		choices.String(), limit,
	)

	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return p.fallback.choose(ctx, v, limit)
	}
	text := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	seen := map[int]bool{}
	var picks []int
	for _, f := range strings.FieldsFunc(text, func(r rune) bool { return r < '0' || r > '9' }) {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > len(v.Scenario.Choices) || seen[n] {
			continue
		}
		seen[n] = true
		picks = append(picks, n-1)
		if len(picks) == limit {
			break
		}
	}
	if len(picks) == 0 {
		return p.fallback.choose(ctx, v, limit)
	}
	return picks
}
