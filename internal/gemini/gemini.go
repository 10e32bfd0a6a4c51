// Package gemini implements the narrator and the analyst on top of the
// Gemini API.
package gemini

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/google/generative-ai-go/genai"
	"github.com/tatianab/hustle/internal/models"
	"google.golang.org/api/option"
)

//go:embed prompts/scenario.txt
var scenarioPrompt string

//go:embed prompts/report.txt
var reportPrompt string

const systemInstruction = "You are NairaWise, a witty Nigerian financial sim engine. You teach financial literacy through survival. Use authentic Pidgin."

var (
	// ErrContentGeneration wraps every failure to produce a usable scenario.
	ErrContentGeneration = errors.New("scenario generation failed")
	// ErrAnalysis wraps every failure to produce a usable report.
	ErrAnalysis = errors.New("analysis failed")
)

// generator is the slice of *genai.GenerativeModel the client depends on.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	client   *genai.Client
	scenario generator
	report   generator
	logger   *slog.Logger
}

// NewClient connects to Gemini. scenarioModel writes turns, reportModel
// writes the end-of-run analysis.
func NewClient(ctx context.Context, apiKey, scenarioModel, reportModel string, logger *slog.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	sm := client.GenerativeModel(scenarioModel)
	sm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
	sm.ResponseMIMEType = "application/json"
	sm.ResponseSchema = scenarioSchema
	sm.SetTemperature(0.9)

	rm := client.GenerativeModel(reportModel)
	rm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
	rm.ResponseMIMEType = "application/json"
	rm.ResponseSchema = reportSchema

	return &Client{client: client, scenario: sm, report: rm, logger: logger}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// RequestScenario asks the narrator for the next turn's scenario.
func (c *Client) RequestScenario(ctx context.Context, req models.ScenarioRequest) (models.Scenario, error) {
	prompt, err := render("scenario", scenarioPrompt, scenarioData(req))
	if err != nil {
		return models.Scenario{}, fmt.Errorf("%w: %v", ErrContentGeneration, err)
	}
	text, err := generate(ctx, c.scenario, prompt)
	if err != nil {
		return models.Scenario{}, fmt.Errorf("%w: %v", ErrContentGeneration, err)
	}
	sc, err := parseScenario(text)
	if err != nil {
		c.logger.Warn("narrator returned unusable scenario", "turn", req.State.CurrentTurn, "error", err)
		return models.Scenario{}, err
	}
	return sc, nil
}

// RequestReport asks the analyst to grade a finished run.
func (c *Client) RequestReport(ctx context.Context, req models.ReportRequest) (models.Report, error) {
	prompt, err := render("report", reportPrompt, reportData(req))
	if err != nil {
		return models.Report{}, fmt.Errorf("%w: %v", ErrAnalysis, err)
	}
	text, err := generate(ctx, c.report, prompt)
	if err != nil {
		return models.Report{}, fmt.Errorf("%w: %v", ErrAnalysis, err)
	}
	return parseReport(text)
}

func render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func generate(ctx context.Context, model generator, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content returned from Gemini")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response type from Gemini")
	}
	return sb.String(), nil
}

type promptScenario struct {
	Profile     models.Profile
	Trader      bool
	Cash        string
	Savings     string
	Debt        string
	Happiness   int
	Turn        int
	MaxTurns    int
	Season      string
	Surge       bool
	Recent      []promptEntry
	AvoidTitles []string
	Assets      []models.Asset
}

type promptEntry struct {
	Turn         int
	Title        string
	Decision     string
	NetCash      string
	BalanceAfter string
}

func toPromptEntries(entries []models.LedgerEntry) []promptEntry {
	out := make([]promptEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, promptEntry{
			Turn:         e.Turn,
			Title:        e.Title,
			Decision:     e.Decision,
			NetCash:      models.Naira(e.NetCash),
			BalanceAfter: models.Naira(e.BalanceAfter),
		})
	}
	return out
}

func scenarioData(req models.ScenarioRequest) promptScenario {
	st := req.State
	return promptScenario{
		Profile:     st.Profile,
		Trader:      st.Income == models.IncomeTrade,
		Cash:        models.Naira(st.Cash),
		Savings:     models.Naira(st.Savings),
		Debt:        models.Naira(st.Debt),
		Happiness:   st.Happiness,
		Turn:        st.CurrentTurn,
		MaxTurns:    req.MaxTurns,
		Season:      models.Season(st.CurrentTurn, req.MaxTurns),
		Surge:       models.SurgeTurn(st.CurrentTurn),
		Recent:      toPromptEntries(req.Recent),
		AvoidTitles: req.AvoidTitles,
		Assets:      req.Assets,
	}
}

type promptReport struct {
	Profile   models.Profile
	Bankrupt  bool
	Turn      int
	MaxTurns  int
	NetWorth  string
	Cash      string
	Savings   string
	Debt      string
	Happiness int
	History   []promptEntry
}

func reportData(req models.ReportRequest) promptReport {
	st := req.Final
	return promptReport{
		Profile:   st.Profile,
		Bankrupt:  req.Reason == models.EndBankrupt,
		Turn:      st.CurrentTurn,
		MaxTurns:  req.MaxTurns,
		NetWorth:  models.Naira(req.NetWorth),
		Cash:      models.Naira(st.Cash),
		Savings:   models.Naira(st.Savings),
		Debt:      models.Naira(st.Debt),
		Happiness: st.Happiness,
		History:   toPromptEntries(req.History),
	}
}
