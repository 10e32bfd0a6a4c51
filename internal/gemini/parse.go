package gemini

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/generative-ai-go/genai"
	"github.com/tatianab/hustle/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	minChoices  = 2
	maxChoices  = 6
	maxInsights = 5
)

var impactSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"cash":      {Type: genai.TypeInteger},
		"savings":   {Type: genai.TypeInteger},
		"debt":      {Type: genai.TypeInteger},
		"happiness": {Type: genai.TypeInteger},
	},
	Required: []string{"cash", "savings", "debt", "happiness"},
}

var scenarioSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       {Type: genai.TypeString},
		"description": {Type: genai.TypeString},
		"lesson":      {Type: genai.TypeString},
		"choices": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"text":          {Type: genai.TypeString},
					"consequence":   {Type: genai.TypeString},
					"category":      {Type: genai.TypeString},
					"investment_id": {Type: genai.TypeString},
					"impact":        impactSchema,
				},
				Required: []string{"text", "consequence", "impact"},
			},
		},
		"news": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"headline": {Type: genai.TypeString},
				"impact":   {Type: genai.TypeString, Enum: []string{"positive", "negative", "neutral"}},
				"asset_id": {Type: genai.TypeString},
			},
			Required: []string{"headline", "impact"},
		},
		"trends": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"handle":    {Type: genai.TypeString},
					"content":   {Type: genai.TypeString},
					"sentiment": {Type: genai.TypeString, Enum: []string{"bullish", "bearish", "funny", "advice"}},
				},
				Required: []string{"handle", "content"},
			},
		},
	},
	Required: []string{"title", "description", "lesson", "choices"},
}

var reportSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"grade":    {Type: genai.TypeString},
		"verdict":  {Type: genai.TypeString},
		"insights": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"grade", "verdict", "insights"},
}

// cleanFence strips a markdown code fence the model sometimes wraps its
// output in, even in JSON mode.
func cleanFence(text string) string {
	s := strings.TrimSpace(text)
	for _, prefix := range []string{"```json", "```yaml", "```"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseScenario decodes and checks a narrator response. JSON is valid YAML,
// so one decoder serves both output styles.
func parseScenario(text string) (models.Scenario, error) {
	clean := cleanFence(text)
	var sc models.Scenario
	if err := yaml.Unmarshal([]byte(clean), &sc); err != nil {
		return models.Scenario{}, fmt.Errorf("%w: parse scenario: %v", ErrContentGeneration, err)
	}
	sc.Title = strings.TrimSpace(sc.Title)
	if sc.Title == "" {
		return models.Scenario{}, fmt.Errorf("%w: scenario has no title", ErrContentGeneration)
	}
	if n := len(sc.Choices); n < minChoices || n > maxChoices {
		return models.Scenario{}, fmt.Errorf("%w: scenario has %d choices, want %d to %d", ErrContentGeneration, n, minChoices, maxChoices)
	}
	for i, c := range sc.Choices {
		if strings.TrimSpace(c.Text) == "" {
			return models.Scenario{}, fmt.Errorf("%w: choice %d has no text", ErrContentGeneration, i)
		}
	}
	if sc.News != nil && strings.TrimSpace(sc.News.Headline) == "" {
		sc.News = nil
	}
	return sc, nil
}

func parseReport(text string) (models.Report, error) {
	clean := cleanFence(text)
	var rep models.Report
	if err := yaml.Unmarshal([]byte(clean), &rep); err != nil {
		return models.Report{}, fmt.Errorf("%w: parse report: %v", ErrAnalysis, err)
	}
	rep.Grade = strings.ToUpper(strings.TrimSpace(rep.Grade))
	if len(rep.Grade) != 1 || !unicode.IsLetter(rune(rep.Grade[0])) {
		return models.Report{}, fmt.Errorf("%w: grade %q is not a single letter", ErrAnalysis, rep.Grade)
	}
	if strings.TrimSpace(rep.Verdict) == "" {
		return models.Report{}, fmt.Errorf("%w: empty verdict", ErrAnalysis)
	}
	insights := rep.Insights[:0]
	for _, in := range rep.Insights {
		if in = strings.TrimSpace(in); in != "" {
			insights = append(insights, in)
		}
	}
	if len(insights) > maxInsights {
		insights = insights[:maxInsights]
	}
	rep.Insights = insights
	return rep, nil
}
