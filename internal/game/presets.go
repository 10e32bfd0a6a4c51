package game

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/tatianab/hustle/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

const startingAge = 24

// Job is a selectable career.
type Job struct {
	Name      string `yaml:"name" json:"name"`
	Salary    int64  `yaml:"salary" json:"salary"`
	Trade     bool   `yaml:"trade,omitempty" json:"trade,omitempty"`
	Inventory int64  `yaml:"inventory,omitempty" json:"inventory,omitempty"`
}

// Challenge sets the starting baseline of a run.
type Challenge struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Cash        int64  `yaml:"cash" json:"cash"`
	Debt        int64  `yaml:"debt,omitempty" json:"debt,omitempty"`
	Description string `yaml:"description" json:"description"`
}

type Presets struct {
	Jobs       []Job       `yaml:"jobs" json:"jobs"`
	Challenges []Challenge `yaml:"challenges" json:"challenges"`
}

// DefaultPresets returns the built-in jobs and challenges.
func DefaultPresets() (Presets, error) {
	var p Presets
	if err := yaml.Unmarshal(presetsYAML, &p); err != nil {
		return Presets{}, fmt.Errorf("parse presets: %w", err)
	}
	return p, nil
}

func (p Presets) Job(name string) (Job, bool) {
	for _, j := range p.Jobs {
		if strings.EqualFold(j.Name, name) {
			return j, true
		}
	}
	return Job{}, false
}

// Challenge looks a challenge up by id or display name.
func (p Presets) Challenge(key string) (Challenge, bool) {
	for _, c := range p.Challenges {
		if strings.EqualFold(c.ID, key) || strings.EqualFold(c.Name, key) {
			return c, true
		}
	}
	return Challenge{}, false
}

// Setup is what the player chooses before the first turn.
type Setup struct {
	Name          string `json:"name"`
	Gender        string `json:"gender"`
	Job           string `json:"job"`
	Salary        int64  `json:"salary,omitempty"` // 0 keeps the job default
	City          string `json:"city"`
	Challenge     string `json:"challenge"`
	MaritalStatus string `json:"marital_status"`
	Dependents    int    `json:"dependents"`
}

// InitialState builds the turn-one player state for s.
func (p Presets) InitialState(s Setup, rules models.Rules) (models.PlayerState, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return models.PlayerState{}, fmt.Errorf("%w: name is required", ErrSetup)
	}
	job, ok := p.Job(s.Job)
	if !ok {
		return models.PlayerState{}, fmt.Errorf("%w: unknown job %q", ErrSetup, s.Job)
	}
	ch, ok := p.Challenge(s.Challenge)
	if !ok {
		return models.PlayerState{}, fmt.Errorf("%w: unknown challenge %q", ErrSetup, s.Challenge)
	}
	if s.Salary < 0 || s.Dependents < 0 {
		return models.PlayerState{}, fmt.Errorf("%w: salary and dependents must not be negative", ErrSetup)
	}

	marital := strings.ToLower(strings.TrimSpace(s.MaritalStatus))
	if marital != "married" {
		marital = "single"
	}
	dependents := s.Dependents
	if marital == "single" {
		dependents = 0
	}

	st := models.PlayerState{
		Profile: models.Profile{
			Name:          name,
			Gender:        s.Gender,
			Age:           startingAge,
			Job:           job.Name,
			City:          s.City,
			Challenge:     ch.Name,
			MaritalStatus: marital,
			Dependents:    dependents,
		},
		Cash:        ch.Cash,
		Debt:        ch.Debt,
		Happiness:   rules.StartingHappiness,
		CurrentTurn: 1,
	}
	if job.Trade {
		st.Income = models.IncomeTrade
		st.Inventory = job.Inventory
	} else {
		st.Income = models.IncomeSalary
		st.Salary = job.Salary
		if s.Salary > 0 {
			st.Salary = s.Salary
		}
	}
	return st, nil
}
