package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tatianab/hustle/internal/models"
	"gopkg.in/yaml.v3"
)

// Store backends selectable with HUSTLE_STORE.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey   string
	ScenarioModel  string
	ReportModel    string
	Store          string
	SaveDir        string
	RedisURL       string
	DatabaseURL    string
	Addr           string
	CORSOrigins    []string
	Seed           int64
	PrefetchWait   time.Duration
	AnalystTimeout time.Duration
	AutoTriggers   bool
	RulesFile      string
	Rules          models.Rules
}

// Load reads the configuration from environment variables and, when
// HUSTLE_RULES_FILE is set, overlays the rules it names on the defaults.
func Load() (*Config, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("HUSTLE_ADDR", ":8080")
	}

	cfg := &Config{
		GeminiAPIKey:   strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		ScenarioModel:  envDefault("HUSTLE_SCENARIO_MODEL", "gemini-2.5-flash"),
		ReportModel:    envDefault("HUSTLE_REPORT_MODEL", "gemini-2.5-pro"),
		Store:          strings.ToLower(envDefault("HUSTLE_STORE", StoreFile)),
		SaveDir:        envDefault("HUSTLE_SAVE_DIR", ".saves"),
		RedisURL:       strings.TrimSpace(os.Getenv("REDIS_URL")),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Addr:           addr,
		CORSOrigins:    envListDefault("HUSTLE_CORS_ORIGINS", []string{"*"}),
		Seed:           envInt64Default("HUSTLE_SEED", 0),
		PrefetchWait:   envDurationDefault("HUSTLE_PREFETCH_WAIT", 2*time.Second),
		AnalystTimeout: envDurationDefault("HUSTLE_ANALYST_TIMEOUT", 20*time.Second),
		AutoTriggers:   envBoolDefault("HUSTLE_AUTO_TRIGGERS", true),
		RulesFile:      strings.TrimSpace(os.Getenv("HUSTLE_RULES_FILE")),
		Rules:          models.DefaultRules(),
	}

	switch cfg.Store {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis store")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return nil, fmt.Errorf("unknown HUSTLE_STORE %q", cfg.Store)
	}

	if cfg.RulesFile != "" {
		rules, err := LoadRules(cfg.RulesFile, cfg.Rules)
		if err != nil {
			return nil, err
		}
		cfg.Rules = rules
	}
	return cfg, nil
}

// RequireAPIKey fails when no Gemini key is configured. Only commands that
// talk to the narrator call it.
func (c *Config) RequireAPIKey() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}
	return nil
}

// LoadRules reads a YAML rules file and merges it over base. Fields left out
// of the file keep their base value.
func LoadRules(path string, base models.Rules) (models.Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	// Keys absent from the file keep their base value; present keys win,
	// zero included.
	rules := base
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return models.Rules{}, fmt.Errorf("parse rules yaml: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return models.Rules{}, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envListDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
