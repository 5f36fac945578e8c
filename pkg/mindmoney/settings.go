package mindmoney

import (
	"time"

	"github.com/randalmurphal/mindflow/pkg/flowgraph/config"
	"github.com/randalmurphal/mindflow/pkg/flowgraph/llm"
)

// Settings configures the workflow and the service around it.
type Settings struct {
	// Completion service
	Provider               string
	Model                  string
	GeminiAPIKey           string
	IntakeTemperature      float64
	PlannerTemperature     float64
	SynthesizerTemperature float64

	// Search
	TavilyAPIKey     string
	SearchMaxResults int
	SearchDomains    []string
	SearchTimeout    time.Duration

	// Workflow
	HistoryLimit   int
	MaxConcurrency int
	CheckpointPath string

	// Store
	StoreDriver string
	StoreDSN    string

	// Server
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// EnvBindings maps config keys to the environment variables that override
// them.
var EnvBindings = map[string]string{
	"llm.api_key":    "GEMINI_API_KEY",
	"search.api_key": "TAVILY_API_KEY",
	"store.dsn":      "DATABASE_URL",
	"store.driver":   "MINDFLOW_STORE",
	"server.addr":    "MINDFLOW_ADDR",
	"log.level":      "MINDFLOW_LOG_LEVEL",
}

// DefaultSettings returns the settings used for absent config keys.
func DefaultSettings() Settings {
	return Settings{
		Provider:               "gemini",
		Model:                  llm.DefaultGeminiModel,
		IntakeTemperature:      0.3,
		PlannerTemperature:     0.1,
		SynthesizerTemperature: 0.6,
		SearchMaxResults:       3,
		SearchTimeout:          15 * time.Second,
		HistoryLimit:           10,
		StoreDriver:            "memory",
		Addr:                   ":8000",
		CORSOrigins:            []string{"*"},
		RequestTimeout:         2 * time.Minute,
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// SettingsFrom reads settings from cfg, falling back to DefaultSettings.
func SettingsFrom(cfg config.Config) Settings {
	d := DefaultSettings()
	return Settings{
		Provider:               cfg.String("llm.provider", d.Provider),
		Model:                  cfg.String("llm.model", d.Model),
		GeminiAPIKey:           cfg.String("llm.api_key", d.GeminiAPIKey),
		IntakeTemperature:      cfg.Float("llm.temperature.intake", d.IntakeTemperature),
		PlannerTemperature:     cfg.Float("llm.temperature.planner", d.PlannerTemperature),
		SynthesizerTemperature: cfg.Float("llm.temperature.synthesizer", d.SynthesizerTemperature),

		TavilyAPIKey:     cfg.String("search.api_key", d.TavilyAPIKey),
		SearchMaxResults: cfg.Int("search.max_results", d.SearchMaxResults),
		SearchDomains:    cfg.StringSlice("search.domains", d.SearchDomains),
		SearchTimeout:    cfg.Duration("search.timeout", d.SearchTimeout),

		HistoryLimit:   cfg.Int("workflow.history_limit", d.HistoryLimit),
		MaxConcurrency: cfg.Int("workflow.max_concurrency", d.MaxConcurrency),
		CheckpointPath: cfg.String("workflow.checkpoint_path", d.CheckpointPath),

		StoreDriver: cfg.String("store.driver", d.StoreDriver),
		StoreDSN:    cfg.String("store.dsn", d.StoreDSN),

		Addr:           cfg.String("server.addr", d.Addr),
		CORSOrigins:    cfg.StringSlice("server.cors_origins", d.CORSOrigins),
		RequestTimeout: cfg.Duration("server.request_timeout", d.RequestTimeout),

		LogLevel:  cfg.String("log.level", d.LogLevel),
		LogFormat: cfg.String("log.format", d.LogFormat),
	}
}

// LoadSettings reads the config file at path, if present, applies
// EnvBindings, and converts the result.
func LoadSettings(path string) (Settings, error) {
	cfg, err := config.Load(path, true, EnvBindings)
	if err != nil {
		return Settings{}, err
	}
	return SettingsFrom(cfg), nil
}
