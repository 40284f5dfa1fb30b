package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dyluth/kiln/internal/history"
	"github.com/dyluth/kiln/internal/instance"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "kiln.yml"

// DefaultGoal is the fixed objective the goal stage sets at cycle start.
const DefaultGoal = "Minimize plastic waste, ensure yield ≥ 0.9, and optimize electricity costs."

// Provider defaults applied when generator.model or generator.base_url are empty.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o"
	DefaultGeminiModel   = "gemini-2.5-flash"
)

// Provider names accepted in generator.provider
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ProductionData is the current production line snapshot embedded in strategy
// requests. Field order matches the order in which it is rendered.
type ProductionData struct {
	Time             string `yaml:"time" json:"time"`
	Temperature      string `yaml:"temperature" json:"temperature"`
	Pressure         string `yaml:"pressure" json:"pressure"`
	ElectricityPrice string `yaml:"electricity_price" json:"electricity_price"`
	PlasticWaste     string `yaml:"plastic_waste" json:"plastic_waste"`
	Yield            string `yaml:"yield" json:"yield"`
}

// DefaultProductionData returns the snapshot used when the config has no production section.
func DefaultProductionData() ProductionData {
	return ProductionData{
		Time:             "day",
		Temperature:      "200 °C",
		Pressure:         "80 bar",
		ElectricityPrice: "0.25 USD/kWh",
		PlasticWaste:     "17 %",
		Yield:            "0.78 (ratio)",
	}
}

// KilnConfig represents the top-level kiln.yml configuration
type KilnConfig struct {
	Version    string           `yaml:"version"`
	Goal       string           `yaml:"goal,omitempty"`
	Production *ProductionData  `yaml:"production,omitempty"`
	History    HistoryConfig    `yaml:"history"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Mirror     *MirrorConfig    `yaml:"mirror,omitempty"`
	Telemetry  *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// HistoryConfig locates the historical production records
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"` // Default: historical_data.json
}

// GeneratorConfig selects and tunes the text-generation service
type GeneratorConfig struct {
	Provider        string         `yaml:"provider,omitempty"` // "openai" (default) or "gemini"
	Model           string         `yaml:"model,omitempty"`
	BaseURL         string         `yaml:"base_url,omitempty"` // OpenAI-compatible endpoints only
	APIKey          string         `yaml:"-"`                  // Environment only, never read from file
	Timeout         *time.Duration `yaml:"timeout,omitempty"`  // 0 = no timeout
	MaxAttempts     *int           `yaml:"max_attempts,omitempty"`
	InitialInterval *time.Duration `yaml:"initial_interval,omitempty"` // First retry delay
	WordLimit       *int           `yaml:"word_limit,omitempty"`
}

// PipelineConfig tunes the cycle's stages
type PipelineConfig struct {
	GoalDelay      *time.Duration `yaml:"goal_delay,omitempty"`     // Default: 1s
	StrategyDelay  *time.Duration `yaml:"strategy_delay,omitempty"` // Default: 5s
	YieldThreshold *float64       `yaml:"yield_threshold,omitempty"`
	Debug          bool           `yaml:"debug,omitempty"` // Dump shared context before termination
}

// StrategyConfig controls how generated strategies are accepted
type StrategyConfig struct {
	RequireValid bool `yaml:"require_valid,omitempty"` // Drop strategies whose JSON fails to parse
}

// MirrorConfig points at the Redis blackboard that mirrors cycle artefacts
type MirrorConfig struct {
	RedisURL string `yaml:"redis_url"`
	Instance string `yaml:"instance,omitempty"` // Default: "default"
}

// TelemetryConfig configures OTLP trace export
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name,omitempty"`
}

// Default returns a fully defaulted configuration, equivalent to running with no kiln.yml.
func Default() *KilnConfig {
	cfg := &KilnConfig{Version: "1.0"}
	// Defaults cannot fail validation
	_ = cfg.Validate()
	return cfg
}

// Validate performs strict validation on the configuration and applies defaults
func (c *KilnConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Goal == "" {
		c.Goal = DefaultGoal
	}

	if c.Production == nil {
		data := DefaultProductionData()
		c.Production = &data
	}

	if c.History.Path == "" {
		c.History.Path = history.DefaultPath
	}

	if err := c.Generator.validate(); err != nil {
		return err
	}

	if err := c.Pipeline.validate(); err != nil {
		return err
	}

	if c.Mirror != nil {
		if c.Mirror.RedisURL == "" {
			return fmt.Errorf("mirror.redis_url is required when mirror section is present")
		}
		if c.Mirror.Instance == "" {
			c.Mirror.Instance = instance.DefaultName
		}
		if err := instance.ValidateName(c.Mirror.Instance); err != nil {
			return fmt.Errorf("mirror.instance: %w", err)
		}
	}

	if c.Telemetry != nil {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint is required when telemetry section is present")
		}
		if c.Telemetry.ServiceName == "" {
			c.Telemetry.ServiceName = "kiln"
		}
	}

	return nil
}

func (g *GeneratorConfig) validate() error {
	switch g.Provider {
	case "":
		g.Provider = ProviderOpenAI
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("invalid generator.provider: %s (must be '%s' or '%s')", g.Provider, ProviderOpenAI, ProviderGemini)
	}

	if g.Model == "" {
		if g.Provider == ProviderGemini {
			g.Model = DefaultGeminiModel
		} else {
			g.Model = DefaultOpenAIModel
		}
	}

	if g.Provider == ProviderOpenAI && g.BaseURL == "" {
		g.BaseURL = DefaultOpenAIBaseURL
	}

	if g.Timeout == nil {
		g.Timeout = durationPtr(0)
	} else if *g.Timeout < 0 {
		return fmt.Errorf("generator.timeout must be >= 0, got %s", *g.Timeout)
	}

	if g.MaxAttempts == nil {
		g.MaxAttempts = intPtr(1)
	} else if *g.MaxAttempts < 1 {
		return fmt.Errorf("generator.max_attempts must be >= 1, got %d", *g.MaxAttempts)
	}

	if g.InitialInterval == nil {
		g.InitialInterval = durationPtr(500 * time.Millisecond)
	} else if *g.InitialInterval < 0 {
		return fmt.Errorf("generator.initial_interval must be >= 0, got %s", *g.InitialInterval)
	}

	if g.WordLimit == nil {
		g.WordLimit = intPtr(100)
	} else if *g.WordLimit < 1 {
		return fmt.Errorf("generator.word_limit must be >= 1, got %d", *g.WordLimit)
	}

	return nil
}

func (p *PipelineConfig) validate() error {
	if p.GoalDelay == nil {
		p.GoalDelay = durationPtr(time.Second)
	} else if *p.GoalDelay < 0 {
		return fmt.Errorf("pipeline.goal_delay must be >= 0, got %s", *p.GoalDelay)
	}

	if p.StrategyDelay == nil {
		p.StrategyDelay = durationPtr(5 * time.Second)
	} else if *p.StrategyDelay < 0 {
		return fmt.Errorf("pipeline.strategy_delay must be >= 0, got %s", *p.StrategyDelay)
	}

	if p.YieldThreshold == nil {
		threshold := 0.9
		p.YieldThreshold = &threshold
	} else if *p.YieldThreshold <= 0 || *p.YieldThreshold > 1 {
		return fmt.Errorf("pipeline.yield_threshold must be in (0, 1], got %g", *p.YieldThreshold)
	}

	return nil
}

// Load reads and validates kiln.yml from the specified path
func Load(path string) (*KilnConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config KilnConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads the config at path. A missing file is only an error when
// the path was given explicitly; otherwise the built-in defaults are returned.
func LoadOrDefault(path string, explicit bool) (*KilnConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto the configuration.
// Recognised: OPENAI_API_KEY, GEMINI_API_KEY, KILN_DEBUG, REDIS_URL,
// KILN_INSTANCE, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SERVICE_NAME.
func (c *KilnConfig) ApplyEnv(getenv func(string) string) error {
	switch c.Generator.Provider {
	case ProviderGemini:
		c.Generator.APIKey = getenv("GEMINI_API_KEY")
	default:
		c.Generator.APIKey = getenv("OPENAI_API_KEY")
	}

	if v := getenv("KILN_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid KILN_DEBUG value %q: %w", v, err)
		}
		c.Pipeline.Debug = debug
	}

	if v := getenv("REDIS_URL"); v != "" {
		if c.Mirror == nil {
			c.Mirror = &MirrorConfig{Instance: instance.DefaultName}
		}
		c.Mirror.RedisURL = v
	}
	if v := getenv("KILN_INSTANCE"); v != "" && c.Mirror != nil {
		if err := instance.ValidateName(v); err != nil {
			return fmt.Errorf("KILN_INSTANCE: %w", err)
		}
		c.Mirror.Instance = v
	}

	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		if c.Telemetry == nil {
			c.Telemetry = &TelemetryConfig{ServiceName: "kiln"}
		}
		c.Telemetry.Endpoint = v
	}
	if v := getenv("OTEL_SERVICE_NAME"); v != "" && c.Telemetry != nil {
		c.Telemetry.ServiceName = v
	}

	return nil
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}

func intPtr(i int) *int {
	return &i
}
