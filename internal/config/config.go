package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// LLMConfig describes the single locally hosted LLM endpoint this core talks to.
type LLMConfig struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContextSize int    `json:"context_size"`
}

// TutorConfig holds every recognized option from the configuration table:
// the knobs that govern skill estimation, policy selection, and generation
// retries. All fields have defaults applied by applyTutorDefaults so a
// caller may omit any subset from config.json.
type TutorConfig struct {
	InitialSkillRating    float64 `json:"initial_skill_rating"`
	InitialUncertainty    float64 `json:"initial_uncertainty"`
	BaseKFactor           float64 `json:"base_k_factor"`
	UncertaintyDecay      float64 `json:"uncertainty_decay"`
	UncertaintyFloor      float64 `json:"uncertainty_floor"`
	MasteryThreshold      float64 `json:"mastery_threshold"`
	TargetSuccessRate     float64 `json:"target_success_rate"`
	RecentWindow          int     `json:"recent_window"`
	EloScaleFactor        float64 `json:"elo_scale_factor"`
	MaxGenerationAttempts int     `json:"max_generation_attempts"`
	CalibrationGain       float64 `json:"calibration_gain"`
}

type Config struct {
	Server struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		JWTSecret string `json:"jwtSecret"`
	} `json:"server"`
	Database struct {
		Driver string `json:"driver"` // "sqlite" or "postgres"
		DSN    string `json:"dsn"`
	} `json:"database"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	LLM   LLMConfig   `json:"llm"`
	Tutor TutorConfig `json:"tutor"`
}

var (
	once   sync.Once
	cfg    *Config
	cfgErr error
)

// LoadConfig reads config.json from disk (singleton).
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		raw, err := os.ReadFile(path)
		if err != nil {
			cfgErr = fmt.Errorf("failed to read config file: %w", err)
			return
		}
		var c Config
		if err := json.Unmarshal(raw, &c); err != nil {
			cfgErr = fmt.Errorf("invalid config format: %w", err)
			return
		}
		if c.Server.JWTSecret == "" {
			cfgErr = errors.New("jwtSecret must be set in config")
			return
		}
		if c.Database.Driver == "" {
			c.Database.Driver = "sqlite"
		}
		applyTutorDefaults(&c.Tutor)
		cfg = &c
	})
	return cfg, cfgErr
}

// applyTutorDefaults fills in the configuration table's defaults (§6) for
// any option left at its zero value.
func applyTutorDefaults(t *TutorConfig) {
	if t.InitialSkillRating == 0 {
		t.InitialSkillRating = 800.0
	}
	if t.InitialUncertainty == 0 {
		t.InitialUncertainty = 350.0
	}
	if t.BaseKFactor == 0 {
		t.BaseKFactor = 64.0
	}
	if t.UncertaintyDecay == 0 {
		t.UncertaintyDecay = 0.90
	}
	if t.UncertaintyFloor == 0 {
		t.UncertaintyFloor = 50.0
	}
	if t.MasteryThreshold == 0 {
		t.MasteryThreshold = 0.75
	}
	if t.TargetSuccessRate == 0 {
		t.TargetSuccessRate = 0.80
	}
	if t.RecentWindow == 0 {
		t.RecentWindow = 30
	}
	if t.EloScaleFactor == 0 {
		t.EloScaleFactor = 400.0
	}
	if t.MaxGenerationAttempts == 0 {
		t.MaxGenerationAttempts = 3
	}
	if t.CalibrationGain == 0 {
		t.CalibrationGain = 500.0
	}
}

// DefaultTutorConfig returns a TutorConfig with every option at its
// documented default, for tests and for callers that never load a file.
func DefaultTutorConfig() TutorConfig {
	var t TutorConfig
	applyTutorDefaults(&t)
	return t
}

// GetConfig returns the loaded config (must call LoadConfig first).
func GetConfig() *Config {
	return cfg
}

// ResetConfigForTest resets the singleton state (for testing only).
func ResetConfigForTest() {
	once = sync.Once{}
	cfg = nil
	cfgErr = nil
}
