package config

import (
	"os"
	"testing"
)

func TestLoadConfig_Valid(t *testing.T) {
	ResetConfigForTest()
	tmp := "test_config.json"
	raw := []byte(`{
		"server": {
			"host": "localhost",
			"port": 8080,
			"jwtSecret": "mysecret"
		},
		"database": {
			"driver": "sqlite",
			"dsn": "tutor.db"
		},
		"redis": {
			"addr": "localhost:6379",
			"password": "",
			"db": 0
		},
		"llm": {
			"name": "llama.cpp",
			"url": "http://localhost:8000",
			"context_size": 8192
		},
		"tutor": {
			"mastery_threshold": 0.8
		}
	}`)
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		t.Fatalf("write tmp config: %v", err)
	}
	defer os.Remove(tmp)

	cfg, err := LoadConfig(tmp)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.LLM.URL != "http://localhost:8000" {
		t.Errorf("llm config not loaded")
	}
	// explicit override preserved
	if cfg.Tutor.MasteryThreshold != 0.8 {
		t.Errorf("expected overridden mastery_threshold 0.8, got %v", cfg.Tutor.MasteryThreshold)
	}
	// defaults filled in for everything else
	if cfg.Tutor.InitialSkillRating != 800.0 {
		t.Errorf("expected default initial_skill_rating 800.0, got %v", cfg.Tutor.InitialSkillRating)
	}
	if cfg.Tutor.MaxGenerationAttempts != 3 {
		t.Errorf("expected default max_generation_attempts 3, got %v", cfg.Tutor.MaxGenerationAttempts)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	ResetConfigForTest()
	_, err := LoadConfig("no_such_config.json")
	if err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	ResetConfigForTest()
	tmp := "test_invalid_config.json"
	raw := []byte(`{this is not json}`)
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		t.Fatalf("write tmp config: %v", err)
	}
	defer os.Remove(tmp)

	_, err := LoadConfig(tmp)
	if err == nil {
		t.Errorf("expected error for malformed JSON")
	}
}

func TestLoadConfig_MissingJWTSecret(t *testing.T) {
	ResetConfigForTest()
	tmp := "test_nosecret_config.json"
	raw := []byte(`{"server": {"host": "localhost", "port": 8080}}`)
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		t.Fatalf("write tmp config: %v", err)
	}
	defer os.Remove(tmp)

	_, err := LoadConfig(tmp)
	if err == nil {
		t.Errorf("expected error for missing jwtSecret")
	}
}

func TestDefaultTutorConfig(t *testing.T) {
	d := DefaultTutorConfig()
	if d.InitialSkillRating != 800.0 || d.InitialUncertainty != 350.0 {
		t.Errorf("unexpected defaults: %+v", d)
	}
	if d.CalibrationGain != 500.0 {
		t.Errorf("expected calibration_gain default 500.0, got %v", d.CalibrationGain)
	}
}
