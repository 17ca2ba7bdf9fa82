package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.GeminiAPIKey != "test-gemini-key" {
		t.Errorf("Expected GeminiAPIKey 'test-gemini-key', got '%s'", cfg.GeminiAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("Expected error when GEMINI_API_KEY is missing")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.Voice != "Charon" {
		t.Errorf("Expected default Voice 'Charon', got '%s'", cfg.Voice)
	}
	if cfg.LiveModel != "gemini-2.5-flash-native-audio-preview-09-2025" {
		t.Errorf("Unexpected default LiveModel '%s'", cfg.LiveModel)
	}
	if cfg.ReportModel != "gemini-2.5-flash" {
		t.Errorf("Expected default ReportModel 'gemini-2.5-flash', got '%s'", cfg.ReportModel)
	}
	if cfg.ThinkingBudget != -1 {
		t.Errorf("Expected default ThinkingBudget -1, got %d", cfg.ThinkingBudget)
	}
	if cfg.CaptureFrameSize != 4096 {
		t.Errorf("Expected default CaptureFrameSize 4096, got %d", cfg.CaptureFrameSize)
	}
	if cfg.ScreenWidth != 800 {
		t.Errorf("Expected default ScreenWidth 800, got %d", cfg.ScreenWidth)
	}
	if cfg.StoreBackend != "file" {
		t.Errorf("Expected default StoreBackend 'file', got '%s'", cfg.StoreBackend)
	}
	if cfg.VoiceSwitchPause() != 500*time.Millisecond {
		t.Errorf("Expected voice switch pause 500ms, got %v", cfg.VoiceSwitchPause())
	}
	if cfg.ScreenPeriod() != time.Second {
		t.Errorf("Expected screen period 1s, got %v", cfg.ScreenPeriod())
	}
}

func TestLoad_UnsupportedVoice(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")
	t.Setenv("VOICE", "Robot")

	if _, err := LoadFromEnv(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for unknown voice, got %v", err)
	}
}

func TestValidate_StoreBackend(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")
	t.Setenv("STORE_BACKEND", "redis")

	if _, err := LoadFromEnv(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for unknown store, got %v", err)
	}
}

func TestValidate_RetryAttempts(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")

	_, err := LoadFromEnv()
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for zero retry attempts, got %v", err)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}
	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}
}
