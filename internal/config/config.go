package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrConfiguration marks configuration that prevents startup.
var ErrConfiguration = errors.New("configuration error")

// SupportedVoices lists the prebuilt voices the live service accepts.
var SupportedVoices = []string{"Charon", "Aoede", "Puck", "Kore", "Fenrir"}

// Config holds all configuration for the voice console
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Gemini configuration
	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY" required:"true"`
	LiveModel      string `envconfig:"LIVE_MODEL" default:"gemini-2.5-flash-native-audio-preview-09-2025"`
	ReportModel    string `envconfig:"REPORT_MODEL" default:"gemini-2.5-flash"`
	Voice          string `envconfig:"VOICE" default:"Charon"`
	ThinkingBudget int    `envconfig:"THINKING_BUDGET" default:"-1"` // -1 leaves the service default

	// Audio configuration
	CaptureSampleRate int    `envconfig:"CAPTURE_SAMPLE_RATE" default:"48000"` // native microphone rate
	CaptureFrameSize  int    `envconfig:"CAPTURE_FRAME_SIZE" default:"4096"`   // samples per capture frame
	CaptureFormat     string `envconfig:"CAPTURE_FORMAT" default:""`           // ffmpeg input format, empty picks per OS
	CaptureDevice     string `envconfig:"CAPTURE_DEVICE" default:""`           // ffmpeg input device, empty picks per OS
	PlaybackChunkMs   int    `envconfig:"PLAYBACK_CHUNK_MS" default:"20"`      // render period of the player
	VoiceSwitchDelay  int    `envconfig:"VOICE_SWITCH_DELAY_MS" default:"500"` // pause between disconnect and reconnect

	// Screen sharing configuration
	ScreenInterval int    `envconfig:"SCREEN_INTERVAL_MS" default:"1000"`
	ScreenWidth    int    `envconfig:"SCREEN_WIDTH" default:"800"`
	ScreenQuality  int    `envconfig:"SCREEN_JPEG_QUALITY" default:"70"`
	ScreenFormat   string `envconfig:"SCREEN_FORMAT" default:""`
	ScreenDevice   string `envconfig:"SCREEN_DEVICE" default:""`

	// Presentation bridge
	ActivityFPS int `envconfig:"ACTIVITY_FPS" default:"30"`

	// Conversation storage
	StoreBackend  string `envconfig:"STORE_BACKEND" default:"file"` // file or mongo
	StorePath     string `envconfig:"STORE_PATH" default:"sessions.json"`
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"voice_console"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is required", ErrConfiguration)
	}
	if !IsSupportedVoice(c.Voice) {
		return fmt.Errorf("%w: unsupported voice %q", ErrConfiguration, c.Voice)
	}
	if c.CaptureSampleRate <= 0 {
		return fmt.Errorf("%w: CAPTURE_SAMPLE_RATE must be positive", ErrConfiguration)
	}
	if c.CaptureFrameSize <= 0 {
		return fmt.Errorf("%w: CAPTURE_FRAME_SIZE must be positive", ErrConfiguration)
	}
	if c.ScreenInterval <= 0 || c.ScreenWidth <= 0 {
		return fmt.Errorf("%w: screen interval and width must be positive", ErrConfiguration)
	}
	if c.ScreenQuality < 1 || c.ScreenQuality > 100 {
		return fmt.Errorf("%w: SCREEN_JPEG_QUALITY must be within 1-100", ErrConfiguration)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("%w: RETRY_MAX_ATTEMPTS must be at least 1", ErrConfiguration)
	}
	switch c.StoreBackend {
	case "file", "mongo":
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrConfiguration, c.StoreBackend)
	}
	return nil
}

// IsSupportedVoice reports whether name is one of SupportedVoices.
func IsSupportedVoice(name string) bool {
	for _, v := range SupportedVoices {
		if v == name {
			return true
		}
	}
	return false
}

// VoiceSwitchPause is the delay between tearing down and reopening a session
// when the voice changes.
func (c *Config) VoiceSwitchPause() time.Duration {
	return time.Duration(c.VoiceSwitchDelay) * time.Millisecond
}

// ScreenPeriod is the screen sampling interval.
func (c *Config) ScreenPeriod() time.Duration {
	return time.Duration(c.ScreenInterval) * time.Millisecond
}

// PlaybackChunk is the render period of the audio player.
func (c *Config) PlaybackChunk() time.Duration {
	return time.Duration(c.PlaybackChunkMs) * time.Millisecond
}
