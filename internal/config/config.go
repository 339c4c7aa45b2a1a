package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Engine selection values for TTSEngine.
const (
	EngineAuto   = "auto"
	EngineAzure  = "azure"
	EnginePublic = "public"
)

// Config holds runtime configuration.
type Config struct {
	Port        string
	LLMAPIKey   string
	LLMModel    string
	TTSEngine   string
	AzureKey    string
	AzureRegion string
	Settings    Settings
}

// Settings is the optional TOML settings file: voice pool, background
// attenuation, and pacing overrides.
type Settings struct {
	Audio  AudioSettings   `toml:"audio"`
	Voices []VoiceSettings `toml:"voices"`
}

// AudioSettings tune the assembly pipeline.
type AudioSettings struct {
	AttenuationDB float64 `toml:"attenuation_db"`
	SampleRate    int     `toml:"sample_rate"`
	PacingMS      int     `toml:"pacing_ms"`
}

// VoiceSettings describe one pool entry.
type VoiceSettings struct {
	ID     string `toml:"id"`
	Gender string `toml:"gender"`
}

// PacingDelay returns the configured inter-request pacing, or zero when
// unset (engines fall back to their own default).
func (s Settings) PacingDelay() time.Duration {
	return time.Duration(s.Audio.PacingMS) * time.Millisecond
}

// Load parses environment variables (and the optional settings file
// named by SCENETALK_SETTINGS) into Config and validates engine choice.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		LLMAPIKey:   os.Getenv("OPENAI_API_KEY"),
		LLMModel:    os.Getenv("OPENAI_MODEL"),
		TTSEngine:   getEnv("TTS_ENGINE", EngineAuto),
		AzureKey:    os.Getenv("AZURE_SPEECH_KEY"),
		AzureRegion: os.Getenv("AZURE_SPEECH_REGION"),
	}

	switch cfg.TTSEngine {
	case EngineAuto, EngineAzure, EnginePublic:
	default:
		return Config{}, fmt.Errorf("TTS_ENGINE must be one of %q, %q, %q", EngineAuto, EngineAzure, EnginePublic)
	}

	if cfg.TTSEngine == EngineAzure && (cfg.AzureKey == "" || cfg.AzureRegion == "") {
		return Config{}, errors.New("TTS_ENGINE=azure requires AZURE_SPEECH_KEY and AZURE_SPEECH_REGION")
	}

	if path := os.Getenv("SCENETALK_SETTINGS"); path != "" {
		settings, err := loadSettings(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Settings = settings
	}

	return cfg, nil
}

func loadSettings(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	var settings Settings
	if err := toml.Unmarshal(raw, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings file: %w", err)
	}
	return settings, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
