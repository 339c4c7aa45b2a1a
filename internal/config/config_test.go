package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TTS_ENGINE", "")
	t.Setenv("SCENETALK_SETTINGS", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, EngineAuto, cfg.TTSEngine)
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	t.Setenv("TTS_ENGINE", "espeak")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAzureEngineRequiresCredentials(t *testing.T) {
	t.Setenv("TTS_ENGINE", EngineAzure)
	t.Setenv("AZURE_SPEECH_KEY", "")
	t.Setenv("AZURE_SPEECH_REGION", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("AZURE_SPEECH_KEY", "key")
	t.Setenv("AZURE_SPEECH_REGION", "japaneast")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, EngineAzure, cfg.TTSEngine)
}

func TestLoadSettingsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	contents := `
[audio]
attenuation_db = -15.0
sample_rate = 22050
pacing_ms = 500

[[voices]]
id = "en-US-AriaNeural"
gender = "female"

[[voices]]
id = "en-US-DavisNeural"
gender = "male"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	t.Setenv("TTS_ENGINE", "")
	t.Setenv("SCENETALK_SETTINGS", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.InDelta(t, -15.0, cfg.Settings.Audio.AttenuationDB, 0.001)
	require.Equal(t, 22050, cfg.Settings.Audio.SampleRate)
	require.Equal(t, 500*time.Millisecond, cfg.Settings.PacingDelay())
	require.Len(t, cfg.Settings.Voices, 2)
	require.Equal(t, "en-US-DavisNeural", cfg.Settings.Voices[1].ID)
}

func TestLoadSettingsFileMissing(t *testing.T) {
	t.Setenv("SCENETALK_SETTINGS", filepath.Join(t.TempDir(), "absent.toml"))
	_, err := Load()
	require.Error(t, err)
}
