package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scenetalk/internal/assembler"
	"scenetalk/internal/background"
	"scenetalk/internal/config"
	"scenetalk/internal/dialogue"
	"scenetalk/internal/llm"
	"scenetalk/internal/server"
	"scenetalk/internal/tts"
	"scenetalk/internal/ui"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if err := run(logger); err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var scriptClient dialogue.ScriptClient
	if cfg.LLMAPIKey != "" {
		scriptClient = llm.NewOpenAIClient(logger, cfg.LLMAPIKey, cfg.LLMModel, nil)
	} else {
		logger.Warn("OPENAI_API_KEY not set, using built-in stub script client")
		scriptClient = llm.NewStubClient(logger)
	}
	scripts := dialogue.NewService(scriptClient)

	synth, engineName, err := buildSynthesizer(logger, cfg)
	if err != nil {
		return err
	}
	logger.Info("speech engine selected", slog.String("engine", engineName))

	backgrounds := background.NewProvider(logger, background.ProviderOptions{
		AttenuationDB: cfg.Settings.Audio.AttenuationDB,
		SampleRate:    cfg.Settings.Audio.SampleRate,
	})

	sessions := server.NewSessionStore()
	defer sessions.Close()

	tmpl, err := ui.ParseTemplates()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	_, handler := server.NewServer(logger, scripts, synth, backgrounds, sessions, tmpl, ui.StaticFiles(), server.Options{
		AssemblerOptions: assembler.Options{
			Voices:     voicePool(cfg.Settings),
			SampleRate: cfg.Settings.Audio.SampleRate,
		},
		EngineName: engineName,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown server: %w", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return nil
}

// buildSynthesizer picks the speech engine: Azure when requested or when
// credentials are present under auto, otherwise the public endpoint.
func buildSynthesizer(logger *slog.Logger, cfg config.Config) (tts.Synthesizer, string, error) {
	useAzure := cfg.TTSEngine == config.EngineAzure ||
		(cfg.TTSEngine == config.EngineAuto && cfg.AzureKey != "" && cfg.AzureRegion != "")

	if useAzure {
		engine, err := tts.NewAzureEngine(logger, cfg.AzureKey, cfg.AzureRegion, nil)
		if err != nil {
			return nil, "", fmt.Errorf("configure azure engine: %w", err)
		}
		return engine, "Azure Speech", nil
	}

	engine := tts.NewTranslateEngine(logger, &tts.TranslateOptions{
		PacingDelay: cfg.Settings.PacingDelay(),
	})
	return engine, "public (rate-limited)", nil
}

func voicePool(settings config.Settings) []tts.Voice {
	if len(settings.Voices) == 0 {
		return nil
	}
	voices := make([]tts.Voice, 0, len(settings.Voices))
	for _, v := range settings.Voices {
		voices = append(voices, tts.Voice{ID: v.ID, Gender: v.Gender})
	}
	return voices
}
