package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/amoralabs/amora/internal/chat"
	"github.com/amoralabs/amora/internal/config"
	"github.com/amoralabs/amora/internal/httpapi"
	"github.com/amoralabs/amora/internal/observability"
	"github.com/amoralabs/amora/internal/profile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := profile.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("profile store init failed: %v", err)
	}
	defer store.Close()

	var generator chat.Generator
	if cfg.OpenAIAPIKey != "" {
		generator, err = chat.NewOpenAIGenerator(chat.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			MaxTokens:   cfg.OpenAIMaxTokens,
			Temperature: float32(cfg.OpenAITemperature),
			Timeout:     cfg.GenerationTimeout,
		})
		if err != nil {
			log.Fatalf("openai generator init failed: %v", err)
		}
		log.Printf("reply generator: openai (%s)", cfg.OpenAIModel)
	} else {
		generator = chat.NewMockGenerator()
		log.Printf("reply generator: mock (OPENAI_API_KEY not set)")
	}

	var synthesizer chat.Synthesizer
	if cfg.ElevenLabsAPIKey != "" {
		synthesizer, err = chat.NewElevenLabsSynthesizer(chat.ElevenLabsConfig{
			APIKey:     cfg.ElevenLabsAPIKey,
			BaseURL:    cfg.ElevenLabsBaseURL,
			VoiceID:    cfg.ElevenLabsVoiceID,
			AudioDir:   cfg.AudioDir,
			PublicPath: cfg.AudioPublicPath,
			Timeout:    cfg.SynthesisTimeout,
		})
		if err != nil {
			log.Fatalf("elevenlabs synthesizer init failed: %v", err)
		}
		log.Printf("voice synthesizer: elevenlabs (voice %s)", cfg.ElevenLabsVoiceID)
	} else {
		synthesizer = chat.NewMockSynthesizer()
		log.Printf("voice synthesizer: mock, replies are text-only (ELEVENLABS_API_KEY not set)")
	}

	hub := chat.NewHub()
	orchestrator := chat.NewOrchestrator(
		store,
		generator,
		synthesizer,
		hub,
		metrics,
		chat.Pacing{PerChar: cfg.PacingPerChar, Min: cfg.PacingMin, Max: cfg.PacingMax},
		cfg.ContextWindow,
		cfg.SynthesisTimeout,
	)

	api := httpapi.New(cfg, store, orchestrator, hub, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
