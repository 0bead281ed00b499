package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	microphone "github.com/deepgram/deepgram-go-sdk/v3/pkg/audio/microphone"

	"github.com/dictaflow/dictaflow/internal/access"
	"github.com/dictaflow/dictaflow/internal/capture"
	"github.com/dictaflow/dictaflow/internal/config"
	"github.com/dictaflow/dictaflow/internal/gdrive"
	"github.com/dictaflow/dictaflow/internal/server"
	"github.com/dictaflow/dictaflow/internal/session"
	"github.com/dictaflow/dictaflow/internal/speech"
	"github.com/dictaflow/dictaflow/internal/storage"
	"github.com/dictaflow/dictaflow/internal/transcribe"
	"github.com/dictaflow/dictaflow/internal/translate"
)

//go:embed static/*
var staticFiles embed.FS

func main() {
	log.Println("dictaflow: starting")

	configPath := os.Getenv(config.EnvPrefix + "CONFIG")
	if configPath == "" {
		configPath = "dictaflow.yaml"
	}

	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("static assets init failed: %v", err)
	}

	hub := server.NewHub()

	transcriber := transcribe.NewClient(cfg.ServiceURL, transcribe.ClientOptions{
		Token:      cfg.ServiceToken,
		Timeout:    cfg.ParsedSubmitTimeout(),
		MaxRetries: cfg.MaxRetries,
		Notifier:   hub,
	})
	poller := transcribe.NewPoller(cfg.ServiceURL, transcribe.PollerOptions{
		Token:       cfg.ServiceToken,
		Interval:    cfg.ParsedPollInterval(),
		MaxAttempts: cfg.PollMaxAttempts,
		OnProgress:  hub.JobProgress,
	})
	gate := access.NewModelGate(cfg.AllowedModels)

	microphone.Initialize()
	defer microphone.Teardown()

	mic := capture.NewMicSource(cfg.SampleRateCandidates(), cfg.ParsedSegmentCadence())

	preset, interval := cfg.ResolvePreset(cfg.DefaultPreset)
	overlap := capture.OverlapPolicy{
		Fraction: preset.OverlapFraction,
		Fixed:    time.Duration(preset.OverlapSeconds) * time.Second,
	}

	secondLanguage := os.Getenv(config.EnvPrefix + "SECOND_LANGUAGE")

	// Bilingual mode is on when a second language is configured: each slot's
	// transcript is translated into the other's language, and speech playback
	// is attempted when an OpenAI key is present.
	var translator session.Translator
	var synth session.Synthesizer
	if secondLanguage != "" {
		translator = translate.NewClient(cfg.ServiceURL, cfg.ServiceToken, 30*time.Second)
		if cfg.OpenAIAPIKey != "" {
			synth = speech.NewSynthesizer(cfg.OpenAIAPIKey, cfg.SpeechModel, cfg.SpeechVoice)
		}
	}

	languages := [2]string{cfg.DefaultLanguage, secondLanguage}
	var controllers [2]*session.Controller
	for i := range controllers {
		slot := i + 1
		language := languages[i]
		if language == "" {
			language = cfg.DefaultLanguage
		}
		controllers[i] = session.NewController(session.Settings{
			Slot:          slot,
			Language:      language,
			Model:         cfg.DefaultModel,
			ElementID:     fmt.Sprintf("speaker-%d", slot),
			ChunkInterval: interval,
			Overlap:       overlap,
			MaxDuration:   cfg.ParsedMaxDuration(),
			MinChunkBytes: cfg.MinChunkBytes,
			SubmitTimeout: cfg.ParsedChunkSubmitTimeout(),
		}, mic, transcriber, poller, gate, store, hub)
	}

	speakers := [2]session.SpeakerConfig{
		{Language: languages[0], AutoPlay: synth != nil},
		{Language: languages[1], AutoPlay: synth != nil},
	}
	coordinator := session.NewCoordinator(controllers, speakers, translator, synth, hub, cfg.TranslationModel)

	handler, err := server.Handler(assets, hub, store, server.SpeakerControls{
		Start:    coordinator.StartSpeaker,
		Stop:     coordinator.StopSpeaker,
		Extend:   coordinator.ExtendSpeaker,
		States:   coordinator.States,
		Warnings: func() []string { return warnings },
	})
	if err != nil {
		log.Fatalf("build http handler failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	if cfg.GDriveFolderID != "" {
		exporter, exportErr := gdrive.NewExporter(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if exportErr != nil {
			log.Printf("warning: gdrive export disabled: %v", exportErr)
		} else {
			go exportLoop(ctx, exporter, store)
		}
	}

	log.Printf("dictaflow: web UI on http://127.0.0.1%s", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("dictaflow: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for slot, state := range coordinator.States() {
		if state == session.StateIdle {
			continue
		}
		if err := coordinator.StopSpeaker(shutdownCtx, slot); err != nil {
			log.Printf("warning: stop speaker %d failed: %v", slot, err)
		}
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

// exportLoop periodically mirrors the day's finished sessions into Drive.
func exportLoop(ctx context.Context, exporter *gdrive.Exporter, store *storage.SQLiteStore) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			date := time.Now().UTC().Format("2006-01-02")
			sessions, err := store.GetSessionsByDate(date)
			if err != nil {
				log.Printf("gdrive export: list sessions: %v", err)
				continue
			}
			for _, sess := range sessions {
				if sess.EndedAt == nil {
					continue
				}
				text, err := store.TranscriptText(sess.ID)
				if err != nil {
					log.Printf("gdrive export: transcript %s: %v", sess.ID, err)
					continue
				}
				if text == "" {
					continue
				}
				if err := exporter.Export(sess.ID, text); err != nil {
					log.Printf("gdrive export: %s: %v", sess.ID, err)
				}
			}
		}
	}
}
