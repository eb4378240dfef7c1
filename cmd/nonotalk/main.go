package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nonotalk/voice-client/internal/agent"
	"github.com/nonotalk/voice-client/internal/bus"
	"github.com/nonotalk/voice-client/internal/capture"
	"github.com/nonotalk/voice-client/internal/chat"
	"github.com/nonotalk/voice-client/internal/config"
	"github.com/nonotalk/voice-client/internal/httpserver"
	"github.com/nonotalk/voice-client/internal/observability"
	"github.com/nonotalk/voice-client/internal/playback"
	"github.com/nonotalk/voice-client/internal/silence"
	"github.com/nonotalk/voice-client/internal/store"
	"github.com/nonotalk/voice-client/internal/transcribe"
	"github.com/nonotalk/voice-client/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)

	cache, err := store.Open(cfg.CachePath, cfg.CacheEntries)
	if err != nil {
		log.Fatal().Err(err).Msg("open message cache")
	}
	defer cache.Close()

	sink, err := playback.NewSpeakerSink(cfg.PlaybackSampleRate)
	if err != nil {
		log.Fatal().Err(err).Msg("open audio output")
	}
	defer sink.Close()

	var remote playback.Synthesizer
	if cfg.UseRemoteTTS {
		remote = tts.NewClient(cfg.APIBaseURL, cfg.AuthToken)
	}
	player := playback.New(remote, nil, sink)
	defer player.Close()

	coordinator := chat.NewCoordinator(cfg.APIBaseURL, cfg.AuthToken, player, cache,
		chat.WithQuotaCallback(func(remaining int) {
			log.Info().Int("remaining", remaining).Msg("quota updated")
		}),
		chat.WithCrisisCallback(func(emergency string) {
			log.Warn().Str("message", emergency).Msg("crisis response received")
		}),
	)

	recorder := capture.NewRecorder(capture.NewMicSource(), cfg.SampleRate, cfg.MaxRecordDuration)
	detector := silence.NewDetector(cfg.SilenceThreshold, cfg.SilenceDuration, cfg.FrameInterval)
	pipeline := bus.New()
	stt := transcribe.NewClient(cfg.APIBaseURL, cfg.AuthToken)

	a := agent.New(recorder, detector, pipeline, stt, coordinator, player, cfg.APIBaseURL, cfg.AuthToken)
	a.SetHistory(cache)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	if err := a.EnsureConversation(startupCtx); err != nil {
		log.Fatal().Err(err).Msg("create conversation")
	}
	if remaining, err := a.CheckQuota(startupCtx); err != nil {
		log.Warn().Err(err).Msg("quota check failed")
	} else {
		log.Info().Int("remaining", remaining).Msg("quota checked")
	}
	cancelStartup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	srv := httpserver.New(a)
	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.DiagAddress).Msg("control server listening")
		serverErrors <- srv.Start(cfg.DiagAddress)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Fatal().Err(err).Msg("control server error")
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	a.StopTurn()
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
	}
}
