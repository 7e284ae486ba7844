package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pelican-im/messenger/config"
	"github.com/pelican-im/messenger/src/auth"
	"github.com/pelican-im/messenger/src/blob"
	"github.com/pelican-im/messenger/src/hub"
	"github.com/pelican-im/messenger/src/server"
	"github.com/pelican-im/messenger/src/service"
	"github.com/pelican-im/messenger/src/store"
	"github.com/pelican-im/messenger/src/types"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/valyala/fasthttp"
)

func main() {
	configPath := pflag.String("config", "config.yaml", "path to the YAML config file")
	addr := pflag.String("addr", "", "listen address override")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(logger, *configPath, *addr); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(logger zerolog.Logger, configPath, addrOverride string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}

	// Redis being down is not fatal: token resolution degrades to JWT-only
	// validation until it comes back.
	sessions := auth.NewSessionStore(cfg.Redis, logger)
	if err := sessions.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, session revocation disabled")
	} else {
		defer sessions.Stop()
	}

	blobs, err := blob.NewStore(cfg.Uploads.Dir)
	if err != nil {
		return err
	}

	tokens := auth.NewTokenIssuer([]byte(cfg.Auth.Secret),
		time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	resolver := auth.NewResolver(tokens, sessions, st, logger)

	h := hub.New(logger)
	h.OnConnect(func(id types.Identity) {
		logger.Debug().Int64("user_id", id.ID).Msg("user online")
	})
	h.OnDisconnect(func(id types.Identity) {
		logger.Debug().Int64("user_id", id.ID).Msg("user connection dropped")
	})

	svc := service.New(st, blobs, tokens, sessions, logger)
	srv := server.New(cfg, h, svc, resolver, logger)

	httpServer := &fasthttp.Server{
		Handler: srv.Handler(),
		Name:    "messenger",
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe(cfg.Server.Addr)
	}()
	logger.Info().Str("addr", cfg.Server.Addr).Msg("server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	h.Shutdown()
	return nil
}
