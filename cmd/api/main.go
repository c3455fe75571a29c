package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"corkboard-backend/internal/config"
	"corkboard-backend/internal/interfaces/router"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	setupLogger(cfg)

	app, deps, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}

	if deps.DB != nil {
		sqlDB, err := deps.DB.DB()
		if err != nil {
			log.Fatal().Err(err).Msg("database handle")
		}
		if err := sqlDB.Ping(); err != nil {
			log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("database connection failed")
		}
		log.Info().Str("driver", cfg.DatabaseDriver).Msg("database connected")
	} else {
		log.Warn().Msg("no database configured, only health routes are served")
	}
	if deps.Redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := deps.Redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		log.Info().Msg("redis connected")
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msgf("server running at http://localhost:%s", cfg.Port)
		log.Info().Msgf("health check: http://localhost:%s/health/json", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	if deps.Sessions != nil {
		deps.Sessions.CloseAll()
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	if deps.Redis != nil {
		_ = deps.Redis.Close()
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
