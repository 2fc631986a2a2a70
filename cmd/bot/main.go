package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"karibu/internal/bot"
	"karibu/internal/config"
	"karibu/internal/metrics"
	"karibu/internal/payment"
	"karibu/internal/rentalapi"
	"karibu/internal/wizard"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	cfg, err := config.Load(os.Getenv("KARIBU_CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	tg, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create telegram client")
	}
	tg.Debug = cfg.Telegram.Debug
	log.Info().Str("username", tg.Self.UserName).Msg("authorized")

	api := rentalapi.NewClient(cfg.API.BaseURL, cfg.API.AuthToken)
	if cfg.API.RequestsPerSecond > 0 {
		api.UseRateLimit(cfg.API.RequestsPerSecond, 5)
	}
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, caching disabled")
		} else {
			api.UseRedisCache(rdb, time.Duration(cfg.API.CacheTTLSeconds)*time.Second)
		}
		cancel()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := wizard.NewSessionStore(cfg.SessionTimeout())
	initiator := payment.NewInitiator(api, &log.Logger)
	reconciler := payment.NewReconciler(api, payment.ReconcilerConfig{
		Interval:    cfg.PollInterval(),
		MaxAttempts: cfg.MaxPollAttempts(),
	}, &log.Logger)

	b := bot.NewBot(tg, api, sessions, initiator, reconciler, bot.Config{
		RentalSlug: cfg.Booking.RentalSlug,
		Currency:   cfg.Booking.Currency,
		AccountRef: cfg.Payment.AccountRef,
	}, log.Logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go servePrometheus(cfg.Monitoring.PrometheusPort)
	}
	if cfg.Monitoring.HealthCheckPort > 0 {
		go serveHealth(cfg.Monitoring.HealthCheckPort)
	}

	go cleanupLoop(ctx, sessions)

	b.Start(ctx)
	log.Info().Msg("shutdown complete")
}

func cleanupLoop(ctx context.Context, sessions *wizard.SessionStore) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := sessions.Cleanup(); removed > 0 {
				log.Info().Int("removed", removed).Msg("expired sessions cleaned up")
			}
		}
	}
}

func servePrometheus(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", addr).Msg("prometheus listener started")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("prometheus listener failed")
	}
}

func serveHealth(port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", addr).Msg("health listener started")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("health listener failed")
	}
}
