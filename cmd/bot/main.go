package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"zapisly/internal/api"
	"zapisly/internal/booking"
	"zapisly/internal/bot"
	"zapisly/internal/cache"
	"zapisly/internal/config"
	"zapisly/internal/db"
	"zapisly/internal/events"
	"zapisly/internal/export"
	"zapisly/internal/metrics"
	"zapisly/internal/referral"
	"zapisly/internal/reminders"
	"zapisly/internal/sheets"
	"zapisly/internal/subscription"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("ZAPISLY_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}

	database, err := db.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	var scheduleCache *cache.ScheduleCache
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		scheduleCache = cache.NewScheduleCache(rdb, cfg.RedisCacheTTL(), &logger)
	}

	bus := events.NewBus()
	metrics.Register()

	subscriptions := subscription.NewService(database, subscription.Limits{
		MaxActiveAppointments: cfg.Booking.FreeMaxActiveAppointments,
		MaxActiveServices:     cfg.Booking.FreeMaxActiveServices,
	}, bus, &logger)
	referrals := referral.NewService(database, &logger)
	exporter := export.NewExporter(database)

	coordinatorOpts := []booking.Option{booking.WithQuotaPolicy(subscriptions)}
	if scheduleCache != nil {
		coordinatorOpts = append(coordinatorOpts, booking.WithScheduleSource(scheduleCache))
	}
	coordinator := booking.NewCoordinator(database, bus, &logger, coordinatorOpts...)

	var cacheInvalidator bot.Invalidator
	if scheduleCache != nil {
		cacheInvalidator = scheduleCache
	}
	b, err := bot.New(cfg.Telegram.BotToken, cfg.Telegram.Debug, bot.Deps{
		DB:            database,
		Coordinator:   coordinator,
		Subscriptions: subscriptions,
		Referrals:     referrals,
		Exporter:      exporter,
		Cache:         cacheInvalidator,
		BotName:       cfg.Telegram.BotName,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}

	if cfg.Sheets.Enabled {
		sheetsService, err := sheets.NewSheetsService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, database, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create sheets client error")
		}
		syncMaster := func(event events.Event) {
			if err := sheetsService.SyncMaster(ctx, event.MasterID); err != nil {
				logger.Error().Err(err).Int64("master_id", event.MasterID).Msg("sheets sync failed")
			}
		}
		for _, eventType := range []string{
			events.AppointmentCreated, events.AppointmentRescheduled,
			events.AppointmentCancelled, events.AppointmentCompleted,
		} {
			bus.Subscribe(eventType, syncMaster)
		}
	}

	if cfg.Reminders.Enabled {
		reminderService := reminders.NewService(reminders.Config{
			PollInterval:  cfg.ReminderPollInterval(),
			LeadTime:      cfg.ReminderLeadTime(),
			RatePerSecond: cfg.Reminders.RatePerSecond,
		}, database, b, &logger)
		reminderService.Start()
		defer reminderService.Stop()
	}

	if cfg.API.Enabled {
		var apiCache api.Invalidator
		if scheduleCache != nil {
			apiCache = scheduleCache
		}
		httpServer := api.NewHTTPServer(cfg.API.Port, database, coordinator, apiCache, &logger)
		go func() {
			if err := httpServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("api server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
	}

	backups := db.NewBackupService(database, db.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		Interval:      time.Duration(cfg.Backup.IntervalHours) * time.Hour,
		Path:          cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)
	go backups.Start(ctx)

	go subscriptions.RunExpirySweep(ctx, time.Hour)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().Msg("zapisly bot started")
	b.Start(ctx)
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
