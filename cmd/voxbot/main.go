package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	httpapi "github.com/mherren/voxbot/internal/api/http"
	"github.com/mherren/voxbot/internal/bot"
	"github.com/mherren/voxbot/internal/config"
	"github.com/mherren/voxbot/internal/platform"
	"github.com/mherren/voxbot/internal/repository"
	"github.com/mherren/voxbot/internal/repository/model"
	"github.com/mherren/voxbot/internal/service"
	"github.com/mherren/voxbot/lib/logger/sl"
	"github.com/mherren/voxbot/lib/logger/slogpretty"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	var generatorRepo repository.GeneratorRepository
	var filterRepo repository.FilterRepository

	if cfg.Database.DSN != "" {
		db, err := connectDatabase(cfg.Database)
		if err != nil {
			log.Error("failed to connect database", sl.Err(err))
			os.Exit(1)
		}
		generatorRepo = repository.NewPostgresGeneratorRepository(db)
		filterRepo = repository.NewPostgresFilterRepository(db)
	} else {
		log.Warn("no database dsn configured, generators will not survive restarts")
		generatorRepo = repository.NewInMemoryGeneratorRepository()
		filterRepo = repository.NewInMemoryFilterRepository()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := service.NewRegistry(generatorRepo, log)
	if err := registry.LoadAll(ctx); err != nil {
		log.Error("failed to load generators", sl.Err(err))
		os.Exit(1)
	}

	filters := service.NewNameFilterManager(filterRepo, log)
	if err := filters.LoadAll(ctx); err != nil {
		log.Error("failed to load name filters", sl.Err(err))
		os.Exit(1)
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		log.Error("failed to create discord session", sl.Err(err))
		os.Exit(1)
	}

	client := platform.NewDiscordClient(session)
	store := service.NewRoomStore(log)

	feed := httpapi.NewFeedHub(log)
	go feed.Run()

	lifecycle := service.NewLifecycle(client, store, registry, filters, cfg.Lifecycle, log,
		service.WithEventSink(feed),
	)

	vcBot := bot.New(session, client, lifecycle, registry, filters, store, cfg.Discord.CommandPrefix, log)
	if err := vcBot.Start(); err != nil {
		log.Error("failed to start bot", sl.Err(err))
		os.Exit(1)
	}

	adminController := httpapi.NewAdminController(store, registry, log)
	router := httpapi.SetupRouter(adminController, feed)

	go func() {
		log.Info("starting admin api", slog.String("addr", cfg.HTTP.Address))
		if err := router.Run(cfg.HTTP.Address); err != nil {
			log.Error("admin api stopped", sl.Err(err))
		}
	}()

	log.Info("bot running", slog.String("prefix", cfg.Discord.CommandPrefix))
	<-ctx.Done()

	log.Info("shutting down")
	feed.Stop()
	if err := vcBot.Stop(); err != nil {
		log.Error("failed to close discord session", sl.Err(err))
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	db.AutoMigrate(&model.Generator{}, &model.NameFilter{})

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
