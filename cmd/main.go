package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/Dclef/renpybox-sub001/internal/config"
	"github.com/Dclef/renpybox-sub001/internal/persistence"
	"github.com/Dclef/renpybox-sub001/internal/service"
	"github.com/Dclef/renpybox-sub001/pkg/log"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: %v", err)
	}
	if cfg.LogFile != "" {
		fileLogger, err := log.InitFileLogger(cfg.LogFile, log.ParseLevel(cfg.LogLevel))
		if err != nil {
			log.Fatal("Failed to open log file: %v", err)
		}
		defer fileLogger.Close()
	} else {
		log.InitLogger(log.ParseLevel(cfg.LogLevel))
	}

	platform, err := config.LoadPlatform(cfg.PlatformFile)
	if err != nil {
		log.Fatal("Failed to load platform profile: %v", err)
	}

	ledger, err := persistence.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to open round ledger: %v", err)
	}
	defer ledger.Close()

	c := cron.New()
	svc := service.New(cfg, platform, ledger, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Warn("Shutdown requested, stopping after current attempts")
		svc.Stop()
		cancel()
	}()

	c.Start()
	defer c.Stop()

	if err := svc.Schedule(ctx); err != nil {
		log.Fatal("Failed to schedule service: %v", err)
	}
	if cfg.ScheduleSpec != "" {
		log.Info("Scheduled runs with spec %q", cfg.ScheduleSpec)
		<-ctx.Done()
	}
}
