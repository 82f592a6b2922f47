package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/acousticprint/internal/config"
	"github.com/himanishpuri/acousticprint/internal/service"
	"github.com/himanishpuri/acousticprint/internal/storage"
	"github.com/himanishpuri/acousticprint/pkg/logger"
)

var (
	configPath string
	addr       string
	origin     string
)

func init() {
	flag.StringVar(&configPath, "config", os.Getenv("ACOUSTIC_CONFIG"), "Path to a YAML config file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config and ACOUSTIC_SERVER_ADDR)")
	flag.StringVar(&origin, "origin", "", "Allowed CORS origin (* for all)")
}

func main() {
	_ = godotenv.Load()
	flag.Parse()

	log := logger.GetLogger()
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if origin != "" {
		cfg.Server.AllowedOrigin = origin
	}
	log.SetLevel(cfg.LogLevel())
	log.SetColorize(cfg.Log.Color)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Database.Options())
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	svc, err := service.NewAcousticService(ctx,
		service.WithStorage(store),
		service.WithFingerprintConfig(cfg.Fingerprint),
		service.WithLogger(log),
		service.WithWorkers(cfg.Indexer.Workers),
		service.WithFrameWorkers(cfg.Indexer.FrameWorkers),
		service.WithQueueSize(cfg.Indexer.QueueSize),
		service.WithTempDir(cfg.Indexer.TempDir),
	)
	if err != nil {
		store.Close()
		log.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	server := NewServer(svc, cfg)
	if err := server.Start(ctx); err != nil {
		log.Errorf("Server failed: %v", err)
	}
}
