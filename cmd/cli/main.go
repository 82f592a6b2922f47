package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/acousticprint/internal/config"
	"github.com/himanishpuri/acousticprint/internal/service"
	"github.com/himanishpuri/acousticprint/internal/storage"
	"github.com/himanishpuri/acousticprint/pkg/logger"
)

// Global flags
var (
	configPath string
	dbPath     string
	dbDriver   string
	workers    int
	logLevel   string
)

func init() {
	flag.StringVar(&configPath, "config", os.Getenv("ACOUSTIC_CONFIG"), "Path to a YAML config file")
	flag.StringVar(&dbPath, "db", "", "Catalog path (overrides config and ACOUSTIC_DB_PATH)")
	flag.StringVar(&dbDriver, "driver", "", "Catalog driver: sqlite, postgres or badger")
	flag.IntVar(&workers, "workers", 0, "Workers per indexing stage (0 = config)")
	flag.StringVar(&logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR")
	flag.Usage = printUsage
}

func main() {
	// .env is optional
	_ = godotenv.Load()
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.SetLevel(cfg.LogLevel())
	log.SetColorize(cfg.Log.Color)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, args := flag.Arg(0), flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	handlers := map[string]func(context.Context, *config.Config, []string) error{
		"index":       handleIndex,
		"fingerprint": handleFingerprint,
		"list":        handleList,
		"show":        handleShow,
		"delete":      handleDelete,
		"lookup":      handleLookup,
		"settings":    handleSettings,
		"spectrogram": handleSpectrogram,
	}
	handler, ok := handlers[command]
	if !ok {
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(2)
	}
	if err := handler(ctx, cfg, args); err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ %v\n", err)
		log.Errorf("%s failed: %v", command, err)
		os.Exit(exitCode(err))
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if dbDriver != "" {
		cfg.Database.Driver = dbDriver
	}
	if workers > 0 {
		cfg.Indexer.Workers = workers
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// exitCode maps configuration problems to 2 and everything else to 1.
func exitCode(err error) int {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}

// createService opens the catalog and builds the indexing service on it.
func createService(ctx context.Context, cfg *config.Config) (*service.AcousticService, error) {
	store, err := storage.Open(cfg.Database.Options())
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	svc, err := service.NewAcousticService(ctx,
		service.WithStorage(store),
		service.WithFingerprintConfig(cfg.Fingerprint),
		service.WithLogger(logger.GetLogger()),
		service.WithWorkers(cfg.Indexer.Workers),
		service.WithFrameWorkers(cfg.Indexer.FrameWorkers),
		service.WithQueueSize(cfg.Indexer.QueueSize),
		service.WithTempDir(cfg.Indexer.TempDir),
	)
	if err != nil {
		store.Close()
		return nil, err
	}
	return svc, nil
}

func printUsage() {
	fmt.Println("acousticprint - audio fingerprint indexer")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --config <file>    YAML config (env: ACOUSTIC_CONFIG)")
	fmt.Println("  --db <path>        Catalog path (env: ACOUSTIC_DB_PATH, default: acousticprint.sqlite3)")
	fmt.Println("  --driver <name>    sqlite, postgres or badger (env: ACOUSTIC_DB_DRIVER)")
	fmt.Println("  --workers <n>      Workers per indexing stage (env: ACOUSTIC_WORKERS)")
	fmt.Println("  --log-level <lvl>  Log level (env: LOG_LEVEL)")
	fmt.Println("\nUsage:")
	fmt.Println("  acousticprint [global-options] index <file|dir>...")
	fmt.Println("  acousticprint [global-options] index --youtube <url>")
	fmt.Println("  acousticprint [global-options] fingerprint [--limit n] <file>")
	fmt.Println("  acousticprint [global-options] list")
	fmt.Println("  acousticprint [global-options] show <track_id>")
	fmt.Println("  acousticprint [global-options] delete <track_id>")
	fmt.Println("  acousticprint [global-options] lookup <hash>")
	fmt.Println("  acousticprint [global-options] settings")
	fmt.Println("  acousticprint [global-options] spectrogram <file> [out.png]")
	fmt.Println("\nExamples:")
	fmt.Println("  acousticprint --db library.sqlite3 index ~/Music")
	fmt.Println("  acousticprint --driver badger --db ./catalog index song.mp3 other.wav")
	fmt.Println("  acousticprint index --youtube \"https://youtu.be/dQw4w9WgXcQ\"")
}
